package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rx3lixir/eco/internal/alexa"
)

// Alexa rejects responses to stale requests anyway, this bound just
// refuses obvious replays before touching any state.
const maxRequestAge = 150 * time.Second

// HandleSkill answers one Alexa dialogue turn.
func (s *Server) HandleSkill(w http.ResponseWriter, r *http.Request) {
	var req alexa.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if !freshTimestamp(req.Body.Timestamp, time.Now()) {
		s.log.Warn("Stale skill request rejected", "timestamp", req.Body.Timestamp)
		s.respondError(w, http.StatusBadRequest, "stale request")
		return
	}

	resp := s.skill.Route(r.Context(), &req)
	s.respondJSON(w, http.StatusOK, resp)
}

// freshTimestamp accepts a missing timestamp (the simulator omits it)
// and rejects anything further than maxRequestAge from now.
func freshTimestamp(raw string, now time.Time) bool {
	if raw == "" {
		return true
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}

	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxRequestAge
}
