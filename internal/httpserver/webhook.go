package httpserver

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rx3lixir/eco/internal/whatsapp"
)

const signatureHeader = "X-Hub-Signature-256"

// Webhook bodies are small JSON envelopes, anything bigger is abuse.
const maxWebhookBody = 1 << 20

// VerifySignature authenticates the webhook body with HMAC-SHA256.
// An empty configured secret disables verification, which only makes
// sense in local development.
func (s *Server) VerifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.webhookSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		signature := strings.TrimPrefix(r.Header.Get(signatureHeader), "sha256=")

		mac := hmac.New(sha256.New, []byte(s.webhookSecret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(signature), []byte(expected)) {
			s.log.Warn("Webhook signature mismatch", "remote", r.RemoteAddr)
			s.respondError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleWebhook accepts a WhatsApp event and hands messages off to the
// pipeline. The response never waits for processing: the WhatsApp
// container retries slow acks, so the only work done inline is decoding.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if payload.Event != whatsapp.EventMessage {
		s.log.Debug("Ignoring non-message event", "event", payload.Event)
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if payload.Payload.ID == "" || payload.Payload.ChatID == "" {
		s.respondError(w, http.StatusBadRequest, "missing message id or chat id")
		return
	}

	s.pipeline.IngestAsync(&payload)

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
