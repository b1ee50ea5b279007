package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	// r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.VerifySignature)
		r.Post("/webhook", s.HandleWebhook)
	})

	r.Post("/alexa/skill", s.HandleSkill)

	// Converted voice notes, served for the AudioPlayer directive
	fs := http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir)))
	r.Get("/media/*", fs.ServeHTTP)

	return r
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
