// Package httpserver exposes the two inbound surfaces of the system:
// the WhatsApp webhook that feeds the classification pipeline and the
// Alexa skill endpoint that drives the voice dialogue, plus a static
// media mount for converted voice notes.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rx3lixir/eco/internal/alexa"
	"github.com/rx3lixir/eco/internal/whatsapp"
)

// Ingestor accepts a webhook message for background processing.
type Ingestor interface {
	IngestAsync(payload *whatsapp.WebhookPayload)
}

// SkillRouter answers one Alexa turn.
type SkillRouter interface {
	Route(ctx context.Context, req *alexa.Request) alexa.Response
}

type Server struct {
	pipeline      Ingestor
	skill         SkillRouter
	webhookSecret string
	mediaDir      string
	log           *log.Logger
	httpServer    *http.Server
}

func New(addr, webhookSecret, mediaDir string, pipeline Ingestor, skill SkillRouter, log *log.Logger) *Server {
	s := &Server{
		pipeline:      pipeline,
		skill:         skill,
		webhookSecret: webhookSecret,
		mediaDir:      mediaDir,
		log:           log,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
