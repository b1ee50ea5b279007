package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rx3lixir/eco/internal/agents"
	"github.com/rx3lixir/eco/internal/alexa"
	"github.com/rx3lixir/eco/internal/audio"
	"github.com/rx3lixir/eco/internal/config"
	"github.com/rx3lixir/eco/internal/db"
	"github.com/rx3lixir/eco/internal/httpserver"
	"github.com/rx3lixir/eco/internal/notify"
	"github.com/rx3lixir/eco/internal/pipeline"
	"github.com/rx3lixir/eco/internal/scheduler"
	"github.com/rx3lixir/eco/internal/session"
	"github.com/rx3lixir/eco/internal/whatsapp"
	"github.com/rx3lixir/eco/pkg/s3storage"
)

func main() {
	// Setting up logger
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           log.DebugLevel,
	})

	// Initializing global context instance
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initializing config manager
	cm, err := config.NewConfigManager("internal/config/config.yaml")
	if err != nil {
		logger.Error("Error getting config file", "error", err)
		os.Exit(1)
	}

	c := cm.GetConfig()

	// Validating configuration
	if err := c.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info(
		"Configuration loaded",
		"env", c.GeneralParams.Env,
		"http_addr", c.GeneralParams.HTTPaddress,
		"database", c.MainDBParams.Name,
		"kv", c.KVParams.Host,
	)

	// Creating database connection pool
	pool, err := db.CreatePostgresPool(ctx, c.MainDBParams.GetDSN())
	if err != nil {
		logger.Error(
			"Failed to create postgres pool",
			"error", err,
			"db", c.MainDBParams.Name,
		)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("Database connection established", "db", c.MainDBParams.Name)

	// Creates database store
	store := db.NewPostgresStore(pool)

	// Initialize Key-value storage for dialogue sessions
	sessionManager, err := session.NewManager(
		c.KVParams.Host,
		c.KVParams.Password,
	)
	if err != nil {
		logger.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}
	defer sessionManager.Close()

	logger.Info("Key-Value session manger initialized")

	// Initialize S3 client for converted voice notes
	s3Client, err := s3storage.NewMinIOClient(
		c.S3Params.Endpoint,
		c.S3Params.AccessKeyID,
		c.S3Params.SecretAccessKey,
		c.S3Params.BucketName,
		c.S3Params.UseSSL,
	)
	if err != nil {
		logger.Error("Failed to create S3 client", "error", err)
		os.Exit(1)
	}

	logger.Info("S3 storage client initialized", "bucket", c.S3Params.BucketName)

	// WhatsApp REST client
	waClient := whatsapp.NewClient(
		c.WhatsAppParams.APIURL,
		c.WhatsAppParams.DeviceID,
	)

	// LLM capabilities: classification, summarization, replies, whisper
	capability := agents.NewOpenAIClient(
		c.OpenAIParams.APIKey,
		c.OpenAIParams.BaseURL,
		c.OpenAIParams.Model,
		c.OpenAIParams.WhisperModel,
	)

	// Voice note conversion
	processor := audio.NewProcessor(
		c.GeneralParams.MediaDir,
		c.GeneralParams.PublicBaseURL,
		s3Client,
		capability,
		logger,
	)

	// Proactive notification dispatch
	notifier := notify.New(
		notify.Config{
			ClientID:     c.AlexaParams.ClientID,
			ClientSecret: c.AlexaParams.ClientSecret,
			UserID:       c.AlexaParams.UserID,
		},
		store,
		capability,
		logger,
	)

	// Message classification pipeline
	ingestPipeline := pipeline.New(
		store, // MessageStore
		store, // PreferenceStore
		waClient,
		processor,
		capability,
		notifier,
		logger,
	)

	// Voice dialogue router
	dispatcher := alexa.NewDispatcher(
		sessionManager,
		store, // MessageStore
		store, // PreferenceStore
		waClient,
		capability,
		logger,
	)

	// Creates HTTP server
	HTTPserver := httpserver.New(
		c.GeneralParams.HTTPaddress,
		c.WhatsAppParams.WebhookSecret,
		c.GeneralParams.MediaDir,
		ingestPipeline,
		dispatcher,
		logger,
	)

	// Periodic jobs: morning digest and media cleanup
	jobs := scheduler.New(store, notifier, processor, s3Client, logger)
	if err := jobs.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	// Start the HTTP server in a gorutine
	go func() {
		serverErrors <- HTTPserver.Start()
	}()

	logger.Info("All servers started successfully")

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we recieve a signal or error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig)

		// Give outstanding requests 10s to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Shutting down servers
		logger.Info("Shutting down HTTP server...")
		if err := HTTPserver.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", "error", err)
		}

		logger.Info("Stopping scheduler...")
		if err := jobs.Stop(ctx); err != nil {
			logger.Error("Scheduler graceful stop failed", "error", err)
		}

		logger.Info("All servers stopped gracefully")
	}
}
