package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"smartmailbox/internal/config"
	"smartmailbox/internal/ollama"
	"smartmailbox/internal/pipeline"
	"smartmailbox/internal/server"
	"smartmailbox/internal/storage"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// A first run has no settings file yet; seed it from the environment
	// configuration. Afterwards the persisted settings win.
	_, statErr := os.Stat(filepath.Join(cfg.DataDir, storage.SettingsFile))
	firstRun := os.IsNotExist(statErr)

	// Open the JSON store
	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	if firstRun {
		if err := store.Settings.Update(cfg.InitialSettings()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to seed settings")
		}
	}

	// Start the processing pipeline worker
	factory := func(serverURL string, timeout time.Duration) ollama.Completer {
		return ollama.NewClient(serverURL, timeout, logger)
	}
	p := pipeline.New(store, factory, cfg.EventQueueSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// Pipeline events are consumed here; HTTP callers poll the tracked
	// per-file statuses instead.
	go func() {
		for ev := range p.Events() {
			logger.Debug().
				Str("job_id", ev.JobID).
				Str("file", ev.Path).
				Str("stage", string(ev.Stage)).
				Msg("Pipeline event")
		}
	}()

	// Create and initialize server
	srv := server.New(cfg, store, p, logger)
	srv.Initialize()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
