package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visionqa/vqa/internal/config"
	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/session"
	"github.com/visionqa/vqa/internal/stage"
	"github.com/visionqa/vqa/internal/storage"
)

type pinger interface {
	Ping(ctx context.Context, svc stage.Service) error
}

// app is one open session: config, the durable store and the orchestrator
// over it.
type app struct {
	cfg     config.Config
	session *session.Orchestrator
	stages  pinger
	db      *storage.Store // nil for in-memory sessions
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.DataDir, storage.WithQuota(int64(cfg.Storage.QuotaBytes)))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	client := stage.New(stage.Endpoints{
		IngestURL: cfg.Services.IngestURL,
		AgentURL:  cfg.Services.AgentURL,
	})
	sess := session.New(kvstore.NewSQLite(db), client, session.Options{
		AppName: cfg.Project.AppName,
		Logger:  slog.Default(),
	})

	return &app{cfg: cfg, session: sess, stages: client, db: db}, nil
}

// withApp opens the session for the duration of fn.
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()
	return fn(a)
}
