package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/notesmith/notesmith/internal/ai"
	"github.com/notesmith/notesmith/internal/clock"
	"github.com/notesmith/notesmith/internal/config"
	"github.com/notesmith/notesmith/internal/database"
	"github.com/notesmith/notesmith/internal/notify"
	"github.com/notesmith/notesmith/internal/registry"
	"github.com/notesmith/notesmith/internal/store"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

// app bundles the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	store    *store.Store
	notifier *notify.Notifier
	registry *registry.Registry
	client   *ai.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database.Open > %w", err)
	}

	noteStore := store.New(db)
	if err := noteStore.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store.EnsureSchema > %w", err)
	}

	clk := clock.System()
	notifier := notify.New(cfg.Sync.Directory, clk)
	reg := registry.New(noteStore, notifier, clk, 0)
	if err := reg.Load(ctx); err != nil {
		_ = notifier.Close()
		_ = db.Close()
		return nil, fmt.Errorf("registry.Load > %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		store:    noteStore,
		notifier: notifier,
		registry: reg,
		client:   ai.NewClient(cfg.AI.Endpoint),
	}, nil
}

func (a *app) orchestrator() *ai.Orchestrator {
	return ai.NewOrchestrator(a.client, clock.System(), ai.Options{
		Cooldown:   time.Duration(a.cfg.AI.CooldownSeconds) * time.Second,
		RetryDelay: time.Duration(a.cfg.AI.RetryDelaySeconds) * time.Second,
		MaxTokens:  a.cfg.AI.MaxTokens,
	})
}

func (a *app) Close() error {
	var firstErr error
	if err := a.registry.Close(context.Background()); err != nil {
		firstErr = err
	}
	if err := a.notifier.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
