package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"auditline/internal/config"
	"auditline/internal/db"
	"auditline/internal/events"
	"auditline/internal/kv"
	"auditline/internal/migrate"
	"auditline/internal/store"
	"auditline/internal/theme"
)

// Options controls how a workspace is opened.
type Options struct {
	Workspace string
	InMemory  bool
	// Config defaults to the workspace auditline.yml, or built-in defaults.
	Config  *config.Config
	Logger  *slog.Logger
	Events  events.Sink
	Ambient func() bool
	Applier theme.Applier
}

// App bundles everything a command needs from an open workspace.
type App struct {
	DB      *sql.DB
	Storage kv.SQLite
	Store   *store.Store
	Theme   *theme.Store
	Config  *config.Config
	Logger  *slog.Logger
}

// Open opens the workspace database, applies migrations and loads the
// observation and theme stores.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Events
	if sink == nil {
		sink = events.LogSink{Logger: logger}
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, InMemory: opts.InMemory})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("workspace opened", slog.String("workspace", opts.Workspace), slog.Int("schema_version", version))

	storage := kv.SQLite{DB: conn}
	st, err := store.Open(ctx, storage,
		store.WithLogger(logger),
		store.WithKeys(cfg.Storage.ObservationsKey, cfg.Storage.AssigneesKey),
		store.WithEvents(sink),
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	th, err := theme.Open(ctx, storage,
		theme.WithKey(cfg.Storage.ThemeKey),
		theme.WithLogger(logger),
		theme.WithAmbient(opts.Ambient),
		theme.WithApplier(opts.Applier),
		theme.WithEvents(sink),
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{DB: conn, Storage: storage, Store: st, Theme: th, Config: cfg, Logger: logger}, nil
}

// Close flushes the store and closes the database.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return errors.Join(a.Store.Close(ctx), a.DB.Close())
}
