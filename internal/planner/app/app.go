// Package app wires the planner: SQLite store, dispatcher, confirmation
// engine, audit notifiers and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/La100/vibeplanner-sub001/internal/planner/api"
	"github.com/La100/vibeplanner-sub001/internal/planner/audit"
	"github.com/La100/vibeplanner-sub001/internal/planner/config"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
	"github.com/La100/vibeplanner-sub001/internal/planner/matrix"
	"github.com/La100/vibeplanner-sub001/internal/planner/store"
)

// App is a running planner instance.
type App struct {
	config config.Config
	logger *slog.Logger

	store      *store.Store
	engine     *confirm.Engine
	http       *HealthServer
	matrix     *matrix.Client
	dispatcher *dispatch.Dispatcher
}

// New opens the store and builds every component. Nothing is started.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	normalizer := cfg.Normalizer()
	st.SetNormalizer(normalizer)

	a := &App{config: cfg, logger: logger, store: st}

	notifiers := audit.Multi{audit.NewLogNotifier(st)}
	if cfg.Matrix.Enabled() {
		mc, err := matrix.New(&matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create Matrix client: %w", err)
		}
		a.matrix = mc
		notifiers = append(notifiers, audit.NewMatrixNotifier(mc, cfg.Matrix.AuditRoom))
		logger.Info("audit notices enabled", "room", cfg.Matrix.AuditRoom)
	}

	a.dispatcher, err = dispatch.New(st, st, dispatch.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}

	a.engine = confirm.NewEngine(confirm.EngineConfig{
		Dispatcher: a.dispatcher,
		Sink:       st,
		Source:     st,
		Feed:       confirm.NewPollingFeed(st, cfg.Feed.PollInterval, logger),
		Normalizer: normalizer,
		Notifier:   notifiers,
		Logger:     logger,
		Ack:        cfg.AckSettings(),
	})

	a.http = NewHealthServer(cfg.HTTP.Addr, a.engine)
	a.http.Mount("/", api.NewHandler(a.engine,
		api.WithIngester(st),
		api.WithLogger(logger),
		api.WithIdempotencyTTL(cfg.HTTP.IdempotencyTTL),
	))
	return a, nil
}

// Store returns the backing store.
func (a *App) Store() *store.Store { return a.store }

// Engine returns the confirmation engine.
func (a *App) Engine() *confirm.Engine { return a.engine }

// Handler returns the HTTP handler with every route mounted.
func (a *App) Handler() *HealthServer { return a.http }

// Run serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.matrix != nil {
		if err := a.matrix.JoinRoom(ctx, a.config.Matrix.AuditRoom); err != nil {
			a.logger.Warn("could not join audit room; notices may fail", "err", err)
		}
	}
	if err := a.http.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("vibeplanner is running", "addr", a.config.HTTP.Addr, "db", a.config.Database.Path)

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// Stop stops the HTTP server and the engine, then closes the store.
// Pending actions stay pending.
func (a *App) Stop() {
	a.logger.Info("stopping http server")
	a.http.Stop()

	a.logger.Info("stopping engine")
	a.engine.Close()

	a.logger.Info("closing database")
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "err", err)
	}
}
