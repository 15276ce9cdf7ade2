// Package app provides the top-level application lifecycle management for the
// position monitor. It wires together all dependencies (brokerage client,
// stores, caches, monitors, and the HTTP server) and starts the goroutines for
// the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optionsentry/optionsentry/internal/config"
	"github.com/optionsentry/optionsentry/internal/domain"
	"github.com/optionsentry/optionsentry/internal/monitor"
	"github.com/optionsentry/optionsentry/internal/server"
	"github.com/optionsentry/optionsentry/internal/server/handler"
	"github.com/optionsentry/optionsentry/internal/server/ws"
	"github.com/optionsentry/optionsentry/internal/service"
	"github.com/optionsentry/optionsentry/internal/tracker"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// configured account monitors plus the HTTP server, and blocks until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	registry := monitor.NewRegistry(a.monitorFactory(deps), a.logger)
	svc := service.NewMonitorService(registry, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	// Auto-start the configured accounts. A failed start is logged rather
	// than fatal; the account can be retried through the API.
	for _, accountID := range a.cfg.Monitor.Accounts {
		if _, err := registry.GetOrStart(ctx, accountID); err != nil {
			a.logger.WarnContext(ctx, "auto-start monitor failed",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Simulated fill lifecycle. Each simulated fill kicks a reconciliation
	// of the owning account's open orders.
	if deps.Sim != nil {
		deps.Sim.OnUpdate(func(ctx context.Context, order domain.Order) {
			m, err := registry.Get(order.AccountID)
			if err != nil {
				return
			}
			if err := m.RefreshOrders(ctx); err != nil {
				a.logger.WarnContext(ctx, "simulated fill reconcile failed",
					slog.String("account_id", order.AccountID),
					slog.String("order_id", order.ID),
					slog.String("error", err.Error()),
				)
			}
		})
		g.Go(func() error {
			if err := deps.Sim.Run(ctx); ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	// WebSocket hub bridges the signal bus to connected clients; it needs
	// Redis to have anything to forward.
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}

	// Shutdown sequencing: stop every monitor before the process exits so
	// in-flight ticks finish cleanly.
	g.Go(func() error {
		<-ctx.Done()
		registry.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// monitorFactory returns the registry factory that assembles one account
// monitor with its own order tracker.
func (a *App) monitorFactory(deps *Dependencies) monitor.Factory {
	return func(accountID string) *monitor.Monitor {
		trackerOpts := []tracker.Option{}
		if deps.OrderStore != nil {
			trackerOpts = append(trackerOpts, tracker.WithPersistence(deps.OrderStore, deps.AuditStore))
		}
		tr := tracker.New(accountID, a.logger, trackerOpts...)

		return monitor.New(accountID, monitor.Config{
			PollInterval:    a.cfg.Monitor.PollInterval.Duration,
			IdleInterval:    a.cfg.Monitor.IdleInterval.Duration,
			SlippagePercent: a.cfg.Monitor.SlippagePercent,
			LiveTrading:     a.cfg.Mode == "live",
		}, monitor.Deps{
			Loader:       deps.Loader,
			Prices:       deps.Prices,
			Submitter:    deps.Submitter,
			Calendar:     deps.Calendar,
			StatusSource: deps.StatusSource,
			Canceler:     deps.Canceler,
			Bus:          deps.Bus,
			Audit:        deps.AuditStore,
			Tracker:      tr,
			Logger:       a.logger,
		})
	}
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.MonitorService, hub *ws.Hub) {
	var cachePinger, dbPinger handler.Pinger
	if deps.Cache != nil {
		cachePinger = deps.Cache
	}
	if deps.DB != nil {
		dbPinger = deps.DB
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthToken:   a.cfg.Server.AuthToken,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, cachePinger, dbPinger, a.logger),
		Monitors: handler.NewMonitorHandler(svc, a.logger),
		Orders:   handler.NewOrderHandler(svc, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
