package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/optionsentry/optionsentry/internal/broker/sim"
	"github.com/optionsentry/optionsentry/internal/cache/redis"
	"github.com/optionsentry/optionsentry/internal/config"
	"github.com/optionsentry/optionsentry/internal/domain"
	"github.com/optionsentry/optionsentry/internal/marketcal"
	"github.com/optionsentry/optionsentry/internal/platform/brokerage"
	"github.com/optionsentry/optionsentry/internal/pricefeed"
	"github.com/optionsentry/optionsentry/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
// Bus, OrderStore, and AuditStore are nil when the corresponding backend is
// disabled; Sim is nil in live mode.
type Dependencies struct {
	Loader       domain.PositionLoader
	Prices       domain.PriceSource
	Submitter    domain.OrderSubmitter
	StatusSource domain.OrderStatusSource
	Canceler     domain.OrderCanceler
	Calendar     *marketcal.Calendar

	Bus        domain.SignalBus
	OrderStore domain.OrderStore
	AuditStore domain.AuditStore

	// Sim drives fill simulation in sim mode.
	Sim *sim.Submitter

	// Raw clients, kept for health checks.
	Cache *redis.Client
	DB    *postgres.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Positions and quotes always come from the brokerage; sim versus live
	// only changes where close orders go.
	if cfg.Brokerage.BaseURL == "" {
		return nil, nil, fmt.Errorf("wire: brokerage base_url is required for position and quote data")
	}
	broker := brokerage.NewClient(cfg.Brokerage.BaseURL, cfg.Brokerage.Token, logger)
	deps.Loader = broker
	deps.Prices = broker

	cal, err := marketcal.New()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: market calendar: %w", err)
	}
	deps.Calendar = cal

	// --- PostgreSQL order journal and audit log ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.DB = pgClient
	}

	// --- Redis quote cache and signal bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Prices = pricefeed.New(
			broker,
			redis.NewPriceCache(redisClient),
			logger,
			pricefeed.WithMaxAge(cfg.Monitor.QuoteMaxAge.Duration),
		)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Cache = redisClient
	}

	// --- Order submission ---
	switch cfg.Mode {
	case "live":
		deps.Submitter = broker
		deps.StatusSource = broker
		deps.Canceler = broker
	default: // sim
		simSub := sim.NewSubmitter(logger)
		deps.Submitter = simSub
		deps.StatusSource = simSub
		deps.Canceler = simSub
		deps.Sim = simSub
	}

	return deps, cleanup, nil
}
