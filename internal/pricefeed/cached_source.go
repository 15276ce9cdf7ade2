// Package pricefeed decorates a price source with a shared quote cache.
// Several account monitors polling the same contract collapse into one
// upstream request per cache window.
package pricefeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// DefaultMaxAge is how long a cached quote is served before going back
// upstream. Quotes older than one poll window are worthless for risk
// decisions.
const DefaultMaxAge = 8 * time.Second

// CachedSource reads through a domain.PriceCache in front of an upstream
// domain.PriceSource. Cache failures fall through to the upstream; a price
// is never invented and never served past its age limit.
type CachedSource struct {
	upstream domain.PriceSource
	cache    domain.PriceCache
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a CachedSource.
type Option func(*CachedSource)

// WithMaxAge overrides the cache freshness window.
func WithMaxAge(d time.Duration) Option {
	return func(s *CachedSource) { s.maxAge = d }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *CachedSource) { s.now = now }
}

// New wraps upstream with the cache.
func New(upstream domain.PriceSource, cache domain.PriceCache, logger *slog.Logger, opts ...Option) *CachedSource {
	s := &CachedSource{
		upstream: upstream,
		cache:    cache,
		maxAge:   DefaultMaxAge,
		logger:   logger.With(slog.String("component", "pricefeed")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPrice serves a fresh cached quote when one exists, otherwise asks the
// upstream and writes the result back. Implements domain.PriceSource.
func (s *CachedSource) GetPrice(ctx context.Context, optionID string) (float64, error) {
	if price, ts, err := s.cache.GetPrice(ctx, optionID); err == nil {
		if s.now().Sub(ts) <= s.maxAge {
			return price, nil
		}
	}

	price, err := s.upstream.GetPrice(ctx, optionID)
	if err != nil {
		return 0, err
	}

	if err := s.cache.SetPrice(ctx, optionID, price, s.now()); err != nil {
		s.logger.Warn("quote cache write failed",
			slog.String("option_id", optionID),
			slog.String("error", err.Error()),
		)
	}
	return price, nil
}
