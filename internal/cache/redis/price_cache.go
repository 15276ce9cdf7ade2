package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// quoteTTL caps how long an orphaned quote lingers. Freshness for reads is
// judged by the caller against the stored timestamp; the TTL is only
// housekeeping.
const quoteTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each option's
// quote is stored at key "price:{optionID}" with fields "price" and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(optionID string) string {
	return "price:" + optionID
}

// SetPrice stores the latest quote and its timestamp for an option.
func (pc *PriceCache) SetPrice(ctx context.Context, optionID string, price float64, ts time.Time) error {
	key := priceKey(optionID)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", optionID, err)
	}
	return nil
}

// GetPrice retrieves the latest quote and timestamp for an option.
// It returns domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, optionID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(optionID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", optionID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", optionID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", optionID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
