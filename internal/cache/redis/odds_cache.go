package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// DefaultOddsTTL bounds how long a snapshot may be served after a missed
// invalidation.
const DefaultOddsTTL = 30 * time.Second

// OddsCache implements domain.OddsCache. Each market's latest snapshot is
// stored as JSON under <namespace>odds:{marketID}.
type OddsCache struct {
	c   *Client
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.OddsCache = (*OddsCache)(nil)

// NewOddsCache creates an OddsCache backed by the given Client. A
// non-positive ttl selects DefaultOddsTTL.
func NewOddsCache(c *Client, ttl time.Duration) *OddsCache {
	if ttl <= 0 {
		ttl = DefaultOddsTTL
	}
	return &OddsCache{c: c, rdb: c.Underlying(), ttl: ttl}
}

func (oc *OddsCache) oddsKey(marketID string) string { return oc.c.Key("odds", marketID) }

// Set stores the snapshot.
func (oc *OddsCache) Set(ctx context.Context, snap domain.OddsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal odds %s: %w", snap.MarketID, err)
	}
	if err := oc.rdb.Set(ctx, oc.oddsKey(snap.MarketID), data, oc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set odds %s: %w", snap.MarketID, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (oc *OddsCache) Get(ctx context.Context, marketID string) (domain.OddsSnapshot, error) {
	data, err := oc.rdb.Get(ctx, oc.oddsKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OddsSnapshot{}, domain.ErrNotFound
		}
		return domain.OddsSnapshot{}, fmt.Errorf("redis: get odds %s: %w", marketID, err)
	}

	var snap domain.OddsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OddsSnapshot{}, fmt.Errorf("redis: unmarshal odds %s: %w", marketID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (oc *OddsCache) Invalidate(ctx context.Context, marketID string) error {
	if err := oc.rdb.Del(ctx, oc.oddsKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate odds %s: %w", marketID, err)
	}
	return nil
}
