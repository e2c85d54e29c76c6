package domain

import (
	"context"
	"time"
)

// OddsCache stores the latest odds snapshot per market.
type OddsCache interface {
	Set(ctx context.Context, snap OddsSnapshot) error
	Get(ctx context.Context, marketID string) (OddsSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Signal bus channel names.
const (
	ChannelOddsPrefix = "odds:"
	ChannelSettlement = "settlement"
	StreamSettlement  = "stream:settlement"
)

// OddsChannel returns the pub/sub channel carrying odds updates for a market.
func OddsChannel(marketID string) string {
	return ChannelOddsPrefix + marketID
}
