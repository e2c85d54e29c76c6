package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

type fakeCache struct {
	mu    sync.Mutex
	snaps map[string]domain.OddsSnapshot
	gets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]domain.OddsSnapshot)}
}

func (c *fakeCache) Set(_ context.Context, snap domain.OddsSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.MarketID] = snap
	return nil
}

func (c *fakeCache) Get(_ context.Context, marketID string) (domain.OddsSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	snap, ok := c.snaps[marketID]
	if !ok {
		return domain.OddsSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeCache) Invalidate(_ context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, marketID)
	return nil
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu       sync.Mutex
	messages []published
	streams  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{streams: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, published{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, stream string, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, p := range b.streams[stream] {
		out = append(out, domain.StreamMessage{Payload: p})
	}
	return out, nil
}

func (b *fakeBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.messages {
		out = append(out, m.channel)
	}
	return out
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}
