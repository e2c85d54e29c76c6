package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// effects runs the side effects that follow a committed transaction:
// cache invalidation, bus events, audit rows and operator notifications.
// None of them can undo a commit, so failures are logged and dropped. Any
// collaborator may be nil when the deployment runs without it.
type effects struct {
	cache    domain.OddsCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier domain.Notifier
	logger   *slog.Logger
}

// Collaborators bundles the optional post-commit dependencies shared by the
// services.
type Collaborators struct {
	Cache    domain.OddsCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier domain.Notifier
}

func newEffects(c Collaborators, logger *slog.Logger) effects {
	return effects{
		cache:    c.Cache,
		bus:      c.Bus,
		audit:    c.Audit,
		notifier: c.Notifier,
		logger:   logger,
	}
}

func (e effects) invalidateOdds(ctx context.Context, marketID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, marketID); err != nil {
		e.logger.WarnContext(ctx, "service: odds cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (e effects) storeOdds(ctx context.Context, snap domain.OddsSnapshot) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, snap); err != nil {
		e.logger.WarnContext(ctx, "service: odds cache set failed",
			slog.String("market_id", snap.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// Event is the envelope published on the signal bus.
type Event struct {
	Type     string `json:"type"`
	MarketID string `json:"market_id"`
	Data     any    `json:"data"`
}

func (e effects) publish(ctx context.Context, channel string, evt Event) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.WarnContext(ctx, "service: marshal event failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "service: publish event failed",
			slog.String("channel", channel),
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
	}
	if channel == domain.ChannelSettlement {
		if err := e.bus.StreamAppend(ctx, domain.StreamSettlement, payload); err != nil {
			e.logger.WarnContext(ctx, "service: stream append failed",
				slog.String("stream", domain.StreamSettlement),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e effects) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e effects) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
