package domain

import "context"

// Notifier delivers operator notifications for an event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventMarketResolved = "market_resolved"
	EventMarketVoided   = "market_voided"
	EventSettlementGap  = "settlement_shortfall"
	EventArchiveDone    = "archive_completed"
	EventArchiveFailed  = "archive_failed"
)
