package notify

import (
	"unicode/utf8"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Message is one notification as handed to a Sender.
type Message struct {
	Event string
	Title string
	Body  string
}

// Alert reports whether the message describes a failure an operator must act on.
func (m Message) Alert() bool {
	switch m.Event {
	case domain.EventSettlementGap, domain.EventArchiveFailed:
		return true
	}
	return false
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
