package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// StreamReader reads the durable settlement stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// SettlementFeedHandler lets consumers page through every settlement event
// since a stream ID, so nothing is lost while they were disconnected from
// the live feed.
type SettlementFeedHandler struct {
	streams StreamReader
	logger  *slog.Logger
}

// NewSettlementFeedHandler creates a SettlementFeedHandler.
func NewSettlementFeedHandler(streams StreamReader, logger *slog.Logger) *SettlementFeedHandler {
	return &SettlementFeedHandler{streams: streams, logger: logger}
}

type feedEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type feedResponse struct {
	Entries []feedEntry `json:"entries"`
	// Next is the ID to pass as ?after= for the following page.
	Next string `json:"next"`
}

// List returns settlement events after the given stream ID.
// GET /api/settlements?after=0&limit=100
func (h *SettlementFeedHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	msgs, err := h.streams.StreamRead(r.Context(), domain.StreamSettlement, after, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "read settlement feed", err)
		return
	}

	resp := feedResponse{Entries: make([]feedEntry, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		resp.Entries = append(resp.Entries, feedEntry{ID: m.ID, Event: m.Payload})
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
