package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// AuditLister reads the audit log.
type AuditLister interface {
	List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler exposes the operator audit trail.
type AuditHandler struct {
	audit  AuditLister
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// List returns the whole audit log, or one market's with ?market=.
// GET /api/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("market"))
}

// ListMarket returns the audit trail of one market.
// GET /api/markets/{id}/audit
func (h *AuditHandler) ListMarket(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, pathParam(r, "id"))
}

func (h *AuditHandler) list(w http.ResponseWriter, r *http.Request, marketID string) {
	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), marketID, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(entries, opts))
}
