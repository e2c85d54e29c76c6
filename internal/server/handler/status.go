package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/pricing"
)

// StatusHandler reports the running mode and the active pricing parameters.
type StatusHandler struct {
	Mode      string
	Pricing   pricing.Config
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, cfg pricing.Config, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, Pricing: cfg, StartedAt: startedAt}
}

// GetStatus responds with the current mode, uptime and pricing parameters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.Mode,
		"uptime_seconds":  int64(time.Since(h.StartedAt).Seconds()),
		"commission_rate": h.Pricing.CommissionRate,
		"min_odds":        h.Pricing.MinOdds,
		"default_odds":    h.Pricing.DefaultOdds,
		"cashout_fee":     h.Pricing.CashoutFee,
	})
}
