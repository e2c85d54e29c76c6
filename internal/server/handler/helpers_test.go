package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("bet_service: place bet: %w", err) }

	tests := []struct {
		err      error
		wantCode int
		wantMsg  string
	}{
		{wrap(domain.ErrInsufficientFunds), http.StatusPaymentRequired, "insufficient balance"},
		{wrap(domain.ErrInvalidMarketState), http.StatusConflict, "market closed"},
		{wrap(domain.ErrInvalidOutcome), http.StatusUnprocessableEntity, "invalid outcome"},
		{wrap(domain.ErrConcurrencyConflict), http.StatusConflict, "concurrent update conflict, retry"},
		{wrap(domain.ErrLockHeld), http.StatusConflict, "concurrent update conflict, retry"},
		{wrap(domain.ErrNotFound), http.StatusNotFound, "not found"},
		{wrap(domain.ErrForbidden), http.StatusForbidden, "forbidden"},
		{wrap(fmt.Errorf("%w: minimum stake is 5.00", domain.ErrInvalidAmount)), http.StatusBadRequest, "invalid amount: minimum stake is 5.00"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		code, msg := errorStatus(tt.err)
		if code != tt.wantCode || msg != tt.wantMsg {
			t.Errorf("errorStatus(%v) = (%d, %q), want (%d, %q)", tt.err, code, msg, tt.wantCode, tt.wantMsg)
		}
	}
}
