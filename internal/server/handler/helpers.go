package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// errorStatus maps a service error to its HTTP status and client message.
// Unknown errors are reported as 500 without detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, domain.ErrInsufficientFunds.Error()
	case errors.Is(err, domain.ErrInvalidMarketState):
		return http.StatusConflict, domain.ErrInvalidMarketState.Error()
	case errors.Is(err, domain.ErrInvalidOutcome):
		return http.StatusUnprocessableEntity, domain.ErrInvalidOutcome.Error()
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict, domain.ErrConcurrencyConflict.Error()
	case errors.Is(err, domain.ErrCashoutUnavailable):
		return http.StatusConflict, domain.ErrCashoutUnavailable.Error()
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, domain.ErrAlreadyExists.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.ErrForbidden.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, domain.ErrRateLimited.Error()
	case errors.Is(err, domain.ErrInvalidMarket):
		return http.StatusBadRequest, clientDetail(err, domain.ErrInvalidMarket)
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, clientDetail(err, domain.ErrInvalidAmount)
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, clientDetail(err, domain.ErrInvalidInput)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// clientDetail trims the layer prefixes off a validation error so only the
// sentinel text and its detail reach the client.
func clientDetail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

// writeServiceError renders err with errorStatus and logs anything that is
// not a client error.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// listResponse wraps list endpoint output with its pagination window.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newListResponse[T any](items []T, opts domain.ListOpts) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Limit: opts.Limit, Offset: opts.Offset}
}
