package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidInput  = errors.New("invalid input")

	// Settlement and betting failures. Each is reported to the caller as-is so
	// the request layer can render a specific message.
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrInvalidMarketState  = errors.New("market closed")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidMarket       = errors.New("invalid market definition")
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry")
	ErrCashoutUnavailable  = errors.New("cash-out unavailable")

	// ErrZeroPool names the empty-pool condition. The odds paths resolve it
	// with the default-odds and floor rules and never return it.
	ErrZeroPool = errors.New("outcome pool is empty")
)
