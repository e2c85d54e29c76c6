package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// Limits are the minimum amounts accepted for balance movements.
type Limits struct {
	MinDeposit  decimal.Decimal
	MinWithdraw decimal.Decimal
}

// DefaultLimits returns R$10 deposits and R$20 withdrawals.
func DefaultLimits() Limits {
	return Limits{
		MinDeposit:  decimal.NewFromInt(10),
		MinWithdraw: decimal.NewFromInt(20),
	}
}

// AccountService manages balances. Every change is journaled in the ledger
// inside the same transaction.
type AccountService struct {
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	bets     domain.BetStore
	tx       domain.TxRunner
	limits   Limits
	fx       effects
	now      func() time.Time
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	bets domain.BetStore,
	tx domain.TxRunner,
	limits Limits,
	collab Collaborators,
	logger *slog.Logger,
) *AccountService {
	logger = logger.With(slog.String("component", "account_service"))
	return &AccountService{
		accounts: accounts,
		ledger:   ledger,
		bets:     bets,
		tx:       tx,
		limits:   limits,
		fx:       newEffects(collab, logger),
		now:      time.Now,
		logger:   logger,
	}
}

// Open creates an account with a zero balance.
func (s *AccountService) Open(ctx context.Context, name string) (domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Account{}, fmt.Errorf("account_service: open: %w: name is required", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	a := domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return domain.Account{}, fmt.Errorf("account_service: open: %w", err)
	}
	s.logger.InfoContext(ctx, "account_service: account opened", slog.String("account_id", a.ID))
	return a, nil
}

// Get returns an account.
func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account_service: get: %w", err)
	}
	return a, nil
}

// Deposit credits a confirmed deposit.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (domain.LedgerEntry, error) {
	if err := checkAmount(amount, s.limits.MinDeposit, "deposit"); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("account_service: deposit: %w", err)
	}
	entry, err := s.move(ctx, accountID, amount, domain.LedgerDeposit)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("account_service: deposit: %w", err)
	}
	return entry, nil
}

// Withdraw debits a withdrawal. It fails with ErrInsufficientFunds when the
// balance does not cover the amount.
func (s *AccountService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (domain.LedgerEntry, error) {
	if err := checkAmount(amount, s.limits.MinWithdraw, "withdrawal"); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("account_service: withdraw: %w", err)
	}
	entry, err := s.move(ctx, accountID, amount, domain.LedgerWithdrawal)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("account_service: withdraw: %w", err)
	}
	return entry, nil
}

// History returns the ledger of an account, newest first.
func (s *AccountService) History(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account_service: history: %w", err)
	}
	entries, err := s.ledger.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: history: %w", err)
	}
	return entries, nil
}

// Bets returns the bets of an account, newest first.
func (s *AccountService) Bets(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account_service: bets: %w", err)
	}
	bets, err := s.bets.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: bets: %w", err)
	}
	return bets, nil
}

func (s *AccountService) move(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.LedgerKind) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var (
			balance decimal.Decimal
			signed  = amount
			err     error
		)
		if kind == domain.LedgerWithdrawal {
			signed = amount.Neg()
			balance, err = tx.Debit(ctx, accountID, amount)
		} else {
			balance, err = tx.Credit(ctx, accountID, amount)
		}
		if err != nil {
			return err
		}

		entry = domain.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Kind:         kind,
			Amount:       signed,
			BalanceAfter: balance,
			CreatedAt:    s.now().UTC(),
		}
		return tx.AppendLedger(ctx, entry)
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.fx.auditLog(ctx, "balance_"+strings.ToLower(string(kind)), map[string]any{
		"account_id":    accountID,
		"amount":        entry.Amount.StringFixed(2),
		"balance_after": entry.BalanceAfter.StringFixed(2),
	})
	s.logger.InfoContext(ctx, "account_service: balance moved",
		slog.String("account_id", accountID),
		slog.String("kind", string(kind)),
		slog.String("amount", entry.Amount.StringFixed(2)),
	)
	return entry, nil
}

func checkAmount(amount, minimum decimal.Decimal, what string) error {
	if !amount.IsPositive() || !amount.Equal(domain.TruncateCents(amount)) {
		return fmt.Errorf("%w: %s must be a positive amount in cents", domain.ErrInvalidAmount, what)
	}
	if amount.LessThan(minimum) {
		return fmt.Errorf("%w: minimum %s is %s", domain.ErrInvalidAmount, what, minimum.StringFixed(2))
	}
	return nil
}
