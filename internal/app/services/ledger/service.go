// Package ledger exposes player balances to the draw engine. It is the
// reference implementation of the narrow funding interface the lottery
// services consume; a deployment embedding the engine in a larger wallet
// system can swap in its own implementation.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// ErrInsufficientFunds is returned when a debit exceeds the balance.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// Ledger is the funding interface the lottery services depend on.
type Ledger interface {
	Balance(ctx context.Context, ownerID string) (ledger.Balance, error)
	Debit(ctx context.Context, ownerID string, amount float64, currency string) (ledger.Balance, error)
	Credit(ctx context.Context, ownerID string, amount float64, currency string) (ledger.Balance, error)
	LogTransaction(ctx context.Context, entry ledger.Transaction) error
}

// Service implements Ledger over the storage layer.
type Service struct {
	store storage.LedgerStore
	log   *logger.Logger
}

var _ Ledger = (*Service)(nil)

// New creates a ledger service.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, log: log}
}

// Balance returns the owner's current balance. Unknown owners read as zero.
func (s *Service) Balance(ctx context.Context, ownerID string) (ledger.Balance, error) {
	return s.store.GetBalance(ctx, ownerID)
}

// Debit removes amount from the owner's balance in the given currency.
func (s *Service) Debit(ctx context.Context, ownerID string, amount float64, currency string) (ledger.Balance, error) {
	if amount <= 0 {
		return ledger.Balance{}, fmt.Errorf("ledger: debit amount must be positive, got %v", amount)
	}
	bal, err := s.store.AdjustBalance(ctx, ownerID, currency, -amount)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return ledger.Balance{}, fmt.Errorf("%w: owner %s", ErrInsufficientFunds, ownerID)
		}
		return ledger.Balance{}, err
	}
	return bal, nil
}

// Credit adds amount to the owner's balance in the given currency.
func (s *Service) Credit(ctx context.Context, ownerID string, amount float64, currency string) (ledger.Balance, error) {
	if amount <= 0 {
		return ledger.Balance{}, fmt.Errorf("ledger: credit amount must be positive, got %v", amount)
	}
	return s.store.AdjustBalance(ctx, ownerID, currency, amount)
}

// Transactions lists the owner's most recent ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, ownerID, limit)
}

// LogTransaction records a ledger entry. Failures are reported but callers
// treat them as non-fatal: the balance change already happened.
func (s *Service) LogTransaction(ctx context.Context, entry ledger.Transaction) error {
	if _, err := s.store.CreateTransaction(ctx, entry); err != nil {
		s.log.WithError(err).WithField("owner_id", entry.OwnerID).Warn("failed to record ledger transaction")
		return err
	}
	return nil
}
