// Package storage defines the persistence interfaces consumed by the
// services, plus the shared error sentinels. Implementations live in the
// memory and postgres subpackages.
//
// Mutations on shared state (jackpot pool, draw completion, installment
// settlement) are single atomic read-modify-write methods here so that
// concurrent callers serialize inside the store rather than racing
// get/put pairs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/domain/tiebreak"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict indicates a conditional update lost to a concurrent
	// writer, e.g. completing an already-completed draw.
	ErrConflict = errors.New("storage: conflict")
	// ErrInsufficientFunds indicates a debit would take a balance negative.
	ErrInsufficientFunds = errors.New("storage: insufficient funds")
)

// DrawStore persists draw records.
type DrawStore interface {
	CreateDraw(ctx context.Context, draw lottery.Draw) (lottery.Draw, error)
	GetDraw(ctx context.Context, drawID string) (lottery.Draw, error)
	// CompleteDraw transitions a pending draw to completed, recording its
	// outcome along with the pool amount and no-winner streak in effect
	// when the draw ran. Returns ErrConflict if the draw is no longer
	// pending.
	CompleteDraw(ctx context.Context, drawID string, winningNumbers []int, winners []lottery.WinRecord, jackpotAtDraw float64, noWinnerStreak int, completedAt time.Time) (lottery.Draw, error)
	ListCompletedDraws(ctx context.Context, limit int) ([]lottery.Draw, error)
	// OldestPendingDraw returns the pending draw with the earliest
	// scheduled time at or before the given instant, or ErrNotFound when
	// every due draw has completed.
	OldestPendingDraw(ctx context.Context, before time.Time) (lottery.Draw, error)
}

// TicketStore persists tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket lottery.Ticket) (lottery.Ticket, error)
	TicketsByDraw(ctx context.Context, drawID string) ([]lottery.Ticket, error)
	TicketsByOwner(ctx context.Context, drawID, ownerID string) ([]lottery.Ticket, error)
	CountTicketsByOwner(ctx context.Context, drawID, ownerID string) (int, error)
}

// JackpotStore persists the single shared prize pool.
type JackpotStore interface {
	GetJackpot(ctx context.Context) (lottery.JackpotPool, error)
	// AddToJackpot atomically increments the pool and returns the new state.
	AddToJackpot(ctx context.Context, amount float64) (lottery.JackpotPool, error)
	// SetJackpot overwrites the pool amount. Admin operation.
	SetJackpot(ctx context.Context, amount float64) (lottery.JackpotPool, error)
	// ResetJackpot atomically sets the pool back to seed and zeroes the
	// no-winner streak. Used when a draw produced a jackpot winner.
	ResetJackpot(ctx context.Context, seed float64) (lottery.JackpotPool, error)
	// RolloverJackpot atomically increments the no-winner streak, leaving
	// the pool untouched.
	RolloverJackpot(ctx context.Context) (lottery.JackpotPool, error)
}

// InstallmentStore persists installment plans.
type InstallmentStore interface {
	CreatePlan(ctx context.Context, plan payout.InstallmentPlan) (payout.InstallmentPlan, error)
	GetPlan(ctx context.Context, planID string) (payout.InstallmentPlan, error)
	// DuePlans returns active plans whose next payment date is at or
	// before now.
	DuePlans(ctx context.Context, now time.Time) ([]payout.InstallmentPlan, error)
	// SettleInstallment atomically applies one payment to the plan: adds
	// amount to AmountPaid, decrements PaymentsRemaining, and moves
	// NextPaymentDate from expectedNext to next (nil closes the plan).
	// Returns ErrConflict if the plan's next payment date is no longer
	// expectedNext, which makes concurrent settlement attempts idempotent.
	SettleInstallment(ctx context.Context, planID string, expectedNext time.Time, amount float64, next *time.Time) (payout.InstallmentPlan, error)
}

// CoinFlipStore persists coin-flip tie-break requests.
type CoinFlipStore interface {
	CreateCoinFlip(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error)
	GetCoinFlip(ctx context.Context, requestID string) (tiebreak.CoinFlipRequest, error)
	UpdateCoinFlip(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error)
}

// LedgerStore persists balances and transaction entries.
type LedgerStore interface {
	GetBalance(ctx context.Context, ownerID string) (ledger.Balance, error)
	// AdjustBalance atomically applies a signed delta to one currency of
	// the owner's balance and returns the new state. A delta that would
	// take the balance negative returns ErrInsufficientFunds. Unknown
	// owners are created at zero before the delta applies.
	AdjustBalance(ctx context.Context, ownerID, currency string, delta float64) (ledger.Balance, error)
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error)
}

// Store aggregates every per-area store the engine needs.
type Store interface {
	DrawStore
	TicketStore
	JackpotStore
	InstallmentStore
	CoinFlipStore
	LedgerStore
}
