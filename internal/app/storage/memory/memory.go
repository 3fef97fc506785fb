package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/domain/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	draws        map[string]lottery.Draw
	tickets      map[string][]lottery.Ticket // keyed by draw id
	jackpot      lottery.JackpotPool
	plans        map[string]payout.InstallmentPlan
	coinFlips    map[string]tiebreak.CoinFlipRequest
	balances     map[string]ledger.Balance
	transactions map[string][]ledger.Transaction // keyed by owner id
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store with the jackpot seeded at the given amount.
func New(jackpotSeed float64) *Store {
	return &Store{
		nextID:       1,
		draws:        make(map[string]lottery.Draw),
		tickets:      make(map[string][]lottery.Ticket),
		jackpot:      lottery.JackpotPool{Amount: jackpotSeed, UpdatedAt: time.Now().UTC()},
		plans:        make(map[string]payout.InstallmentPlan),
		coinFlips:    make(map[string]tiebreak.CoinFlipRequest),
		balances:     make(map[string]ledger.Balance),
		transactions: make(map[string][]ledger.Transaction),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// DrawStore implementation ----------------------------------------------------

func (s *Store) CreateDraw(_ context.Context, draw lottery.Draw) (lottery.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draw.DrawID == "" {
		return lottery.Draw{}, fmt.Errorf("draw id required")
	}
	if _, exists := s.draws[draw.DrawID]; exists {
		return lottery.Draw{}, fmt.Errorf("draw %s: %w", draw.DrawID, storage.ErrConflict)
	}
	if draw.Status == "" {
		draw.Status = lottery.DrawStatusPending
	}
	draw.CreatedAt = time.Now().UTC()
	draw.WinningNumbers = cloneInts(draw.WinningNumbers)
	draw.Winners = cloneWinners(draw.Winners)

	s.draws[draw.DrawID] = draw
	return cloneDraw(draw), nil
}

func (s *Store) GetDraw(_ context.Context, drawID string) (lottery.Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draw, ok := s.draws[drawID]
	if !ok {
		return lottery.Draw{}, fmt.Errorf("draw %s: %w", drawID, storage.ErrNotFound)
	}
	return cloneDraw(draw), nil
}

func (s *Store) CompleteDraw(_ context.Context, drawID string, winningNumbers []int, winners []lottery.WinRecord, jackpotAtDraw float64, noWinnerStreak int, completedAt time.Time) (lottery.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draw, ok := s.draws[drawID]
	if !ok {
		return lottery.Draw{}, fmt.Errorf("draw %s: %w", drawID, storage.ErrNotFound)
	}
	if draw.Status != lottery.DrawStatusPending {
		return lottery.Draw{}, fmt.Errorf("draw %s already %s: %w", drawID, draw.Status, storage.ErrConflict)
	}

	draw.Status = lottery.DrawStatusCompleted
	draw.WinningNumbers = cloneInts(winningNumbers)
	draw.Winners = cloneWinners(winners)
	draw.JackpotAtDraw = jackpotAtDraw
	draw.NoWinnerStreak = noWinnerStreak
	completed := completedAt.UTC()
	draw.CompletedAt = &completed

	s.draws[drawID] = draw
	return cloneDraw(draw), nil
}

func (s *Store) OldestPendingDraw(_ context.Context, before time.Time) (lottery.Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *lottery.Draw
	for id := range s.draws {
		draw := s.draws[id]
		if draw.Status != lottery.DrawStatusPending || draw.ScheduledFor.After(before) {
			continue
		}
		if oldest == nil || draw.ScheduledFor.Before(oldest.ScheduledFor) {
			d := draw
			oldest = &d
		}
	}
	if oldest == nil {
		return lottery.Draw{}, fmt.Errorf("no pending draw due: %w", storage.ErrNotFound)
	}
	return cloneDraw(*oldest), nil
}

func (s *Store) ListCompletedDraws(_ context.Context, limit int) ([]lottery.Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := make([]lottery.Draw, 0, len(s.draws))
	for _, draw := range s.draws {
		if draw.Status == lottery.DrawStatusCompleted {
			completed = append(completed, cloneDraw(draw))
		}
	}
	// Newest first; draw ids sort chronologically ("YYYY-MM").
	sort.Slice(completed, func(i, j int) bool { return completed[i].DrawID > completed[j].DrawID })
	if limit > 0 && len(completed) > limit {
		completed = completed[:limit]
	}
	return completed, nil
}

// TicketStore implementation --------------------------------------------------

func (s *Store) CreateTicket(_ context.Context, ticket lottery.Ticket) (lottery.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = s.nextIDLocked()
	}
	ticket.CreatedAt = time.Now().UTC()
	ticket.Numbers = cloneInts(ticket.Numbers)

	s.tickets[ticket.DrawID] = append(s.tickets[ticket.DrawID], ticket)
	return cloneTicket(ticket), nil
}

func (s *Store) TicketsByDraw(_ context.Context, drawID string) ([]lottery.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]lottery.Ticket, 0, len(s.tickets[drawID]))
	for _, t := range s.tickets[drawID] {
		tickets = append(tickets, cloneTicket(t))
	}
	return tickets, nil
}

func (s *Store) TicketsByOwner(_ context.Context, drawID, ownerID string) ([]lottery.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tickets []lottery.Ticket
	for _, t := range s.tickets[drawID] {
		if t.OwnerID == ownerID {
			tickets = append(tickets, cloneTicket(t))
		}
	}
	return tickets, nil
}

func (s *Store) CountTicketsByOwner(_ context.Context, drawID, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.tickets[drawID] {
		if t.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// JackpotStore implementation -------------------------------------------------

func (s *Store) GetJackpot(_ context.Context) (lottery.JackpotPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jackpot, nil
}

func (s *Store) AddToJackpot(_ context.Context, amount float64) (lottery.JackpotPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jackpot.Amount += amount
	s.jackpot.UpdatedAt = time.Now().UTC()
	return s.jackpot, nil
}

func (s *Store) SetJackpot(_ context.Context, amount float64) (lottery.JackpotPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jackpot.Amount = amount
	s.jackpot.UpdatedAt = time.Now().UTC()
	return s.jackpot, nil
}

func (s *Store) ResetJackpot(_ context.Context, seed float64) (lottery.JackpotPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jackpot.Amount = seed
	s.jackpot.NoWinnerStreak = 0
	s.jackpot.UpdatedAt = time.Now().UTC()
	return s.jackpot, nil
}

func (s *Store) RolloverJackpot(_ context.Context) (lottery.JackpotPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jackpot.NoWinnerStreak++
	s.jackpot.UpdatedAt = time.Now().UTC()
	return s.jackpot, nil
}

// InstallmentStore implementation ---------------------------------------------

func (s *Store) CreatePlan(_ context.Context, plan payout.InstallmentPlan) (payout.InstallmentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = s.nextIDLocked()
	}
	if plan.Status == "" {
		plan.Status = payout.PlanStatusActive
	}
	plan.CreatedAt = time.Now().UTC()
	plan.NextPaymentDate = cloneTime(plan.NextPaymentDate)

	s.plans[plan.ID] = plan
	return clonePlan(plan), nil
}

func (s *Store) GetPlan(_ context.Context, planID string) (payout.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[planID]
	if !ok {
		return payout.InstallmentPlan{}, fmt.Errorf("installment plan %s: %w", planID, storage.ErrNotFound)
	}
	return clonePlan(plan), nil
}

func (s *Store) DuePlans(_ context.Context, now time.Time) ([]payout.InstallmentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []payout.InstallmentPlan
	for _, plan := range s.plans {
		if plan.Status != payout.PlanStatusActive || plan.PaymentsRemaining <= 0 || plan.NextPaymentDate == nil {
			continue
		}
		if !plan.NextPaymentDate.After(now) {
			due = append(due, clonePlan(plan))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *Store) SettleInstallment(_ context.Context, planID string, expectedNext time.Time, amount float64, next *time.Time) (payout.InstallmentPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.plans[planID]
	if !ok {
		return payout.InstallmentPlan{}, fmt.Errorf("installment plan %s: %w", planID, storage.ErrNotFound)
	}
	if plan.Status != payout.PlanStatusActive || plan.NextPaymentDate == nil || !plan.NextPaymentDate.Equal(expectedNext) {
		return payout.InstallmentPlan{}, fmt.Errorf("installment plan %s already settled: %w", planID, storage.ErrConflict)
	}

	plan.AmountPaid += amount
	plan.PaymentsRemaining--
	plan.NextPaymentDate = cloneTime(next)
	if plan.PaymentsRemaining <= 0 || plan.NextPaymentDate == nil {
		plan.Status = payout.PlanStatusClosed
		plan.PaymentsRemaining = 0
		plan.NextPaymentDate = nil
	}

	s.plans[planID] = plan
	return clonePlan(plan), nil
}

// CoinFlipStore implementation ------------------------------------------------

func (s *Store) CreateCoinFlip(_ context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	}
	if req.Status == "" {
		req.Status = tiebreak.StatusPending
	}
	if req.AgreementA == "" {
		req.AgreementA = tiebreak.AgreementUndecided
	}
	if req.AgreementB == "" {
		req.AgreementB = tiebreak.AgreementUndecided
	}
	req.CreatedAt = time.Now().UTC()

	s.coinFlips[req.ID] = req
	return req, nil
}

func (s *Store) GetCoinFlip(_ context.Context, requestID string) (tiebreak.CoinFlipRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.coinFlips[requestID]
	if !ok {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("coin flip %s: %w", requestID, storage.ErrNotFound)
	}
	return req, nil
}

func (s *Store) UpdateCoinFlip(_ context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.coinFlips[req.ID]
	if !ok {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("coin flip %s: %w", req.ID, storage.ErrNotFound)
	}
	req.CreatedAt = original.CreatedAt

	s.coinFlips[req.ID] = req
	return req, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) GetBalance(_ context.Context, ownerID string) (ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bal, ok := s.balances[ownerID]
	if !ok {
		return ledger.Balance{OwnerID: ownerID}, nil
	}
	return bal, nil
}

func (s *Store) AdjustBalance(_ context.Context, ownerID, currency string, delta float64) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[ownerID]
	if !ok {
		bal = ledger.Balance{OwnerID: ownerID}
	}

	switch currency {
	case ledger.CurrencyCredits:
		if bal.Credits+delta < 0 {
			return ledger.Balance{}, fmt.Errorf("owner %s credits: %w", ownerID, storage.ErrInsufficientFunds)
		}
		bal.Credits += delta
	default:
		if bal.Cash+delta < 0 {
			return ledger.Balance{}, fmt.Errorf("owner %s cash: %w", ownerID, storage.ErrInsufficientFunds)
		}
		bal.Cash += delta
	}
	bal.UpdatedAt = time.Now().UTC()

	s.balances[ownerID] = bal
	return bal, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	tx.CreatedAt = time.Now().UTC()

	s.transactions[tx.OwnerID] = append(s.transactions[tx.OwnerID], tx)
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transactions[ownerID]
	out := make([]ledger.Transaction, 0, len(entries))
	// Newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Helpers ----------------------------------------------------------------------

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	return out
}

func cloneWinners(in []lottery.WinRecord) []lottery.WinRecord {
	if in == nil {
		return nil
	}
	out := make([]lottery.WinRecord, len(in))
	copy(out, in)
	return out
}

func cloneDraw(d lottery.Draw) lottery.Draw {
	d.WinningNumbers = cloneInts(d.WinningNumbers)
	d.Winners = cloneWinners(d.Winners)
	d.CompletedAt = cloneTime(d.CompletedAt)
	return d
}

func cloneTicket(t lottery.Ticket) lottery.Ticket {
	t.Numbers = cloneInts(t.Numbers)
	return t
}

func clonePlan(p payout.InstallmentPlan) payout.InstallmentPlan {
	p.NextPaymentDate = cloneTime(p.NextPaymentDate)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
