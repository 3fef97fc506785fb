// Package postgres implements the storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/domain/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// --- DrawStore --------------------------------------------------------------

func (s *Store) CreateDraw(ctx context.Context, draw lottery.Draw) (lottery.Draw, error) {
	if draw.Status == "" {
		draw.Status = lottery.DrawStatusPending
	}
	draw.CreatedAt = time.Now().UTC()

	numbersJSON, err := json.Marshal(draw.WinningNumbers)
	if err != nil {
		return lottery.Draw{}, err
	}
	winnersJSON, err := json.Marshal(draw.Winners)
	if err != nil {
		return lottery.Draw{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lottery_draws (draw_id, status, winning_numbers, winners, jackpot_at_draw, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, draw.DrawID, draw.Status, numbersJSON, winnersJSON, draw.JackpotAtDraw, draw.ScheduledFor, draw.CreatedAt)
	if err != nil {
		return lottery.Draw{}, err
	}
	return draw, nil
}

func (s *Store) GetDraw(ctx context.Context, drawID string) (lottery.Draw, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT draw_id, status, winning_numbers, winners, jackpot_at_draw, no_winner_streak, scheduled_for, completed_at, created_at
		FROM lottery_draws
		WHERE draw_id = $1
	`, drawID)

	draw, err := scanDraw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lottery.Draw{}, fmt.Errorf("draw %s: %w", drawID, storage.ErrNotFound)
	}
	return draw, err
}

func (s *Store) CompleteDraw(ctx context.Context, drawID string, winningNumbers []int, winners []lottery.WinRecord, jackpotAtDraw float64, noWinnerStreak int, completedAt time.Time) (lottery.Draw, error) {
	numbersJSON, err := json.Marshal(winningNumbers)
	if err != nil {
		return lottery.Draw{}, err
	}
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return lottery.Draw{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE lottery_draws
		SET status = $2, winning_numbers = $3, winners = $4, jackpot_at_draw = $5, no_winner_streak = $6, completed_at = $7
		WHERE draw_id = $1 AND status = $8
	`, drawID, lottery.DrawStatusCompleted, numbersJSON, winnersJSON, jackpotAtDraw, noWinnerStreak, completedAt.UTC(), lottery.DrawStatusPending)
	if err != nil {
		return lottery.Draw{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Distinguish a missing draw from one completed by a concurrent run.
		if _, err := s.GetDraw(ctx, drawID); err != nil {
			return lottery.Draw{}, err
		}
		return lottery.Draw{}, fmt.Errorf("draw %s already completed: %w", drawID, storage.ErrConflict)
	}
	return s.GetDraw(ctx, drawID)
}

func (s *Store) ListCompletedDraws(ctx context.Context, limit int) ([]lottery.Draw, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT draw_id, status, winning_numbers, winners, jackpot_at_draw, no_winner_streak, scheduled_for, completed_at, created_at
		FROM lottery_draws
		WHERE status = $1
		ORDER BY draw_id DESC
		LIMIT $2
	`, lottery.DrawStatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lottery.Draw
	for rows.Next() {
		draw, err := scanDraw(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, draw)
	}
	return result, rows.Err()
}

func (s *Store) OldestPendingDraw(ctx context.Context, before time.Time) (lottery.Draw, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT draw_id, status, winning_numbers, winners, jackpot_at_draw, no_winner_streak, scheduled_for, completed_at, created_at
		FROM lottery_draws
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for
		LIMIT 1
	`, lottery.DrawStatusPending, before.UTC())

	draw, err := scanDraw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lottery.Draw{}, fmt.Errorf("no pending draw due: %w", storage.ErrNotFound)
	}
	return draw, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraw(row rowScanner) (lottery.Draw, error) {
	var (
		draw        lottery.Draw
		numbersRaw  []byte
		winnersRaw  []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&draw.DrawID, &draw.Status, &numbersRaw, &winnersRaw, &draw.JackpotAtDraw, &draw.NoWinnerStreak, &draw.ScheduledFor, &completedAt, &draw.CreatedAt); err != nil {
		return lottery.Draw{}, err
	}
	if len(numbersRaw) > 0 {
		_ = json.Unmarshal(numbersRaw, &draw.WinningNumbers)
	}
	if len(winnersRaw) > 0 {
		_ = json.Unmarshal(winnersRaw, &draw.Winners)
	}
	if completedAt.Valid {
		t := completedAt.Time
		draw.CompletedAt = &t
	}
	return draw, nil
}

// --- TicketStore ------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, ticket lottery.Ticket) (lottery.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.CreatedAt = time.Now().UTC()

	numbersJSON, err := json.Marshal(ticket.Numbers)
	if err != nil {
		return lottery.Ticket{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lottery_tickets (id, draw_id, owner_id, numbers, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ticket.ID, ticket.DrawID, ticket.OwnerID, numbersJSON, ticket.Price, ticket.CreatedAt)
	if err != nil {
		return lottery.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) TicketsByDraw(ctx context.Context, drawID string) ([]lottery.Ticket, error) {
	return s.queryTickets(ctx, `
		SELECT id, draw_id, owner_id, numbers, price, created_at
		FROM lottery_tickets
		WHERE draw_id = $1
		ORDER BY created_at
	`, drawID)
}

func (s *Store) TicketsByOwner(ctx context.Context, drawID, ownerID string) ([]lottery.Ticket, error) {
	return s.queryTickets(ctx, `
		SELECT id, draw_id, owner_id, numbers, price, created_at
		FROM lottery_tickets
		WHERE draw_id = $1 AND owner_id = $2
		ORDER BY created_at
	`, drawID, ownerID)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...interface{}) ([]lottery.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lottery.Ticket
	for rows.Next() {
		var (
			ticket     lottery.Ticket
			numbersRaw []byte
		)
		if err := rows.Scan(&ticket.ID, &ticket.DrawID, &ticket.OwnerID, &numbersRaw, &ticket.Price, &ticket.CreatedAt); err != nil {
			return nil, err
		}
		if len(numbersRaw) > 0 {
			_ = json.Unmarshal(numbersRaw, &ticket.Numbers)
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (s *Store) CountTicketsByOwner(ctx context.Context, drawID, ownerID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM lottery_tickets WHERE draw_id = $1 AND owner_id = $2
	`, drawID, ownerID)
	return count, err
}

// --- JackpotStore -----------------------------------------------------------
//
// The pool lives in a single row (id = 1) seeded by the migrations.

func (s *Store) GetJackpot(ctx context.Context) (lottery.JackpotPool, error) {
	var pool lottery.JackpotPool
	err := s.db.QueryRowContext(ctx, `
		SELECT amount, no_winner_streak, updated_at FROM lottery_jackpot WHERE id = 1
	`).Scan(&pool.Amount, &pool.NoWinnerStreak, &pool.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lottery.JackpotPool{}, fmt.Errorf("jackpot row: %w", storage.ErrNotFound)
	}
	return pool, err
}

func (s *Store) AddToJackpot(ctx context.Context, amount float64) (lottery.JackpotPool, error) {
	return s.updateJackpot(ctx, `
		UPDATE lottery_jackpot
		SET amount = amount + $1, updated_at = $2
		WHERE id = 1
		RETURNING amount, no_winner_streak, updated_at
	`, amount, time.Now().UTC())
}

func (s *Store) SetJackpot(ctx context.Context, amount float64) (lottery.JackpotPool, error) {
	return s.updateJackpot(ctx, `
		UPDATE lottery_jackpot
		SET amount = $1, updated_at = $2
		WHERE id = 1
		RETURNING amount, no_winner_streak, updated_at
	`, amount, time.Now().UTC())
}

func (s *Store) ResetJackpot(ctx context.Context, seed float64) (lottery.JackpotPool, error) {
	return s.updateJackpot(ctx, `
		UPDATE lottery_jackpot
		SET amount = $1, no_winner_streak = 0, updated_at = $2
		WHERE id = 1
		RETURNING amount, no_winner_streak, updated_at
	`, seed, time.Now().UTC())
}

func (s *Store) RolloverJackpot(ctx context.Context) (lottery.JackpotPool, error) {
	return s.updateJackpot(ctx, `
		UPDATE lottery_jackpot
		SET no_winner_streak = no_winner_streak + 1, updated_at = $1
		WHERE id = 1
		RETURNING amount, no_winner_streak, updated_at
	`, time.Now().UTC())
}

func (s *Store) updateJackpot(ctx context.Context, query string, args ...interface{}) (lottery.JackpotPool, error) {
	var pool lottery.JackpotPool
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&pool.Amount, &pool.NoWinnerStreak, &pool.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lottery.JackpotPool{}, fmt.Errorf("jackpot row: %w", storage.ErrNotFound)
	}
	return pool, err
}

// --- InstallmentStore -------------------------------------------------------

func (s *Store) CreatePlan(ctx context.Context, plan payout.InstallmentPlan) (payout.InstallmentPlan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = payout.PlanStatusActive
	}
	plan.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lottery_installment_plans
			(id, owner_id, draw_id, status, total_amount, per_payment, payments_total, payments_remaining, amount_paid, next_payment_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, plan.ID, plan.OwnerID, plan.DrawID, plan.Status, plan.TotalAmount, plan.PerPayment,
		plan.PaymentsTotal, plan.PaymentsRemaining, plan.AmountPaid, plan.NextPaymentDate, plan.CreatedAt)
	if err != nil {
		return payout.InstallmentPlan{}, err
	}
	return plan, nil
}

func (s *Store) GetPlan(ctx context.Context, planID string) (payout.InstallmentPlan, error) {
	var plan payout.InstallmentPlan
	err := s.db.GetContext(ctx, &plan, `
		SELECT id, owner_id, draw_id, status, total_amount, per_payment, payments_total, payments_remaining, amount_paid, next_payment_date, created_at
		FROM lottery_installment_plans
		WHERE id = $1
	`, planID)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.InstallmentPlan{}, fmt.Errorf("installment plan %s: %w", planID, storage.ErrNotFound)
	}
	return plan, err
}

func (s *Store) DuePlans(ctx context.Context, now time.Time) ([]payout.InstallmentPlan, error) {
	var plans []payout.InstallmentPlan
	err := s.db.SelectContext(ctx, &plans, `
		SELECT id, owner_id, draw_id, status, total_amount, per_payment, payments_total, payments_remaining, amount_paid, next_payment_date, created_at
		FROM lottery_installment_plans
		WHERE status = $1 AND payments_remaining > 0 AND next_payment_date <= $2
		ORDER BY next_payment_date
	`, payout.PlanStatusActive, now.UTC())
	return plans, err
}

func (s *Store) SettleInstallment(ctx context.Context, planID string, expectedNext time.Time, amount float64, next *time.Time) (payout.InstallmentPlan, error) {
	status := payout.PlanStatusActive
	if next == nil {
		status = payout.PlanStatusClosed
	}

	var plan payout.InstallmentPlan
	err := s.db.GetContext(ctx, &plan, `
		UPDATE lottery_installment_plans
		SET amount_paid = amount_paid + $3,
		    payments_remaining = payments_remaining - 1,
		    next_payment_date = $4,
		    status = $5
		WHERE id = $1 AND status = $2 AND next_payment_date = $6
		RETURNING id, owner_id, draw_id, status, total_amount, per_payment, payments_total, payments_remaining, amount_paid, next_payment_date, created_at
	`, planID, payout.PlanStatusActive, amount, next, status, expectedNext.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		// The plan either does not exist or a concurrent run settled it.
		if _, getErr := s.GetPlan(ctx, planID); getErr != nil {
			return payout.InstallmentPlan{}, getErr
		}
		return payout.InstallmentPlan{}, fmt.Errorf("installment plan %s already settled: %w", planID, storage.ErrConflict)
	}
	return plan, err
}

// --- CoinFlipStore ----------------------------------------------------------

func (s *Store) CreateCoinFlip(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lottery_coinflips
			(id, draw_id, party_a, party_b, amount, status, agreement_a, agreement_b, winner_id, expires_at, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, req.ID, req.DrawID, req.PartyA, req.PartyB, req.Amount, req.Status,
		req.AgreementA, req.AgreementB, req.WinnerID, req.ExpiresAt, req.ResolvedAt, req.CreatedAt)
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}
	return req, nil
}

func (s *Store) GetCoinFlip(ctx context.Context, requestID string) (tiebreak.CoinFlipRequest, error) {
	var req tiebreak.CoinFlipRequest
	err := s.db.GetContext(ctx, &req, `
		SELECT id, draw_id, party_a, party_b, amount, status, agreement_a, agreement_b, winner_id, expires_at, resolved_at, created_at
		FROM lottery_coinflips
		WHERE id = $1
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("coin flip %s: %w", requestID, storage.ErrNotFound)
	}
	return req, err
}

func (s *Store) UpdateCoinFlip(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lottery_coinflips
		SET status = $2, agreement_a = $3, agreement_b = $4, winner_id = $5, resolved_at = $6
		WHERE id = $1
	`, req.ID, req.Status, req.AgreementA, req.AgreementB, req.WinnerID, req.ResolvedAt)
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("coin flip %s: %w", req.ID, storage.ErrNotFound)
	}
	return req, nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, ownerID string) (ledger.Balance, error) {
	var bal ledger.Balance
	err := s.db.GetContext(ctx, &bal, `
		SELECT owner_id, cash, credits, updated_at FROM ledger_balances WHERE owner_id = $1
	`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{OwnerID: ownerID}, nil
	}
	return bal, err
}

func (s *Store) AdjustBalance(ctx context.Context, ownerID, currency string, delta float64) (ledger.Balance, error) {
	column := "cash"
	if currency == ledger.CurrencyCredits {
		column = "credits"
	}

	// Upsert the row, then apply the delta guarded by a non-negative check
	// so concurrent debits cannot overdraw.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_balances (owner_id, cash, credits, updated_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID, time.Now().UTC())
	if err != nil {
		return ledger.Balance{}, err
	}

	var bal ledger.Balance
	err = s.db.GetContext(ctx, &bal, fmt.Sprintf(`
		UPDATE ledger_balances
		SET %s = %s + $2, updated_at = $3
		WHERE owner_id = $1 AND %s + $2 >= 0
		RETURNING owner_id, cash, credits, updated_at
	`, column, column, column), ownerID, delta, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, fmt.Errorf("owner %s %s: %w", ownerID, currency, storage.ErrInsufficientFunds)
	}
	return bal, err
}

func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, owner_id, kind, currency, amount, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tx.ID, tx.OwnerID, tx.Kind, tx.Currency, tx.Amount, tx.BalanceAfter, tx.Reference, tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []ledger.Transaction
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, owner_id, kind, currency, amount, balance_after, reference, created_at
		FROM ledger_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	return entries, err
}
