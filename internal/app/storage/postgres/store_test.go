package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestAddToJackpot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE lottery_jackpot`).
		WithArgs(35.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "no_winner_streak", "updated_at"}).
			AddRow(10035.0, 1, time.Now()))

	pool, err := store.AddToJackpot(context.Background(), 35)
	if err != nil {
		t.Fatalf("AddToJackpot: %v", err)
	}
	if pool.Amount != 10035 {
		t.Errorf("expected amount 10035, got %v", pool.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCompleteDrawConflict(t *testing.T) {
	store, mock := newMockStore(t)

	// The conditional update touches nothing because the draw is no longer
	// pending; the store re-reads the row to classify the failure.
	mock.ExpectExec(`UPDATE lottery_draws`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	completed := time.Now()
	mock.ExpectQuery(`SELECT draw_id`).
		WithArgs("2025-06").
		WillReturnRows(sqlmock.NewRows([]string{
			"draw_id", "status", "winning_numbers", "winners", "jackpot_at_draw", "no_winner_streak", "scheduled_for", "completed_at", "created_at",
		}).AddRow("2025-06", lottery.DrawStatusCompleted, []byte(`[1,2,3,4,5,6]`), []byte(`null`), 10000.0, 0, completed, completed, completed))

	_, err := store.CompleteDraw(context.Background(), "2025-06", []int{1, 2, 3, 4, 5, 6}, nil, 10000, 0, completed)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAdjustBalanceInsufficientFunds(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO ledger_balances`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The guarded update matches no row when the debit would overdraw.
	mock.ExpectQuery(`UPDATE ledger_balances`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "cash", "credits", "updated_at"}))

	_, err := store.AdjustBalance(context.Background(), "player-1", "cash", -500)
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSettleInstallmentConflict(t *testing.T) {
	store, mock := newMockStore(t)

	next := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE lottery_installment_plans`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id, owner_id`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "draw_id", "status", "total_amount", "per_payment",
			"payments_total", "payments_remaining", "amount_paid", "next_payment_date", "created_at",
		}).AddRow("plan-1", "player-1", "2025-06", "active", 10000.0, 64.1, 156, 100, 3589.6, next.Add(48*time.Hour), time.Now()))

	_, err := store.SettleInstallment(context.Background(), "plan-1", next, 64.1, &next)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()

	draw, err := store.CreateDraw(ctx, lottery.Draw{
		DrawID:       "9999-01",
		ScheduledFor: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create draw: %v", err)
	}

	ticket, err := store.CreateTicket(ctx, lottery.Ticket{
		DrawID:  draw.DrawID,
		OwnerID: "player-1",
		Numbers: []int{4, 8, 15, 16, 23, 42},
		Price:   50,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	count, err := store.CountTicketsByOwner(ctx, draw.DrawID, ticket.OwnerID)
	if err != nil {
		t.Fatalf("count tickets: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 ticket, got %d", count)
	}

	completed, err := store.CompleteDraw(ctx, draw.DrawID, []int{1, 2, 3, 4, 5, 6}, nil, 10000, 1, time.Now())
	if err != nil {
		t.Fatalf("complete draw: %v", err)
	}
	if !completed.Completed() {
		t.Error("draw should be completed")
	}
	if completed.NoWinnerStreak != 1 {
		t.Errorf("streak snapshot not persisted: %+v", completed)
	}

	if _, err := store.CompleteDraw(ctx, draw.DrawID, nil, nil, 0, 0, time.Now()); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second completion should conflict, got %v", err)
	}
}
