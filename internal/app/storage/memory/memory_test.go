package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
)

func TestJackpotLifecycle(t *testing.T) {
	store := New(10000)
	ctx := context.Background()

	pool, err := store.AddToJackpot(ctx, 35)
	if err != nil {
		t.Fatalf("AddToJackpot: %v", err)
	}
	if pool.Amount != 10035 {
		t.Errorf("expected 10035, got %v", pool.Amount)
	}

	pool, err = store.RolloverJackpot(ctx)
	if err != nil {
		t.Fatalf("RolloverJackpot: %v", err)
	}
	if pool.NoWinnerStreak != 1 || pool.Amount != 10035 {
		t.Errorf("rollover should keep the pool and bump the streak, got %+v", pool)
	}

	pool, err = store.ResetJackpot(ctx, 10000)
	if err != nil {
		t.Fatalf("ResetJackpot: %v", err)
	}
	if pool.Amount != 10000 || pool.NoWinnerStreak != 0 {
		t.Errorf("reset should reseed the pool and zero the streak, got %+v", pool)
	}
}

func TestAddToJackpotConcurrent(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AddToJackpot(ctx, 1); err != nil {
				t.Errorf("AddToJackpot: %v", err)
			}
		}()
	}
	wg.Wait()

	pool, err := store.GetJackpot(ctx)
	if err != nil {
		t.Fatalf("GetJackpot: %v", err)
	}
	if pool.Amount != 100 {
		t.Errorf("expected 100 after 100 concurrent adds, got %v", pool.Amount)
	}
}

func TestCompleteDrawOnce(t *testing.T) {
	store := New(10000)
	ctx := context.Background()

	if _, err := store.CreateDraw(ctx, lottery.Draw{DrawID: "2025-06", ScheduledFor: time.Now()}); err != nil {
		t.Fatalf("CreateDraw: %v", err)
	}

	completed, err := store.CompleteDraw(ctx, "2025-06", []int{1, 2, 3, 4, 5, 6}, nil, 10000, 2, time.Now())
	if err != nil {
		t.Fatalf("CompleteDraw: %v", err)
	}
	if completed.JackpotAtDraw != 10000 || completed.NoWinnerStreak != 2 {
		t.Errorf("pool snapshot not recorded: %+v", completed)
	}
	if _, err := store.CompleteDraw(ctx, "2025-06", nil, nil, 0, 0, time.Now()); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second completion should conflict, got %v", err)
	}
	if _, err := store.CompleteDraw(ctx, "2025-07", nil, nil, 0, 0, time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown draw should be not found, got %v", err)
	}
}

func TestOldestPendingDraw(t *testing.T) {
	store := New(10000)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for id, scheduled := range map[string]time.Time{
		"2025-03": now.AddDate(0, -3, 0),
		"2025-05": now.AddDate(0, -1, 0),
		"2025-07": now.AddDate(0, 1, 0),
	} {
		if _, err := store.CreateDraw(ctx, lottery.Draw{DrawID: id, ScheduledFor: scheduled}); err != nil {
			t.Fatalf("CreateDraw: %v", err)
		}
	}

	draw, err := store.OldestPendingDraw(ctx, now)
	if err != nil {
		t.Fatalf("OldestPendingDraw: %v", err)
	}
	if draw.DrawID != "2025-03" {
		t.Errorf("expected the oldest due draw, got %s", draw.DrawID)
	}

	// Completing it surfaces the next one; a future draw never surfaces.
	if _, err := store.CompleteDraw(ctx, "2025-03", nil, nil, 10000, 0, now); err != nil {
		t.Fatalf("CompleteDraw: %v", err)
	}
	draw, err = store.OldestPendingDraw(ctx, now)
	if err != nil {
		t.Fatalf("OldestPendingDraw: %v", err)
	}
	if draw.DrawID != "2025-05" {
		t.Errorf("expected 2025-05, got %s", draw.DrawID)
	}

	if _, err := store.CompleteDraw(ctx, "2025-05", nil, nil, 10000, 0, now); err != nil {
		t.Fatalf("CompleteDraw: %v", err)
	}
	if _, err := store.OldestPendingDraw(ctx, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("nothing due should be not found, got %v", err)
	}
}

func TestSettleInstallmentIdempotent(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	first := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 2)
	plan, err := store.CreatePlan(ctx, payout.InstallmentPlan{
		OwnerID:           "player-1",
		DrawID:            "2025-06",
		TotalAmount:       100,
		PerPayment:        50,
		PaymentsTotal:     2,
		PaymentsRemaining: 2,
		NextPaymentDate:   &first,
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	updated, err := store.SettleInstallment(ctx, plan.ID, first, 50, &second)
	if err != nil {
		t.Fatalf("SettleInstallment: %v", err)
	}
	if updated.PaymentsRemaining != 1 || updated.AmountPaid != 50 {
		t.Errorf("unexpected plan state: %+v", updated)
	}

	// Replaying the same settlement must fail: the expected date moved on.
	if _, err := store.SettleInstallment(ctx, plan.ID, first, 50, &second); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("replay should conflict, got %v", err)
	}

	closed, err := store.SettleInstallment(ctx, plan.ID, second, 50, nil)
	if err != nil {
		t.Fatalf("final SettleInstallment: %v", err)
	}
	if closed.Status != payout.PlanStatusClosed || closed.PaymentsRemaining != 0 || closed.NextPaymentDate != nil {
		t.Errorf("plan should be closed: %+v", closed)
	}
}

func TestDuePlansFiltering(t *testing.T) {
	store := New(0)
	ctx := context.Background()
	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	mustPlan := func(next *time.Time, remaining int) payout.InstallmentPlan {
		plan, err := store.CreatePlan(ctx, payout.InstallmentPlan{
			OwnerID: "player-1", DrawID: "2025-06",
			TotalAmount: 100, PerPayment: 50,
			PaymentsTotal: 2, PaymentsRemaining: remaining,
			NextPaymentDate: next,
		})
		if err != nil {
			t.Fatalf("CreatePlan: %v", err)
		}
		return plan
	}

	due := mustPlan(&past, 2)
	mustPlan(&future, 2)
	mustPlan(nil, 2)

	plans, err := store.DuePlans(ctx, now)
	if err != nil {
		t.Fatalf("DuePlans: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != due.ID {
		t.Errorf("expected only the past-due plan, got %+v", plans)
	}
}

func TestAdjustBalance(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	bal, err := store.AdjustBalance(ctx, "player-1", ledger.CurrencyCash, 100)
	if err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}
	if bal.Cash != 100 {
		t.Errorf("expected cash 100, got %v", bal.Cash)
	}

	if _, err := store.AdjustBalance(ctx, "player-1", ledger.CurrencyCash, -150); !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Errorf("overdraw should fail, got %v", err)
	}

	// Failed debit must leave the balance untouched.
	bal, err = store.GetBalance(ctx, "player-1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Cash != 100 {
		t.Errorf("balance changed by failed debit: %v", bal.Cash)
	}
}
