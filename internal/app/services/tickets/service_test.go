package tickets

import (
	"context"
	"errors"
	"testing"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/storage/memory"
	"github.com/nightmarket/lottery-engine/internal/config"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// saleTime is a quiet moment before the June 2025 draw (first Friday,
// June 6 at noon America/Chicago).
var saleTime = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store, *ledger.Service) {
	t.Helper()
	cfg := config.Default().Lottery
	store := memory.New(cfg.InitialJackpot)
	funds := ledger.New(store, nil)
	svc := New(cfg, store, store, store, funds, nil).WithClock(fixedClock(saleTime))
	return svc, store, funds
}

func fund(t *testing.T, funds *ledger.Service, ownerID string, amount float64) {
	t.Helper()
	if _, err := funds.Credit(context.Background(), ownerID, amount, ledgerdom.CurrencyCash); err != nil {
		t.Fatalf("fund %s: %v", ownerID, err)
	}
}

func TestValidateNumbers(t *testing.T) {
	cases := []struct {
		name    string
		numbers []int
		wantErr error
	}{
		{"valid", []int{4, 8, 15, 16, 23, 42}, nil},
		{"boundary values", []int{1, 2, 3, 4, 5, 49}, nil},
		{"too few", []int{1, 2, 3, 4, 5}, ErrInvalidCount},
		{"too many", []int{1, 2, 3, 4, 5, 6, 7}, ErrInvalidCount},
		{"duplicate", []int{1, 2, 3, 4, 5, 5}, ErrDuplicateNumber},
		{"zero", []int{0, 2, 3, 4, 5, 6}, ErrOutOfRange},
		{"above range", []int{1, 2, 3, 4, 5, 50}, ErrOutOfRange},
		{"negative", []int{-1, 2, 3, 4, 5, 6}, ErrOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateNumbers(tc.numbers, 6, 49)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateNumbers(%v) = %v, want nil", tc.numbers, err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateNumbers(%v) = %v, want %v", tc.numbers, err, tc.wantErr)
			}
		})
	}
}

func TestBuy(t *testing.T) {
	svc, store, funds := newService(t)
	ctx := context.Background()
	fund(t, funds, "player-1", 200)

	ticket, err := svc.Buy(ctx, "player-1", []int{4, 8, 15, 16, 23, 42})
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if ticket.DrawID != "2025-06" {
		t.Errorf("expected draw 2025-06, got %s", ticket.DrawID)
	}
	if ticket.Price != 50 {
		t.Errorf("expected price 50, got %v", ticket.Price)
	}

	bal, err := funds.Balance(ctx, "player-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Cash != 150 {
		t.Errorf("expected balance 150 after purchase, got %v", bal.Cash)
	}

	// 70% of the 50.0 price feeds the pool.
	pool, err := store.GetJackpot(ctx)
	if err != nil {
		t.Fatalf("GetJackpot: %v", err)
	}
	if pool.Amount != 10035 {
		t.Errorf("expected jackpot 10035, got %v", pool.Amount)
	}

	// The pending draw record exists for the scheduler to find.
	draw, err := store.GetDraw(ctx, "2025-06")
	if err != nil {
		t.Fatalf("GetDraw: %v", err)
	}
	if draw.Completed() {
		t.Error("fresh draw should be pending")
	}
}

func TestBuyContributionAccumulates(t *testing.T) {
	svc, store, funds := newService(t)
	ctx := context.Background()
	fund(t, funds, "player-1", 1000)

	for i := 0; i < 4; i++ {
		if _, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 6 + i}); err != nil {
			t.Fatalf("Buy #%d: %v", i, err)
		}
	}

	pool, _ := store.GetJackpot(ctx)
	if pool.Amount != 10000+4*35 {
		t.Errorf("expected jackpot %v, got %v", 10000+4*35.0, pool.Amount)
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	svc, store, funds := newService(t)
	ctx := context.Background()
	fund(t, funds, "player-1", 30)

	_, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// A failed purchase must not move the pool or the balance.
	pool, _ := store.GetJackpot(ctx)
	if pool.Amount != 10000 {
		t.Errorf("jackpot moved on failed purchase: %v", pool.Amount)
	}
	bal, _ := funds.Balance(ctx, "player-1")
	if bal.Cash != 30 {
		t.Errorf("balance moved on failed purchase: %v", bal.Cash)
	}
}

func TestBuyQuota(t *testing.T) {
	cfg := config.Default().Lottery
	cfg.MaxTicketsPerUser = 2
	store := memory.New(cfg.InitialJackpot)
	funds := ledger.New(store, nil)
	svc := New(cfg, store, store, store, funds, nil).WithClock(fixedClock(saleTime))
	ctx := context.Background()
	fund(t, funds, "player-1", 1000)

	for i := 0; i < 2; i++ {
		if _, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 6 + i}); err != nil {
			t.Fatalf("Buy #%d: %v", i, err)
		}
	}
	if _, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 9}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Another owner is unaffected.
	fund(t, funds, "player-2", 100)
	if _, err := svc.Buy(ctx, "player-2", []int{1, 2, 3, 4, 5, 6}); err != nil {
		t.Errorf("other owner's purchase failed: %v", err)
	}
}

func TestBuyClosedDraw(t *testing.T) {
	svc, store, funds := newService(t)
	ctx := context.Background()
	fund(t, funds, "player-1", 100)

	if _, err := store.CreateDraw(ctx, lottery.Draw{DrawID: "2025-06", ScheduledFor: saleTime}); err != nil {
		t.Fatalf("CreateDraw: %v", err)
	}
	if _, err := store.CompleteDraw(ctx, "2025-06", []int{1, 2, 3, 4, 5, 6}, nil, 10000, 0, saleTime); err != nil {
		t.Fatalf("CompleteDraw: %v", err)
	}

	if _, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 6}); !errors.Is(err, ErrDrawClosed) {
		t.Fatalf("expected ErrDrawClosed, got %v", err)
	}
}

func TestBuyDisabled(t *testing.T) {
	cfg := config.Default().Lottery
	cfg.Enabled = false
	store := memory.New(cfg.InitialJackpot)
	svc := New(cfg, store, store, store, ledger.New(store, nil), nil)

	if _, err := svc.Buy(context.Background(), "player-1", []int{1, 2, 3, 4, 5, 6}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestTicketsFor(t *testing.T) {
	svc, _, funds := newService(t)
	ctx := context.Background()
	fund(t, funds, "player-1", 500)
	fund(t, funds, "player-2", 500)

	for i := 0; i < 3; i++ {
		if _, err := svc.Buy(ctx, "player-1", []int{1, 2, 3, 4, 5, 6 + i}); err != nil {
			t.Fatalf("Buy: %v", err)
		}
	}
	if _, err := svc.Buy(ctx, "player-2", []int{7, 8, 9, 10, 11, 12}); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	mine, err := svc.TicketsFor(ctx, "player-1")
	if err != nil {
		t.Fatalf("TicketsFor: %v", err)
	}
	if len(mine) != 3 {
		t.Errorf("expected 3 tickets, got %d", len(mine))
	}
	for _, ticket := range mine {
		if ticket.OwnerID != "player-1" {
			t.Errorf("foreign ticket in listing: %+v", ticket)
		}
	}
}
