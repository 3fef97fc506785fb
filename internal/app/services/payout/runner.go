package payout

import (
	"context"
	"errors"
	"sync"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/metrics"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/services/schedule"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/app/system"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// Runner settles due installment payments. It runs as a managed background
// poller and is also invoked directly by the scheduler's hourly job, so
// overlapping invocations are normal: processMu serializes them in-process,
// and the store's conditional settlement keeps a second process from paying
// the same installment twice.
type Runner struct {
	cfg      config.LotteryConfig
	plans    storage.InstallmentStore
	funds    ledger.Ledger
	log      *logger.Logger
	now      func() time.Time
	interval time.Duration

	processMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ system.Service = (*Runner)(nil)

// NewRunner creates an installment runner polling at the given interval.
func NewRunner(cfg config.LotteryConfig, plans storage.InstallmentStore, funds ledger.Ledger, interval time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("installments")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		cfg:      cfg,
		plans:    plans,
		funds:    funds,
		log:      log,
		now:      time.Now,
		interval: interval,
	}
}

// WithClock overrides the runner clock. Test hook.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Name identifies the runner to the service manager.
func (r *Runner) Name() string { return "installment-runner" }

// Start launches the polling loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(runCtx)

	r.log.Info("installment runner started")
	return nil
}

// Stop halts the polling loop and waits for the in-flight cycle.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ProcessDue(ctx); err != nil {
				r.log.WithError(err).Warn("installment cycle failed")
			}
		}
	}
}

// ProcessDue settles every installment that has come due. Overlapping
// calls are serialized so a plan is loaded by at most one cycle at a time.
// Per-plan failures are logged and left for the next cycle; the method
// never stops at the first bad plan.
func (r *Runner) ProcessDue(ctx context.Context) ([]payout.PaymentResult, error) {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	now := r.now()
	due, err := r.plans.DuePlans(ctx, now)
	if err != nil {
		return nil, err
	}

	var results []payout.PaymentResult
	for _, plan := range due {
		result, err := r.settle(ctx, plan, now)
		if errors.Is(err, storage.ErrConflict) {
			// Another process settled this date first; nothing owed here.
			r.log.WithField("plan_id", plan.ID).Debug("installment already settled elsewhere")
			continue
		}
		if err != nil {
			r.log.WithError(err).WithField("plan_id", plan.ID).Warn("installment payment failed, will retry")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// settle advances the plan first and only then credits the owner. The
// conditional settlement is the payment claim: whoever moves the next
// payment date owns the credit, so a lost race costs nothing.
func (r *Runner) settle(ctx context.Context, plan payout.InstallmentPlan, now time.Time) (payout.PaymentResult, error) {
	amount := plan.PerPayment
	if plan.PaymentsRemaining == 1 {
		// The final payment settles the rounding remainder so the plan
		// pays its total exactly.
		amount = roundCents(plan.TotalAmount - plan.AmountPaid)
	}

	var next *time.Time
	if plan.PaymentsRemaining > 1 {
		n, err := schedule.NextPaymentDate(now, r.cfg)
		if err != nil {
			return payout.PaymentResult{}, err
		}
		next = &n
	}

	updated, err := r.plans.SettleInstallment(ctx, plan.ID, *plan.NextPaymentDate, amount, next)
	if err != nil {
		return payout.PaymentResult{}, err
	}

	bal, err := r.funds.Credit(ctx, plan.OwnerID, amount, ledgerdom.CurrencyCash)
	if err != nil {
		// The plan advanced but the owner was not paid. This needs eyes;
		// the settled date will not come due again on its own.
		r.log.WithError(err).WithField("plan_id", plan.ID).
			WithField("amount", amount).Error("installment settled but credit failed")
		return payout.PaymentResult{}, err
	}

	_ = r.funds.LogTransaction(ctx, ledgerdom.Transaction{
		OwnerID:      plan.OwnerID,
		Kind:         ledgerdom.KindInstallment,
		Currency:     ledgerdom.CurrencyCash,
		Amount:       amount,
		BalanceAfter: bal.Cash,
		Reference:    plan.ID,
	})

	metrics.RecordInstallmentPaid()

	result := payout.PaymentResult{
		PlanID:    plan.ID,
		OwnerID:   plan.OwnerID,
		Amount:    amount,
		Remaining: updated.PaymentsRemaining,
		Closed:    updated.Status == payout.PlanStatusClosed,
		PaidAt:    now,
	}
	if result.Closed {
		r.log.WithField("plan_id", plan.ID).WithField("total_paid", updated.AmountPaid).Info("installment plan closed")
	}
	return result, nil
}
