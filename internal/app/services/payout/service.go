// Package payout turns a jackpot win into money movements: an immediate
// discounted lump sum, or an installment plan settled over the configured
// schedule by a background runner.
package payout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/services/schedule"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// ErrUnknownChoice is returned for a payout choice that is neither
// lump sum nor installments.
var ErrUnknownChoice = errors.New("payout: unknown choice")

// Service plans and delivers jackpot payouts.
type Service struct {
	cfg   config.LotteryConfig
	plans storage.InstallmentStore
	funds ledger.Ledger
	log   *logger.Logger
	now   func() time.Time
}

// New creates a payout service.
func New(cfg config.LotteryConfig, plans storage.InstallmentStore, funds ledger.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payout")
	}
	return &Service{cfg: cfg, plans: plans, funds: funds, log: log, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LumpSum returns the immediate-cash value of a jackpot: the configured
// percentage, the rest forfeited for taking it now.
func (s *Service) LumpSum(jackpot float64) float64 {
	return roundCents(jackpot * s.cfg.LumpSumPercent / 100)
}

// InstallmentDetails describes the schedule a full jackpot would pay over.
func (s *Service) InstallmentDetails(jackpot float64) payout.Details {
	num := s.cfg.InstallmentWeeks * len(s.cfg.InstallmentPaymentDays)
	return payout.Details{
		NumPayments: num,
		PerPayment:  roundCents(jackpot / float64(num)),
		PaymentDays: append([]string(nil), s.cfg.InstallmentPaymentDays...),
	}
}

// Deliver routes a jackpot to its winner. An empty choice defaults to
// installments, which pay the full amount over time; the lump sum pays the
// configured percentage immediately.
func (s *Service) Deliver(ctx context.Context, ownerID, drawID string, amount float64, choice string) error {
	switch choice {
	case payout.ChoiceLumpSum:
		return s.deliverLumpSum(ctx, ownerID, drawID, amount)
	case payout.ChoiceInstallments, "":
		return s.deliverInstallments(ctx, ownerID, drawID, amount)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}
}

func (s *Service) deliverLumpSum(ctx context.Context, ownerID, drawID string, amount float64) error {
	sum := s.LumpSum(amount)
	bal, err := s.funds.Credit(ctx, ownerID, sum, ledgerdom.CurrencyCash)
	if err != nil {
		return err
	}
	_ = s.funds.LogTransaction(ctx, ledgerdom.Transaction{
		OwnerID:      ownerID,
		Kind:         ledgerdom.KindPrize,
		Currency:     ledgerdom.CurrencyCash,
		Amount:       sum,
		BalanceAfter: bal.Cash,
		Reference:    drawID,
	})
	s.log.WithField("owner_id", ownerID).WithField("amount", sum).Info("lump sum paid")
	return nil
}

func (s *Service) deliverInstallments(ctx context.Context, ownerID, drawID string, amount float64) error {
	details := s.InstallmentDetails(amount)
	next, err := schedule.NextPaymentDate(s.now(), s.cfg)
	if err != nil {
		return err
	}

	plan, err := s.plans.CreatePlan(ctx, payout.InstallmentPlan{
		OwnerID:           ownerID,
		DrawID:            drawID,
		TotalAmount:       amount,
		PerPayment:        details.PerPayment,
		PaymentsTotal:     details.NumPayments,
		PaymentsRemaining: details.NumPayments,
		NextPaymentDate:   &next,
	})
	if err != nil {
		return err
	}
	s.log.WithField("owner_id", ownerID).WithField("plan_id", plan.ID).
		WithField("payments", details.NumPayments).Info("installment plan created")
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
