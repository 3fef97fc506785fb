// Package scheduler drives the draw cycle on the clock: a per-minute check
// that performs the draw once its time arrives, and an hourly pass over due
// installment payments.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/payout"
	drawsvc "github.com/nightmarket/lottery-engine/internal/app/services/draw"
	"github.com/nightmarket/lottery-engine/internal/app/services/schedule"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/app/system"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// DrawPerformer runs a draw to completion.
type DrawPerformer interface {
	Perform(ctx context.Context, drawID string) (lottery.DrawResult, error)
}

// InstallmentProcessor settles due installment payments.
type InstallmentProcessor interface {
	ProcessDue(ctx context.Context) ([]payout.PaymentResult, error)
}

// Scheduler owns the cron loop. Both jobs are safe to fire concurrently or
// redundantly: draw completion and installment settlement are conditional
// updates in the store, so a duplicate tick finds nothing to do.
type Scheduler struct {
	cfg          config.LotteryConfig
	draws        storage.DrawStore
	performer    DrawPerformer
	installments InstallmentProcessor
	log          *logger.Logger
	now          func() time.Time
	cron         *cron.Cron
}

var _ system.Service = (*Scheduler)(nil)

// New creates the scheduler.
func New(cfg config.LotteryConfig, draws storage.DrawStore, performer DrawPerformer, installments InstallmentProcessor, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cfg:          cfg,
		draws:        draws,
		performer:    performer,
		installments: installments,
		log:          log,
		now:          time.Now,
	}
}

// WithClock overrides the scheduler clock. Test hook.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Name identifies the scheduler to the service manager.
func (s *Scheduler) Name() string { return "draw-scheduler" }

// Start registers the cron jobs and begins ticking. Panics inside a job
// are recovered and logged; the loop never dies.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log})))

	if _, err := c.AddFunc("* * * * *", func() { s.CheckDraw(context.Background()) }); err != nil {
		return fmt.Errorf("scheduler: register draw check: %w", err)
	}
	if _, err := c.AddFunc("0 * * * *", func() { s.RunInstallments(context.Background()) }); err != nil {
		return fmt.Errorf("scheduler: register installment job: %w", err)
	}

	c.Start()
	s.cron = c
	s.log.Info("draw scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckDraw makes sure the current draw record exists, then performs it
// once its scheduled time has passed. Called every minute; also usable
// directly by the admin endpoint.
func (s *Scheduler) CheckDraw(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	now := s.now()

	drawID, err := schedule.CurrentDrawID(now, s.cfg)
	if err != nil {
		s.log.WithError(err).Error("draw id computation failed")
		return
	}
	drawDate, err := schedule.NextDrawDate(now, s.cfg)
	if err != nil {
		s.log.WithError(err).Error("draw date computation failed")
		return
	}

	if err := s.ensureDraw(ctx, drawID, drawDate); err != nil {
		s.log.WithError(err).WithField("draw_id", drawID).Error("ensure draw failed")
		return
	}

	// NextDrawDate always points at the future, so the draw whose time has
	// passed is the one still recorded as pending with an earlier schedule.
	// Asking the store for the oldest such draw also catches up draws
	// missed during an outage, one per tick.
	pending, err := s.duePendingDraw(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("pending draw lookup failed")
		return
	}
	if pending == "" {
		return
	}

	s.log.WithField("draw_id", pending).Info("draw time reached, performing draw")
	if _, err := s.performer.Perform(ctx, pending); err != nil {
		if errors.Is(err, drawsvc.ErrTooManyJackpotWinners) {
			s.log.WithError(err).WithField("draw_id", pending).Error("draw needs manual resolution")
			return
		}
		s.log.WithError(err).WithField("draw_id", pending).Error("draw failed")
	}
}

// RunInstallments settles whatever payments have come due.
func (s *Scheduler) RunInstallments(ctx context.Context) {
	results, err := s.installments.ProcessDue(ctx)
	if err != nil {
		s.log.WithError(err).Error("installment processing failed")
		return
	}
	if len(results) > 0 {
		s.log.WithField("payments", len(results)).Info("installments settled")
	}
}

func (s *Scheduler) ensureDraw(ctx context.Context, drawID string, drawDate time.Time) error {
	_, err := s.draws.GetDraw(ctx, drawID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	_, err = s.draws.CreateDraw(ctx, lottery.Draw{DrawID: drawID, ScheduledFor: drawDate})
	if errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}

// duePendingDraw returns the id of the oldest pending draw whose scheduled
// time has passed, or "" when there is nothing to perform. Missed draws are
// performed in schedule order, oldest first.
func (s *Scheduler) duePendingDraw(ctx context.Context, now time.Time) (string, error) {
	draw, err := s.draws.OldestPendingDraw(ctx, now)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return draw.DrawID, nil
}

// cronLogger adapts the structured logger to cron's logging interface so
// recovered panics land in the normal log stream.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithField("details", keysAndValues).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithField("details", keysAndValues).Error(msg)
}
