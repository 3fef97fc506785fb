// Package tickets sells entries into the current draw.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/metrics"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/services/schedule"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

var (
	// ErrDisabled is returned when ticket sales are switched off.
	ErrDisabled = errors.New("tickets: lottery disabled")
	// ErrInvalidCount is returned when the pick has the wrong number of values.
	ErrInvalidCount = errors.New("tickets: wrong number of picks")
	// ErrDuplicateNumber is returned when the pick repeats a value.
	ErrDuplicateNumber = errors.New("tickets: duplicate number")
	// ErrOutOfRange is returned when a pick falls outside the valid range.
	ErrOutOfRange = errors.New("tickets: number out of range")
	// ErrQuotaExceeded is returned when the owner is at the per-draw limit.
	ErrQuotaExceeded = errors.New("tickets: ticket limit reached for this draw")
	// ErrDrawClosed is returned when the target draw is already completed.
	ErrDrawClosed = errors.New("tickets: draw already completed")
)

// Service sells and lists tickets.
type Service struct {
	cfg     config.LotteryConfig
	draws   storage.DrawStore
	tickets storage.TicketStore
	jackpot storage.JackpotStore
	funds   ledger.Ledger
	log     *logger.Logger
	now     func() time.Time
}

// New creates a ticket service.
func New(cfg config.LotteryConfig, draws storage.DrawStore, tickets storage.TicketStore, jackpot storage.JackpotStore, funds ledger.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tickets")
	}
	return &Service{
		cfg:     cfg,
		draws:   draws,
		tickets: tickets,
		jackpot: jackpot,
		funds:   funds,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ValidateNumbers checks a pick against the configured count and range.
func (s *Service) ValidateNumbers(numbers []int) error {
	return ValidateNumbers(numbers, s.cfg.NumbersToPick, s.cfg.NumberRangeMax)
}

// ValidateNumbers checks that numbers holds exactly pickCount distinct
// values within [1, maxNumber].
func ValidateNumbers(numbers []int, pickCount, maxNumber int) error {
	if len(numbers) != pickCount {
		return fmt.Errorf("%w: need %d, got %d", ErrInvalidCount, pickCount, len(numbers))
	}
	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > maxNumber {
			return fmt.Errorf("%w: %d not in [1, %d]", ErrOutOfRange, n, maxNumber)
		}
		if seen[n] {
			return fmt.Errorf("%w: %d", ErrDuplicateNumber, n)
		}
		seen[n] = true
	}
	return nil
}

// Buy sells one ticket for the current draw: validates the pick, enforces
// the per-draw quota, debits the ticket price, contributes the configured
// share to the jackpot pool and persists the ticket.
func (s *Service) Buy(ctx context.Context, ownerID string, numbers []int) (lottery.Ticket, error) {
	if !s.cfg.Enabled {
		return lottery.Ticket{}, ErrDisabled
	}
	if err := s.ValidateNumbers(numbers); err != nil {
		return lottery.Ticket{}, err
	}

	drawID, err := schedule.CurrentDrawID(s.now(), s.cfg)
	if err != nil {
		return lottery.Ticket{}, err
	}
	if err := s.ensureOpenDraw(ctx, drawID); err != nil {
		return lottery.Ticket{}, err
	}

	count, err := s.tickets.CountTicketsByOwner(ctx, drawID, ownerID)
	if err != nil {
		return lottery.Ticket{}, err
	}
	if count >= s.cfg.MaxTicketsPerUser {
		return lottery.Ticket{}, fmt.Errorf("%w: %d of %d", ErrQuotaExceeded, count, s.cfg.MaxTicketsPerUser)
	}

	bal, err := s.funds.Debit(ctx, ownerID, s.cfg.TicketPrice, ledgerdom.CurrencyCash)
	if err != nil {
		return lottery.Ticket{}, err
	}

	contribution := s.cfg.TicketPrice * s.cfg.JackpotContributionPercent / 100
	pool, err := s.jackpot.AddToJackpot(ctx, contribution)
	if err != nil {
		// The player already paid; surface the error loudly.
		s.log.WithError(err).WithField("owner_id", ownerID).Error("jackpot contribution failed after debit")
		return lottery.Ticket{}, err
	}

	ticket, err := s.tickets.CreateTicket(ctx, lottery.Ticket{
		DrawID:  drawID,
		OwnerID: ownerID,
		Numbers: numbers,
		Price:   s.cfg.TicketPrice,
	})
	if err != nil {
		return lottery.Ticket{}, err
	}

	_ = s.funds.LogTransaction(ctx, ledgerdom.Transaction{
		OwnerID:      ownerID,
		Kind:         ledgerdom.KindTicketPurchase,
		Currency:     ledgerdom.CurrencyCash,
		Amount:       -s.cfg.TicketPrice,
		BalanceAfter: bal.Cash,
		Reference:    ticket.ID,
	})

	metrics.RecordTicketSold()
	metrics.SetJackpotAmount(pool.Amount)
	s.log.WithField("owner_id", ownerID).WithField("draw_id", drawID).
		WithField("jackpot", pool.Amount).Info("ticket sold")
	return ticket, nil
}

// TicketsFor lists the owner's tickets in the current draw.
func (s *Service) TicketsFor(ctx context.Context, ownerID string) ([]lottery.Ticket, error) {
	drawID, err := schedule.CurrentDrawID(s.now(), s.cfg)
	if err != nil {
		return nil, err
	}
	return s.tickets.TicketsByOwner(ctx, drawID, ownerID)
}

// ensureOpenDraw creates the pending draw record on first sale and rejects
// sales into a completed draw.
func (s *Service) ensureOpenDraw(ctx context.Context, drawID string) error {
	draw, err := s.draws.GetDraw(ctx, drawID)
	if errors.Is(err, storage.ErrNotFound) {
		scheduled, dateErr := schedule.NextDrawDate(s.now(), s.cfg)
		if dateErr != nil {
			return dateErr
		}
		_, err = s.draws.CreateDraw(ctx, lottery.Draw{DrawID: drawID, ScheduledFor: scheduled})
		if errors.Is(err, storage.ErrConflict) {
			// Another purchase created it first.
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	if draw.Completed() {
		return fmt.Errorf("%w: %s", ErrDrawClosed, drawID)
	}
	return nil
}
