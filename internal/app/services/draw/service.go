// Package draw performs the monthly draw: winning numbers, ticket scoring,
// prize routing and the progressive forced-winner policy.
package draw

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/domain/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/metrics"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
	"github.com/nightmarket/lottery-engine/pkg/rng"
)

var (
	// ErrDrawNotFound is returned when the draw id is unknown.
	ErrDrawNotFound = errors.New("draw: not found")
	// ErrTooManyJackpotWinners is returned when more than two tickets hit
	// the jackpot in one draw. The draw completes and every winner is
	// recorded, but the pot is held for manual resolution.
	ErrTooManyJackpotWinners = errors.New("draw: more than two jackpot winners, pot held for manual resolution")
)

// Planner delivers a jackpot to a single winner.
type Planner interface {
	Deliver(ctx context.Context, ownerID, drawID string, amount float64, choice string) error
}

// TieBreaker opens a coin-flip request between two jackpot co-winners.
type TieBreaker interface {
	CreateRequest(ctx context.Context, drawID, partyA, partyB string, amount float64) (tiebreak.CoinFlipRequest, error)
}

// Service runs draws.
type Service struct {
	cfg       config.LotteryConfig
	draws     storage.DrawStore
	tickets   storage.TicketStore
	jackpot   storage.JackpotStore
	funds     ledger.Ledger
	planner   Planner
	tiebreak  TieBreaker
	log       *logger.Logger
	now       func() time.Time
	numbers   func() ([]int, error)
	performMu sync.Mutex
}

// New creates a draw service.
func New(cfg config.LotteryConfig, draws storage.DrawStore, tickets storage.TicketStore, jackpot storage.JackpotStore, funds ledger.Ledger, planner Planner, tb TieBreaker, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("draw")
	}
	return &Service{
		cfg:      cfg,
		draws:    draws,
		tickets:  tickets,
		jackpot:  jackpot,
		funds:    funds,
		planner:  planner,
		tiebreak: tb,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithNumberSource overrides winning-number generation. Test hook.
func (s *Service) WithNumberSource(numbers func() ([]int, error)) *Service {
	s.numbers = numbers
	return s
}

// GenerateWinningNumbers draws the configured count of distinct numbers
// from a cryptographically strong source, sorted ascending.
func (s *Service) GenerateWinningNumbers() ([]int, error) {
	if s.numbers != nil {
		return s.numbers()
	}
	return rng.DistinctInts(s.cfg.NumbersToPick, s.cfg.NumberRangeMax)
}

// CountMatches returns the size of the intersection of two picks.
func CountMatches(a, b []int) int {
	set := make(map[int]bool, len(a))
	for _, n := range a {
		set[n] = true
	}
	matches := 0
	for _, n := range b {
		if set[n] {
			matches++
		}
	}
	return matches
}

// CalculatePrize resolves a match count against the tier table.
func (s *Service) CalculatePrize(matches int, jackpotAmount float64) (string, float64) {
	tier, ok := s.cfg.PrizeTiers[matches]
	if !ok {
		return lottery.PrizeTypeNone, 0
	}
	switch tier {
	case "jackpot":
		return lottery.PrizeTypeJackpot, jackpotAmount
	case "free_ticket":
		return lottery.PrizeTypeFreeTicket, s.cfg.TicketPrice
	default:
		amount, err := strconv.ParseFloat(tier, 64)
		if err != nil || amount <= 0 {
			return lottery.PrizeTypeNone, 0
		}
		return lottery.PrizeTypeCash, amount
	}
}

// ShouldForceWinner applies the progressive-odds policy: no forcing on a
// fresh pot, a configured boost after one winnerless month, a guaranteed
// winner once the streak reaches the configured threshold.
func (s *Service) ShouldForceWinner(streak int) (bool, float64) {
	if !s.cfg.Progressive.Enabled || streak <= 0 {
		return false, 0
	}
	if streak >= s.cfg.Progressive.ForceWinnerAfterMonths {
		return true, 1.0
	}
	return true, s.cfg.Progressive.Month1NoWinnerBoost
}

// Perform runs the draw to completion. It is idempotent: a draw that is
// already completed returns its recorded outcome without paying anything
// again, and two concurrent runs are serialized by the store's conditional
// completion so exactly one of them pays.
func (s *Service) Perform(ctx context.Context, drawID string) (lottery.DrawResult, error) {
	s.performMu.Lock()
	defer s.performMu.Unlock()

	draw, err := s.draws.GetDraw(ctx, drawID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return lottery.DrawResult{}, fmt.Errorf("%w: %s", ErrDrawNotFound, drawID)
		}
		return lottery.DrawResult{}, err
	}
	if draw.Completed() {
		return resultFromRecord(draw), nil
	}

	tickets, err := s.tickets.TicketsByDraw(ctx, drawID)
	if err != nil {
		return lottery.DrawResult{}, err
	}
	pool, err := s.jackpot.GetJackpot(ctx)
	if err != nil {
		return lottery.DrawResult{}, err
	}

	winningNumbers, err := s.GenerateWinningNumbers()
	if err != nil {
		return lottery.DrawResult{}, err
	}

	winners, jackpotShares := s.scoreTickets(tickets, winningNumbers, pool.Amount)

	forced := false
	if len(jackpotShares) == 0 && len(tickets) > 0 {
		record, didForce, err := s.maybeForceWinner(tickets, pool)
		if err != nil {
			return lottery.DrawResult{}, err
		}
		if didForce {
			winners = append(winners, record)
			jackpotShares = append(jackpotShares, record)
			forced = true
		}
	}

	completed, err := s.draws.CompleteDraw(ctx, drawID, winningNumbers, winners, pool.Amount, pool.NoWinnerStreak, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent run finished first; hand back its outcome.
			existing, getErr := s.draws.GetDraw(ctx, drawID)
			if getErr != nil {
				return lottery.DrawResult{}, getErr
			}
			return resultFromRecord(existing), nil
		}
		return lottery.DrawResult{}, err
	}

	// From here the draw record is final. Payout failures are logged, never
	// allowed to undo the draw.
	s.payMinorPrizes(ctx, drawID, winners)

	result := lottery.DrawResult{
		Draw:          completed,
		JackpotWon:    len(jackpotShares) > 0,
		JackpotShares: jackpotShares,
		ForcedWinner:  forced,
	}

	switch {
	case len(jackpotShares) == 0:
		if _, err := s.jackpot.RolloverJackpot(ctx); err != nil {
			s.log.WithError(err).WithField("draw_id", drawID).Error("jackpot rollover failed")
		}
		result.RolledOver = true
		metrics.RecordDrawCompleted("rollover", false)
		s.log.WithField("draw_id", drawID).WithField("jackpot", pool.Amount).Info("no jackpot winner, pot rolls over")

	case len(jackpotShares) > 2:
		// Held for manual resolution: no reset, no rollover, nobody paid.
		metrics.RecordDrawCompleted("held", forced)
		s.log.WithField("draw_id", drawID).WithField("winners", len(jackpotShares)).
			Error("more than two jackpot winners, pot held")
		return result, ErrTooManyJackpotWinners

	default:
		if pool, err := s.jackpot.ResetJackpot(ctx, s.cfg.InitialJackpot); err != nil {
			s.log.WithError(err).WithField("draw_id", drawID).Error("jackpot reset failed")
		} else {
			metrics.SetJackpotAmount(pool.Amount)
		}
		metrics.RecordDrawCompleted("won", forced)
		if len(jackpotShares) == 1 {
			winner := jackpotShares[0]
			if err := s.planner.Deliver(ctx, winner.OwnerID, drawID, pool.Amount, ""); err != nil {
				s.log.WithError(err).WithField("owner_id", winner.OwnerID).Error("jackpot delivery failed")
			}
		} else {
			req, err := s.tiebreak.CreateRequest(ctx, drawID, jackpotShares[0].OwnerID, jackpotShares[1].OwnerID, pool.Amount)
			if err != nil {
				s.log.WithError(err).WithField("draw_id", drawID).Error("coin flip creation failed")
			} else {
				s.log.WithField("draw_id", drawID).WithField("request_id", req.ID).Info("two jackpot winners, coin flip opened")
			}
		}
	}

	s.log.WithField("draw_id", drawID).WithField("winners", len(winners)).
		WithField("forced", forced).Info("draw completed")
	return result, nil
}

func (s *Service) scoreTickets(tickets []lottery.Ticket, winningNumbers []int, jackpotAmount float64) ([]lottery.WinRecord, []lottery.WinRecord) {
	var winners, jackpotShares []lottery.WinRecord
	for _, ticket := range tickets {
		matches := CountMatches(winningNumbers, ticket.Numbers)
		prizeType, amount := s.CalculatePrize(matches, jackpotAmount)
		if prizeType == lottery.PrizeTypeNone {
			continue
		}
		record := lottery.WinRecord{
			TicketID:  ticket.ID,
			OwnerID:   ticket.OwnerID,
			Matches:   matches,
			PrizeType: prizeType,
			Amount:    amount,
		}
		winners = append(winners, record)
		if prizeType == lottery.PrizeTypeJackpot {
			jackpotShares = append(jackpotShares, record)
		}
	}
	return winners, jackpotShares
}

func (s *Service) maybeForceWinner(tickets []lottery.Ticket, pool lottery.JackpotPool) (lottery.WinRecord, bool, error) {
	force, probability := s.ShouldForceWinner(pool.NoWinnerStreak)
	if !force {
		return lottery.WinRecord{}, false, nil
	}
	if probability < 1 {
		roll, err := rng.Float64()
		if err != nil {
			return lottery.WinRecord{}, false, err
		}
		if roll >= probability {
			return lottery.WinRecord{}, false, nil
		}
	}

	idx, err := rng.Intn(len(tickets))
	if err != nil {
		return lottery.WinRecord{}, false, err
	}
	ticket := tickets[idx]
	return lottery.WinRecord{
		TicketID:  ticket.ID,
		OwnerID:   ticket.OwnerID,
		Matches:   len(ticket.Numbers),
		PrizeType: lottery.PrizeTypeJackpot,
		Amount:    pool.Amount,
		Note:      "Progressive guaranteed win",
	}, true, nil
}

// payMinorPrizes credits cash and free-ticket prizes immediately. A free
// ticket pays the ticket price in cash, same as the fixed tiers. One
// winner's credit failing must not block the rest.
func (s *Service) payMinorPrizes(ctx context.Context, drawID string, winners []lottery.WinRecord) {
	for _, winner := range winners {
		switch winner.PrizeType {
		case lottery.PrizeTypeCash, lottery.PrizeTypeFreeTicket:
		default:
			continue
		}

		bal, err := s.funds.Credit(ctx, winner.OwnerID, winner.Amount, ledgerdom.CurrencyCash)
		if err != nil {
			s.log.WithError(err).WithField("owner_id", winner.OwnerID).
				WithField("amount", winner.Amount).Error("prize credit failed")
			continue
		}
		_ = s.funds.LogTransaction(ctx, ledgerdom.Transaction{
			OwnerID:      winner.OwnerID,
			Kind:         ledgerdom.KindPrize,
			Currency:     ledgerdom.CurrencyCash,
			Amount:       winner.Amount,
			BalanceAfter: bal.Cash,
			Reference:    drawID,
		})
	}
}

func resultFromRecord(draw lottery.Draw) lottery.DrawResult {
	result := lottery.DrawResult{Draw: draw}
	for _, winner := range draw.Winners {
		if winner.PrizeType == lottery.PrizeTypeJackpot {
			result.JackpotWon = true
			result.JackpotShares = append(result.JackpotShares, winner)
			if winner.Note != "" {
				result.ForcedWinner = true
			}
		}
	}
	result.RolledOver = !result.JackpotWon
	return result
}
