// Package tiebreak resolves a two-winner jackpot with an opt-in coin flip:
// winner takes all if both parties agree, the pot splits in half if either
// declines, and nobody is paid if the offer expires unanswered.
package tiebreak

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ledgerdom "github.com/nightmarket/lottery-engine/internal/app/domain/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/domain/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
	"github.com/nightmarket/lottery-engine/pkg/rng"
)

var (
	// ErrRequestNotFound is returned for an unknown request id.
	ErrRequestNotFound = errors.New("tiebreak: request not found")
	// ErrAlreadyResolved is returned when the request reached a terminal state.
	ErrAlreadyResolved = errors.New("tiebreak: request already resolved")
	// ErrNotAParty is returned when the responder is not one of the winners.
	ErrNotAParty = errors.New("tiebreak: not a party to this request")
	// ErrRequestExpired is returned when the response window has closed.
	ErrRequestExpired = errors.New("tiebreak: request expired")
)

// Planner splits the pot when the coin flip is declined.
type Planner interface {
	Deliver(ctx context.Context, ownerID, drawID string, amount float64, choice string) error
}

// Service manages coin-flip requests.
type Service struct {
	cfg     config.LotteryConfig
	store   storage.CoinFlipStore
	funds   ledger.Ledger
	planner Planner
	log     *logger.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New creates a tiebreak service.
func New(cfg config.LotteryConfig, store storage.CoinFlipStore, funds ledger.Ledger, planner Planner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tiebreak")
	}
	return &Service{cfg: cfg, store: store, funds: funds, planner: planner, log: log, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateRequest opens a pending coin flip between two jackpot co-winners.
func (s *Service) CreateRequest(ctx context.Context, drawID, partyA, partyB string, amount float64) (tiebreak.CoinFlipRequest, error) {
	window := time.Duration(s.cfg.CoinFlipWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	req, err := s.store.CreateCoinFlip(ctx, tiebreak.CoinFlipRequest{
		DrawID:    drawID,
		PartyA:    partyA,
		PartyB:    partyB,
		Amount:    amount,
		ExpiresAt: s.now().Add(window),
	})
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}
	s.log.WithField("request_id", req.ID).WithField("draw_id", drawID).
		WithField("amount", amount).Info("coin flip request opened")
	return req, nil
}

// Get returns a request by id.
func (s *Service) Get(ctx context.Context, requestID string) (tiebreak.CoinFlipRequest, error) {
	req, err := s.store.GetCoinFlip(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return req, err
}

// Respond records one party's answer and resolves the request once the
// outcome is decided. Touching an expired request marks it expired as a
// side effect; an expired request pays nobody.
func (s *Service) Respond(ctx context.Context, requestID, ownerID string, agreed bool) (tiebreak.CoinFlipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.Get(ctx, requestID)
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}
	if req.Resolved() {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, requestID, req.Status)
	}
	if s.now().After(req.ExpiresAt) {
		req.Status = tiebreak.StatusExpired
		if _, err := s.store.UpdateCoinFlip(ctx, req); err != nil {
			return tiebreak.CoinFlipRequest{}, err
		}
		s.log.WithField("request_id", requestID).Warn("coin flip request expired unanswered")
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("%w: %s", ErrRequestExpired, requestID)
	}

	isParty, isA := req.Party(ownerID)
	if !isParty {
		return tiebreak.CoinFlipRequest{}, fmt.Errorf("%w: %s", ErrNotAParty, ownerID)
	}

	answer := tiebreak.AgreementAgreed
	if !agreed {
		answer = tiebreak.AgreementDeclined
	}
	if isA {
		req.AgreementA = answer
	} else {
		req.AgreementB = answer
	}

	switch {
	case !agreed:
		return s.resolveDeclined(ctx, req)
	case req.AgreementA == tiebreak.AgreementAgreed && req.AgreementB == tiebreak.AgreementAgreed:
		return s.resolveFlip(ctx, req)
	default:
		// First answer in; wait for the other party.
		return s.store.UpdateCoinFlip(ctx, req)
	}
}

// resolveDeclined splits the pot: half to each party through the planner.
func (s *Service) resolveDeclined(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	req.Status = tiebreak.StatusDeclined
	resolved := s.now()
	req.ResolvedAt = &resolved

	updated, err := s.store.UpdateCoinFlip(ctx, req)
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}

	half := req.Amount / 2
	for _, party := range []string{req.PartyA, req.PartyB} {
		if err := s.planner.Deliver(ctx, party, req.DrawID, half, ""); err != nil {
			s.log.WithError(err).WithField("owner_id", party).Error("half-pot delivery failed")
		}
	}
	s.log.WithField("request_id", req.ID).Info("coin flip declined, pot split")
	return updated, nil
}

// resolveFlip runs the 50/50 pick and credits the full pot to the winner.
func (s *Service) resolveFlip(ctx context.Context, req tiebreak.CoinFlipRequest) (tiebreak.CoinFlipRequest, error) {
	headsA, err := rng.CoinFlip()
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}
	winner := req.PartyB
	if headsA {
		winner = req.PartyA
	}

	req.Status = tiebreak.StatusCompleted
	req.WinnerID = winner
	resolved := s.now()
	req.ResolvedAt = &resolved

	updated, err := s.store.UpdateCoinFlip(ctx, req)
	if err != nil {
		return tiebreak.CoinFlipRequest{}, err
	}

	bal, err := s.funds.Credit(ctx, winner, req.Amount, ledgerdom.CurrencyCash)
	if err != nil {
		s.log.WithError(err).WithField("owner_id", winner).Error("coin flip payout failed")
		return updated, nil
	}
	_ = s.funds.LogTransaction(ctx, ledgerdom.Transaction{
		OwnerID:      winner,
		Kind:         ledgerdom.KindCoinFlip,
		Currency:     ledgerdom.CurrencyCash,
		Amount:       req.Amount,
		BalanceAfter: bal.Cash,
		Reference:    req.ID,
	})

	s.log.WithField("request_id", req.ID).WithField("winner_id", winner).Info("coin flip resolved")
	return updated, nil
}
