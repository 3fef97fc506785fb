package app

import (
	"context"
	"fmt"
	"time"

	drawsvc "github.com/nightmarket/lottery-engine/internal/app/services/draw"
	ledgersvc "github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	payoutsvc "github.com/nightmarket/lottery-engine/internal/app/services/payout"
	schedulersvc "github.com/nightmarket/lottery-engine/internal/app/services/scheduler"
	ticketsvc "github.com/nightmarket/lottery-engine/internal/app/services/tickets"
	tiebreaksvc "github.com/nightmarket/lottery-engine/internal/app/services/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/app/storage/memory"
	"github.com/nightmarket/lottery-engine/internal/app/system"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Draws        storage.DrawStore
	Tickets      storage.TicketStore
	Jackpot      storage.JackpotStore
	Installments storage.InstallmentStore
	CoinFlips    storage.CoinFlipStore
	Ledger       storage.LedgerStore
}

// Application ties the lottery services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Config    config.Config
	Ledger    *ledgersvc.Service
	Tickets   *ticketsvc.Service
	Draw      *drawsvc.Service
	TieBreak  *tiebreaksvc.Service
	Payout    *payoutsvc.Service
	Runner    *payoutsvc.Runner
	Scheduler *schedulersvc.Scheduler

	Draws   storage.DrawStore
	Jackpot storage.JackpotStore
}

// New builds a fully initialised application with the provided stores.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New(cfg.Lottery.InitialJackpot)
	if stores.Draws == nil {
		stores.Draws = mem
	}
	if stores.Tickets == nil {
		stores.Tickets = mem
	}
	if stores.Jackpot == nil {
		stores.Jackpot = mem
	}
	if stores.Installments == nil {
		stores.Installments = mem
	}
	if stores.CoinFlips == nil {
		stores.CoinFlips = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}

	manager := system.NewManager()

	ledgerService := ledgersvc.New(stores.Ledger, log)
	payoutService := payoutsvc.New(cfg.Lottery, stores.Installments, ledgerService, log)
	tiebreakService := tiebreaksvc.New(cfg.Lottery, stores.CoinFlips, ledgerService, payoutService, log)
	ticketService := ticketsvc.New(cfg.Lottery, stores.Draws, stores.Tickets, stores.Jackpot, ledgerService, log)
	drawService := drawsvc.New(cfg.Lottery, stores.Draws, stores.Tickets, stores.Jackpot, ledgerService, payoutService, tiebreakService, log)

	runner := payoutsvc.NewRunner(cfg.Lottery, stores.Installments, ledgerService, time.Hour, log)
	sched := schedulersvc.New(cfg.Lottery, stores.Draws, drawService, runner, log)

	for _, svc := range []system.Service{runner, sched} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Config:    cfg,
		Ledger:    ledgerService,
		Tickets:   ticketService,
		Draw:      drawService,
		TieBreak:  tiebreakService,
		Payout:    payoutService,
		Runner:    runner,
		Scheduler: sched,
		Draws:     stores.Draws,
		Jackpot:   stores.Jackpot,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
