// Package runtime assembles the engine from configuration: store
// selection, service wiring, the HTTP server and graceful shutdown.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/nightmarket/lottery-engine/internal/app"
	"github.com/nightmarket/lottery-engine/internal/app/httpapi"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/internal/app/storage/postgres"
	"github.com/nightmarket/lottery-engine/internal/config"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sqlx.DB
}

// NewApplication constructs an application instance with default wiring:
// configuration from file/env, postgres when a DSN is configured and the
// in-memory store otherwise.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig wires an application from an explicit config.
func NewApplicationWithConfig(cfg config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Module: "runtime",
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		return nil, err
	}

	handler, err := httpapi.NewHandler(application, log)
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		db:         db,
	}, nil
}

// Run starts the background services and the HTTP server, then blocks
// until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the background services and
// the database connection.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http server shutdown failed")
	}

	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("service shutdown failed")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

// buildStores selects the persistence backend. An empty DSN runs the
// engine on the in-memory store, which suits development and tests.
func buildStores(cfg config.Config, log *logger.Logger) (app.Stores, *sqlx.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, using in-memory store")
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	if err := seedJackpot(context.Background(), store, cfg.Lottery.InitialJackpot, log); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("seed jackpot: %w", err)
	}
	return app.Stores{
		Draws:        store,
		Tickets:      store,
		Jackpot:      store,
		Installments: store,
		CoinFlips:    store,
		Ledger:       store,
	}, db, nil
}

// seedJackpot puts the configured initial jackpot into a pool that has
// never moved. The migrations create the row empty; a pool with any amount
// or streak on it already reflects live play and is left alone.
func seedJackpot(ctx context.Context, pool storage.JackpotStore, initial float64, log *logger.Logger) error {
	current, err := pool.GetJackpot(ctx)
	if err != nil {
		return err
	}
	if current.Amount != 0 || current.NoWinnerStreak != 0 {
		return nil
	}
	if _, err := pool.SetJackpot(ctx, initial); err != nil {
		return err
	}
	log.WithField("amount", initial).Info("jackpot pool seeded")
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
