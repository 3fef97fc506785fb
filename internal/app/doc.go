// Package app composes the lottery engine: it wires the services to
// their stores and manages their lifecycle. It holds no business logic
// of its own.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── lottery/        # Draws, tickets, the jackpot pool
//	│   ├── payout/         # Installment plans and payment results
//	│   ├── tiebreak/       # Coin-flip requests
//	│   └── ledger/         # Balances and transaction entries
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # Per-area store interfaces + error sentinels
//	│   ├── memory/         # In-memory implementation for dev and tests
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic, one package per concern
//	│   ├── schedule/       # Draw and payment date arithmetic
//	│   ├── tickets/        # Ticket sales
//	│   ├── draw/           # Draw execution and prize routing
//	│   ├── tiebreak/       # Two-winner coin flip
//	│   ├── payout/         # Jackpot delivery + installment runner
//	│   ├── scheduler/      # Cron-driven draw and installment jobs
//	│   └── ledger/         # Reference funding implementation
//	├── httpapi/            # REST handlers, middleware, admin audit
//	├── system/             # Service lifecycle interface + Manager
//	├── metrics/            # Prometheus collectors and instrumentation
//	└── runtime/            # Config-driven assembly and the HTTP server
//
// # Dependency Direction
//
// cmd/server depends on runtime, runtime on app, app on services, and
// services only on domain, storage interfaces and the ledger interface.
// Services never import each other's concrete types directly; where one
// needs another (the draw engine needs payout delivery and tie-breaking)
// it declares a small consumer interface that the concrete service
// satisfies, and application.go connects them.
package app
