package system

import "context"

// Service is a long-running engine component with an explicit lifecycle.
// The installment runner and the draw scheduler implement it so the manager
// can bring the engine's background work up and down in a deterministic
// order around the HTTP server.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
