package training

import "context"

// Callback receives trainer lifecycle events around the test phase.
type Callback interface {
	// OnTestStart runs when the test phase begins.
	OnTestStart(ctx context.Context, t *Trainer) error
	// OnTestEnd runs after the test phase completes.
	OnTestEnd(ctx context.Context, t *Trainer) error
}
