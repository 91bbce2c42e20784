package training

import (
	"context"
	"fmt"

	"github.com/deepjets/jetflow/checkpoints"
	"github.com/deepjets/jetflow/generation"
	"github.com/deepjets/jetflow/jet"
	"github.com/deepjets/jetflow/tracking"
)

// Trainer is the harness the evaluation callbacks run inside. It wires
// the dataset, the checkpoint selectors of the training run, the active
// experiment loggers and the model loader together.
type Trainer struct {
	DataModule          *jet.DataModule
	CheckpointSelectors []checkpoints.Selector
	Loggers             []tracking.Logger
	ModelLoader         generation.Loader
	Callbacks           []Callback
}

// RunTest drives the test-phase lifecycle: every callback's
// OnTestStart, then every callback's OnTestEnd, strictly in sequence.
func (t *Trainer) RunTest(ctx context.Context) error {
	if t.DataModule == nil {
		return fmt.Errorf("trainer has no datamodule")
	}
	for _, cb := range t.Callbacks {
		if err := cb.OnTestStart(ctx, t); err != nil {
			return fmt.Errorf("test start failed: %w", err)
		}
	}
	for _, cb := range t.Callbacks {
		if err := cb.OnTestEnd(ctx, t); err != nil {
			return fmt.Errorf("test end failed: %w", err)
		}
	}
	return nil
}
