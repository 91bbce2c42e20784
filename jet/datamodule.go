package jet

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Split identifies which dataset split to evaluate on.
type Split string

const (
	SplitTest Split = "test"
	SplitVal  Split = "val"
)

// SplitTensors holds the particle clouds of one dataset split.
// Data is [N, P, F] (eta_rel, phi_rel, pt_rel per particle), Mask is
// [N, P, 1] with 1 for valid particles, Cond is [N, C] per-jet
// conditioning features.
type SplitTensors struct {
	Data *tensor.Dense
	Mask *tensor.Dense
	Cond *tensor.Dense
}

// Len returns the number of jets in the split.
func (s *SplitTensors) Len() int {
	if s.Data == nil {
		return 0
	}
	return s.Data.Shape()[0]
}

// DataModule exposes the dataset splits and the statistics the
// generation and evaluation paths need.
type DataModule struct {
	Test SplitTensors
	Val  SplitTensors

	// Per particle-feature statistics used for (de)normalization.
	Means []float32
	Stds  []float32

	// Per conditioning-feature statistics.
	CondMeans []float32
	CondStds  []float32

	NumCondFeatures  int
	NumParticles     int // maximum particles per jet
	VariableJetSizes bool
	Normalize        bool
}

// SplitTensors returns the tensors of the requested split.
func (dm *DataModule) SplitTensors(split Split) (*SplitTensors, error) {
	switch split {
	case SplitTest:
		return &dm.Test, nil
	case SplitVal:
		return &dm.Val, nil
	default:
		return nil, fmt.Errorf("unknown dataset split %q", split)
	}
}

// SliceJets returns the first n jets of t as a fresh dense tensor. When n
// is larger than the number of jets the full tensor is returned.
func SliceJets(t *tensor.Dense, n int) (*tensor.Dense, error) {
	if t.Shape()[0] <= n {
		return t, nil
	}
	view, err := t.Slice(tensor.S(0, n))
	if err != nil {
		return nil, fmt.Errorf("failed to slice jets: %w", err)
	}
	return view.Materialize().(*tensor.Dense), nil
}

// RepeatJets repeats every jet of t k times along the first axis, so a
// tensor of N jets becomes one of N*k jets.
func RepeatJets(t *tensor.Dense, k int) (*tensor.Dense, error) {
	if k <= 1 {
		return t, nil
	}
	out, err := tensor.Repeat(t, 0, k)
	if err != nil {
		return nil, fmt.Errorf("failed to repeat jets: %w", err)
	}
	return out.(*tensor.Dense), nil
}
