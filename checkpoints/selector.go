package checkpoints

import (
	"errors"
	"fmt"
)

// ErrNotEMAAware is returned when EMA weights are requested from a
// checkpoint selector that does not track EMA checkpoints.
var ErrNotEMAAware = errors.New("checkpoints: EMA weights requested but checkpoint selector is not EMA-aware")

// Selector describes one way of choosing a checkpoint path for final
// evaluation. Exactly one of the three variants applies per resolution:
// an explicit path overrides everything, otherwise the last or best
// checkpoint (optionally the EMA variant) is selected.
type Selector interface {
	// resolve returns the checkpoint path for the given flags.
	resolve(useEMA, useLast bool) (string, error)
}

// ExplicitCheckpoint selects a fixed checkpoint path regardless of any
// other flags.
type ExplicitCheckpoint struct {
	Path string
}

func (s ExplicitCheckpoint) resolve(useEMA, useLast bool) (string, error) {
	return s.Path, nil
}

// PlainCheckpoint tracks the most recent and the best-scoring checkpoint
// of a training run.
type PlainCheckpoint struct {
	Last string
	Best string
}

func (s PlainCheckpoint) resolve(useEMA, useLast bool) (string, error) {
	if useEMA {
		return "", ErrNotEMAAware
	}
	if useLast {
		return s.Last, nil
	}
	return s.Best, nil
}

// EMACheckpoint tracks last/best checkpoints together with their
// EMA-averaged counterparts.
type EMACheckpoint struct {
	Last    string
	Best    string
	LastEMA string
	BestEMA string
}

func (s EMACheckpoint) resolve(useEMA, useLast bool) (string, error) {
	switch {
	case useEMA && useLast:
		return s.LastEMA, nil
	case useEMA:
		return s.BestEMA, nil
	case useLast:
		return s.Last, nil
	default:
		return s.Best, nil
	}
}

// Resolve applies the checkpoint selection precedence: explicit path
// first, then EMA-aware lookup, then plain lookup. It returns
// ErrNotEMAAware when useEMA is set but the selector carries no EMA
// checkpoints.
func Resolve(sel Selector, useEMA, useLast bool) (string, error) {
	if sel == nil {
		return "", fmt.Errorf("checkpoints: no selector configured")
	}
	path, err := sel.resolve(useEMA, useLast)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("checkpoints: selector resolved to an empty path")
	}
	return path, nil
}
