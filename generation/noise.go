package generation

import (
	"context"
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/checkpoints"
	"github.com/deepjets/jetflow/jet"
)

// NoiseModel is a baseline sampler drawing masked Gaussian particle
// clouds. It stands in for a trained generative model in smoke tests and
// pipeline checks.
type NoiseModel struct {
	// Means and Stds parameterize the per-feature Gaussians.
	Means []float32
	Stds  []float32
	// NumParticles is the jet size used when no mask is supplied.
	NumParticles int
}

// Sample draws req.NumSamples Gaussian jets honoring the request mask.
func (m *NoiseModel) Sample(ctx context.Context, req SampleRequest) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.NumSamples <= 0 {
		return nil, fmt.Errorf("invalid sample count %d", req.NumSamples)
	}

	p := m.NumParticles
	var maskData []float32
	if req.Mask != nil {
		p = req.Mask.Shape()[1]
		maskData = req.Mask.Data().([]float32)
	}
	if p <= 0 {
		return nil, fmt.Errorf("noise model has no jet size and no mask was supplied")
	}

	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	f := jet.NumFeatures
	backing := make([]float32, req.NumSamples*p*f)
	for i := 0; i < req.NumSamples; i++ {
		for j := 0; j < p; j++ {
			if maskData != nil && maskData[i*p+j] <= 0 {
				continue
			}
			base := (i*p + j) * f
			for k := 0; k < f; k++ {
				v := float32(rng.NormFloat64())
				if k < len(m.Stds) {
					v *= m.Stds[k]
				}
				if k < len(m.Means) {
					v += m.Means[k]
				}
				if k == jet.FeatPt && v <= 0 {
					v = -v + 1e-6
				}
				backing[base+k] = v
			}
		}
	}
	return tensor.New(tensor.WithShape(req.NumSamples, p, f), tensor.WithBacking(backing)), nil
}

// NoiseLoader loads a checkpoint for validation and returns a baseline
// noise model with the given feature statistics.
type NoiseLoader struct {
	Means        []float32
	Stds         []float32
	NumParticles int
}

// Load reads the checkpoint to validate it and returns the noise model.
func (l *NoiseLoader) Load(ckptPath string) (Model, error) {
	saver := checkpoints.NewCheckpointSaver()
	if _, err := saver.LoadCheckpoint(ckptPath); err != nil {
		return nil, fmt.Errorf("failed to reload checkpoint %s: %w", ckptPath, err)
	}
	return &NoiseModel{
		Means:        l.Means,
		Stds:         l.Stds,
		NumParticles: l.NumParticles,
	}, nil
}
