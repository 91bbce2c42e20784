package generation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/jet"
)

var (
	generationBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jetflow_generation_batches_total",
		Help: "Total number of generation batches sampled",
	})
	generatedJets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jetflow_generated_jets_total",
		Help: "Total number of jets sampled from generative models",
	})
	generationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jetflow_generation_seconds",
		Help:    "Wall time of full generation calls in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)

// Config contains the free-form generation options forwarded to the
// model's sampling procedure.
type Config struct {
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
	ODESolver string `json:"ode_solver" yaml:"ode_solver"`
	ODESteps  int    `json:"ode_steps" yaml:"ode_steps"`
}

// DefaultConfig returns the default generation configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: 1024,
		ODESolver: "midpoint",
		ODESteps:  100,
	}
}

// SampleRequest describes one batch of samples to draw from a model.
type SampleRequest struct {
	// NumSamples is the number of jets to sample.
	NumSamples int
	// Cond is the [n, C] conditioning tensor, nil when the model is
	// unconditional.
	Cond *tensor.Dense
	// Mask is the [n, P, 1] validity mask constraining jet sizes, nil for
	// fixed-size jets.
	Mask *tensor.Dense
	// Solver and Steps select the ODE integration scheme.
	Solver string
	Steps  int
	// Rand is the source of randomness; nil falls back to the global one.
	Rand *rand.Rand
}

// Model samples synthetic jets.
type Model interface {
	Sample(ctx context.Context, req SampleRequest) (*tensor.Dense, error)
}

// Loader reloads a model from a checkpoint path.
type Loader interface {
	Load(ckptPath string) (Model, error)
}

// Generate draws numSamples jets from the model in batches, undoes
// feature normalization when the model operates on standardized data,
// applies the validity mask, and returns the generated tensor together
// with the elapsed wall time.
func Generate(ctx context.Context, model Model, numSamples int, cond, mask *tensor.Dense,
	variableJetSizes, normalized bool, means, stds []float32, rng *rand.Rand, cfg Config) (*tensor.Dense, time.Duration, error) {

	if numSamples <= 0 {
		return nil, 0, fmt.Errorf("invalid sample count %d", numSamples)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	start := time.Now()
	var out []float32
	var jetShape []int

	for offset := 0; offset < numSamples; offset += batchSize {
		end := offset + batchSize
		if end > numSamples {
			end = numSamples
		}
		batchCond, err := sliceRows(cond, offset, end)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to slice conditioning batch: %w", err)
		}
		batchMask, err := sliceRows(mask, offset, end)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to slice mask batch: %w", err)
		}

		batch, err := model.Sample(ctx, SampleRequest{
			NumSamples: end - offset,
			Cond:       batchCond,
			Mask:       batchMask,
			Solver:     cfg.ODESolver,
			Steps:      cfg.ODESteps,
			Rand:       rng,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("sampling failed at offset %d: %w", offset, err)
		}

		shape := batch.Shape()
		if len(shape) != 3 {
			return nil, 0, fmt.Errorf("model returned tensor of shape %v, expected [n, P, F]", shape)
		}
		if jetShape == nil {
			jetShape = []int{shape[1], shape[2]}
		} else if shape[1] != jetShape[0] || shape[2] != jetShape[1] {
			return nil, 0, fmt.Errorf("model returned inconsistent jet shape %v, expected [n, %d, %d]",
				shape, jetShape[0], jetShape[1])
		}
		out = append(out, batch.Data().([]float32)...)

		generationBatches.Inc()
		generatedJets.Add(float64(end - offset))
	}

	generated := tensor.New(
		tensor.WithShape(numSamples, jetShape[0], jetShape[1]),
		tensor.WithBacking(out),
	)

	if normalized {
		if err := jet.DenormalizeTensor(generated, means, stds); err != nil {
			return nil, 0, err
		}
	}
	if variableJetSizes && mask != nil {
		applyMask(generated, mask)
	}

	elapsed := time.Since(start)
	generationSeconds.Observe(elapsed.Seconds())
	log.Debug().
		Int("num_samples", numSamples).
		Dur("elapsed", elapsed).
		Str("solver", cfg.ODESolver).
		Msg("generation finished")
	return generated, elapsed, nil
}

// sliceRows returns rows [from, to) of t along the first axis.
func sliceRows(t *tensor.Dense, from, to int) (*tensor.Dense, error) {
	if t == nil {
		return nil, nil
	}
	if from == 0 && to >= t.Shape()[0] {
		return t, nil
	}
	view, err := t.Slice(tensor.S(from, to))
	if err != nil {
		return nil, err
	}
	return view.Materialize().(*tensor.Dense), nil
}

// applyMask zeroes the features of particles the mask marks invalid.
func applyMask(jets, mask *tensor.Dense) {
	shape := jets.Shape()
	n, p, f := shape[0], shape[1], shape[2]
	data := jets.Data().([]float32)
	maskData := mask.Data().([]float32)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if maskData[i*p+j] > 0 {
				continue
			}
			base := (i*p + j) * f
			for k := 0; k < f; k++ {
				data[base+k] = 0
			}
		}
	}
}
