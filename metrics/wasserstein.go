package metrics

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/jet"
)

// Config controls the batched Wasserstein distance computation.
type Config struct {
	// NumEvalSamples is the number of samples drawn from each population
	// per batch.
	NumEvalSamples int `json:"num_eval_samples" yaml:"num_eval_samples"`
	// NumBatches is the number of bootstrap batches.
	NumBatches int `json:"num_batches" yaml:"num_batches"`
	// JetFeatures are the per-jet observables compared by AllDistances.
	JetFeatures []string `json:"jet_features" yaml:"jet_features"`
}

// DefaultConfig returns the default distance configuration.
func DefaultConfig() Config {
	return Config{
		NumEvalSamples: 50000,
		NumBatches:     40,
		JetFeatures:    []string{"pt", "mass", "mult"},
	}
}

// Distance computes the exact 1-D Wasserstein-1 distance between two
// empirical distributions.
func Distance(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)

	all := make([]float64, 0, len(as)+len(bs))
	all = append(all, as...)
	all = append(all, bs...)
	sort.Float64s(all)

	var dist float64
	var i, j int
	for k := 0; k < len(all)-1; k++ {
		for i < len(as) && as[i] <= all[k] {
			i++
		}
		for j < len(bs) && bs[j] <= all[k] {
			j++
		}
		cdfA := float64(i) / float64(len(as))
		cdfB := float64(j) / float64(len(bs))
		width := all[k+1] - all[k]
		diff := cdfA - cdfB
		if diff < 0 {
			diff = -diff
		}
		dist += diff * width
	}
	return dist
}

// DistanceBatched computes the Wasserstein-1 distance between two 1-D
// observable arrays in a batched, bootstrapped fashion and returns the
// mean and standard deviation over the batches.
func DistanceBatched(rng *rand.Rand, a, b []float64, cfg Config) (mean, std float64) {
	if len(a) == 0 || len(b) == 0 || cfg.NumBatches <= 0 {
		return 0, 0
	}
	dists := make([]float64, cfg.NumBatches)
	for k := range dists {
		dists[k] = Distance(resample(rng, a, cfg.NumEvalSamples), resample(rng, b, cfg.NumEvalSamples))
	}
	return stat.Mean(dists, nil), stat.StdDev(dists, nil)
}

// resample draws min(n, len(xs)) samples with replacement.
func resample(rng *rand.Rand, xs []float64, n int) []float64 {
	if n <= 0 || n > len(xs) {
		n = len(xs)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = xs[rng.Intn(len(xs))]
	}
	return out
}

// AllDistances compares the configured per-jet observables between a
// background (reference) population and a generated population and
// returns a flat metrics mapping with w_dist_<feature>_mean and
// w_dist_<feature>_std keys.
func AllDistances(rng *rand.Rand, background, generated *tensor.Dense, cfg Config) (map[string]float64, error) {
	bg, err := jet.Summarize(background)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize background jets: %w", err)
	}
	gen, err := jet.Summarize(generated)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize generated jets: %w", err)
	}

	features := cfg.JetFeatures
	if len(features) == 0 {
		features = DefaultConfig().JetFeatures
	}

	out := make(map[string]float64, 2*len(features))
	for _, feat := range features {
		ref, err := bg.Feature(feat)
		if err != nil {
			return nil, err
		}
		cmp, err := gen.Feature(feat)
		if err != nil {
			return nil, err
		}
		mean, std := DistanceBatched(rng, ref, cmp, cfg)
		out["w_dist_"+feat+"_mean"] = mean
		out["w_dist_"+feat+"_std"] = std
	}
	return out, nil
}
