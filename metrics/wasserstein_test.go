package metrics

import (
	"math"
	"math/rand"
	"testing"

	"gorgonia.org/tensor"
)

func TestDistanceIdenticalDistributions(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	if d := Distance(a, a); d != 0 {
		t.Errorf("Expected zero distance for identical samples, got %v", d)
	}
}

func TestDistanceShift(t *testing.T) {
	a := make([]float64, 1000)
	b := make([]float64, 1000)
	for i := range a {
		a[i] = float64(i) / 1000
		b[i] = float64(i)/1000 + 0.5
	}
	d := Distance(a, b)
	if math.Abs(d-0.5) > 1e-9 {
		t.Errorf("Expected distance 0.5 for shifted samples, got %v", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := []float64{0, 1, 2, 5}
	b := []float64{1, 1, 3}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-12 {
		t.Errorf("Distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestDistanceEmpty(t *testing.T) {
	if d := Distance(nil, []float64{1}); d != 0 {
		t.Errorf("Expected zero distance for empty input, got %v", d)
	}
}

func TestDistanceBatched(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := make([]float64, 5000)
	b := make([]float64, 5000)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = rng.NormFloat64() + 1.0
	}

	cfg := Config{NumEvalSamples: 1000, NumBatches: 20}
	mean, std := DistanceBatched(rand.New(rand.NewSource(2)), a, b, cfg)
	if mean < 0.5 || mean > 1.5 {
		t.Errorf("Expected batched distance near 1.0, got %v", mean)
	}
	if std < 0 {
		t.Errorf("Expected non-negative std, got %v", std)
	}
}

func TestDistanceBatchedDeterministic(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{2, 3, 4, 5, 6, 7}
	cfg := Config{NumEvalSamples: 4, NumBatches: 8}

	m1, s1 := DistanceBatched(rand.New(rand.NewSource(7)), a, b, cfg)
	m2, s2 := DistanceBatched(rand.New(rand.NewSource(7)), a, b, cfg)
	if m1 != m2 || s1 != s2 {
		t.Errorf("Expected deterministic results for a fixed seed: (%v, %v) vs (%v, %v)", m1, s1, m2, s2)
	}
}

func TestAllDistancesKeys(t *testing.T) {
	// Two small populations of single-particle jets.
	mk := func(pts ...float32) *tensor.Dense {
		backing := make([]float32, len(pts)*3)
		for i, pt := range pts {
			backing[i*3+2] = pt
		}
		return tensor.New(tensor.WithShape(len(pts), 1, 3), tensor.WithBacking(backing))
	}
	bg := mk(0.5, 0.6, 0.7, 0.8)
	gen := mk(0.5, 0.6, 0.7, 0.9)

	cfg := Config{NumEvalSamples: 4, NumBatches: 4, JetFeatures: []string{"pt", "mass", "mult"}}
	out, err := AllDistances(rand.New(rand.NewSource(3)), bg, gen, cfg)
	if err != nil {
		t.Fatalf("AllDistances failed: %v", err)
	}

	for _, feat := range cfg.JetFeatures {
		if _, ok := out["w_dist_"+feat+"_mean"]; !ok {
			t.Errorf("Missing key w_dist_%s_mean", feat)
		}
		if _, ok := out["w_dist_"+feat+"_std"]; !ok {
			t.Errorf("Missing key w_dist_%s_std", feat)
		}
	}
	if len(out) != 2*len(cfg.JetFeatures) {
		t.Errorf("Expected %d keys, got %d", 2*len(cfg.JetFeatures), len(out))
	}
}

func TestAllDistancesUnknownFeature(t *testing.T) {
	jets := tensor.New(tensor.WithShape(1, 1, 3), tensor.WithBacking(make([]float32, 3)))
	cfg := Config{NumEvalSamples: 1, NumBatches: 1, JetFeatures: []string{"bogus"}}
	if _, err := AllDistances(rand.New(rand.NewSource(1)), jets, jets, cfg); err == nil {
		t.Fatal("Expected error for unknown jet feature")
	}
}
