package generation

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/checkpoints"
	"github.com/deepjets/jetflow/jet"
)

func TestNoiseModelSampleShape(t *testing.T) {
	model := &NoiseModel{NumParticles: 30}
	rng := rand.New(rand.NewSource(1))

	jets, err := model.Sample(context.Background(), SampleRequest{NumSamples: 5, Rand: rng})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	shape := jets.Shape()
	if shape[0] != 5 || shape[1] != 30 || shape[2] != jet.NumFeatures {
		t.Errorf("Unexpected shape %v", shape)
	}
}

func TestNoiseModelHonorsMask(t *testing.T) {
	// Two jets of 4 slots, first jet keeps 2 particles, second keeps 3.
	mask, err := jet.TriangularMask([]int{2, 3}, 4)
	if err != nil {
		t.Fatalf("Failed to build mask: %v", err)
	}
	model := &NoiseModel{NumParticles: 4}
	rng := rand.New(rand.NewSource(7))

	jets, err := model.Sample(context.Background(), SampleRequest{NumSamples: 2, Mask: mask, Rand: rng})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	data := jets.Data().([]float32)
	counts := jet.MaskCounts(mask)
	for i, want := range counts {
		var filled int
		for j := 0; j < 4; j++ {
			base := (i*4 + j) * jet.NumFeatures
			if data[base+jet.FeatPt] != 0 {
				filled++
			}
		}
		if filled != want {
			t.Errorf("Jet %d: expected %d filled particles, got %d", i, want, filled)
		}
	}
}

func TestNoiseModelPositivePt(t *testing.T) {
	// Negative mean drives most raw samples below zero, the sampler must
	// still return positive transverse momenta.
	model := &NoiseModel{
		Means:        []float32{0, 0, -5},
		Stds:         []float32{1, 1, 0.1},
		NumParticles: 10,
	}
	rng := rand.New(rand.NewSource(3))

	jets, err := model.Sample(context.Background(), SampleRequest{NumSamples: 20, Rand: rng})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	data := jets.Data().([]float32)
	for i := 0; i < 20*10; i++ {
		if pt := data[i*jet.NumFeatures+jet.FeatPt]; pt <= 0 {
			t.Fatalf("Particle %d has non-positive pt %v", i, pt)
		}
	}
}

func TestNoiseModelNoSizeNoMask(t *testing.T) {
	model := &NoiseModel{}
	if _, err := model.Sample(context.Background(), SampleRequest{NumSamples: 1}); err == nil {
		t.Error("Expected error for model without jet size and mask")
	}
}

func TestNoiseModelCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &NoiseModel{NumParticles: 4}
	if _, err := model.Sample(ctx, SampleRequest{NumSamples: 1}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

// batchRecorder records per-batch sample counts and conditioning sizes.
type batchRecorder struct {
	inner      Model
	batchSizes []int
	condSizes  []int
}

func (r *batchRecorder) Sample(ctx context.Context, req SampleRequest) (*tensor.Dense, error) {
	r.batchSizes = append(r.batchSizes, req.NumSamples)
	if req.Cond != nil {
		r.condSizes = append(r.condSizes, req.Cond.Shape()[0])
	}
	return r.inner.Sample(ctx, req)
}

func TestGenerateBatches(t *testing.T) {
	rec := &batchRecorder{inner: &NoiseModel{NumParticles: 8}}
	cfg := DefaultConfig()
	cfg.BatchSize = 40
	rng := rand.New(rand.NewSource(9))

	jets, elapsed, err := Generate(context.Background(), rec, 100, nil, nil,
		false, false, nil, nil, rng, cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if shape := jets.Shape(); shape[0] != 100 || shape[1] != 8 || shape[2] != jet.NumFeatures {
		t.Errorf("Unexpected shape %v", shape)
	}
	if elapsed <= 0 {
		t.Error("Expected positive elapsed time")
	}

	want := []int{40, 40, 20}
	if len(rec.batchSizes) != len(want) {
		t.Fatalf("Expected %d batches, got %v", len(want), rec.batchSizes)
	}
	for i, n := range want {
		if rec.batchSizes[i] != n {
			t.Errorf("Batch %d: expected %d samples, got %d", i, n, rec.batchSizes[i])
		}
	}
}

func TestGenerateSlicesConditioningPerBatch(t *testing.T) {
	cond := tensor.New(tensor.WithShape(10, 2), tensor.WithBacking(make([]float32, 20)))
	rec := &batchRecorder{inner: &NoiseModel{NumParticles: 4}}
	cfg := DefaultConfig()
	cfg.BatchSize = 4
	rng := rand.New(rand.NewSource(2))

	if _, _, err := Generate(context.Background(), rec, 10, cond, nil,
		false, false, nil, nil, rng, cfg); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := []int{4, 4, 2}
	if len(rec.condSizes) != len(want) {
		t.Fatalf("Expected %d conditioning batches, got %v", len(want), rec.condSizes)
	}
	for i, n := range want {
		if rec.condSizes[i] != n {
			t.Errorf("Batch %d: expected conditioning of %d rows, got %d", i, n, rec.condSizes[i])
		}
	}
}

// constantModel returns jets whose every feature equals value.
type constantModel struct {
	particles int
	value     float32
}

func (m constantModel) Sample(ctx context.Context, req SampleRequest) (*tensor.Dense, error) {
	backing := make([]float32, req.NumSamples*m.particles*jet.NumFeatures)
	for i := range backing {
		backing[i] = m.value
	}
	return tensor.New(
		tensor.WithShape(req.NumSamples, m.particles, jet.NumFeatures),
		tensor.WithBacking(backing),
	), nil
}

func TestGenerateDenormalizes(t *testing.T) {
	model := constantModel{particles: 2, value: 1}
	means := []float32{10, 20, 30}
	stds := []float32{2, 3, 4}
	rng := rand.New(rand.NewSource(4))

	jets, _, err := Generate(context.Background(), model, 3, nil, nil,
		false, true, means, stds, rng, DefaultConfig())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data := jets.Data().([]float32)
	want := []float32{12, 23, 34}
	for i := 0; i < len(data); i += jet.NumFeatures {
		for k := 0; k < jet.NumFeatures; k++ {
			if data[i+k] != want[k] {
				t.Fatalf("Feature %d: expected %v, got %v", k, want[k], data[i+k])
			}
		}
	}
}

func TestGenerateAppliesMask(t *testing.T) {
	mask, err := jet.TriangularMask([]int{1, 3}, 3)
	if err != nil {
		t.Fatalf("Failed to build mask: %v", err)
	}
	model := constantModel{particles: 3, value: 5}
	rng := rand.New(rand.NewSource(5))

	jets, _, err := Generate(context.Background(), model, 2, nil, mask,
		true, false, nil, nil, rng, DefaultConfig())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data := jets.Data().([]float32)
	counts := jet.MaskCounts(mask)
	for i, want := range counts {
		var filled int
		for j := 0; j < 3; j++ {
			base := (i*3 + j) * jet.NumFeatures
			if data[base] != 0 {
				filled++
			}
		}
		if filled != want {
			t.Errorf("Jet %d: expected %d surviving particles, got %d", i, want, filled)
		}
	}
}

func TestGenerateInvalidSampleCount(t *testing.T) {
	model := &NoiseModel{NumParticles: 4}
	for _, n := range []int{0, -1} {
		if _, _, err := Generate(context.Background(), model, n, nil, nil,
			false, false, nil, nil, nil, DefaultConfig()); err == nil {
			t.Errorf("Expected error for sample count %d", n)
		}
	}
}

// failingModel fails after a given number of batches.
type failingModel struct {
	inner   Model
	after   int
	batches int
}

func (m *failingModel) Sample(ctx context.Context, req SampleRequest) (*tensor.Dense, error) {
	if m.batches >= m.after {
		return nil, fmt.Errorf("sampler exhausted")
	}
	m.batches++
	return m.inner.Sample(ctx, req)
}

func TestGeneratePropagatesSamplingError(t *testing.T) {
	model := &failingModel{inner: &NoiseModel{NumParticles: 4}, after: 1}
	cfg := DefaultConfig()
	cfg.BatchSize = 2

	_, _, err := Generate(context.Background(), model, 6, nil, nil,
		false, false, nil, nil, rand.New(rand.NewSource(6)), cfg)
	if err == nil {
		t.Fatal("Expected sampling error to propagate")
	}
}

func TestNoiseLoader(t *testing.T) {
	dir := t.TempDir()
	ckptPath := filepath.Join(dir, "last.json")

	saver := checkpoints.NewCheckpointSaver()
	ckpt := &checkpoints.Checkpoint{
		ModelName: "noise-baseline",
		Weights: []checkpoints.WeightTensor{
			{Name: "w", Shape: []int{1}, Data: []float32{0.5}, Layer: "dense", Type: "weight"},
		},
	}
	if err := saver.SaveCheckpoint(ckpt, ckptPath); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	loader := &NoiseLoader{NumParticles: 12}
	model, err := loader.Load(ckptPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if model == nil {
		t.Fatal("Expected a model")
	}

	if _, err := loader.Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing checkpoint")
	}
}
