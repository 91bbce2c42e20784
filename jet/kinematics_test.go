package jet

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

// makeJets builds a [N, P, 3] tensor from per-jet particle triplets
// (eta, phi, pt).
func makeJets(t *testing.T, jets [][][3]float32) *tensor.Dense {
	t.Helper()
	n := len(jets)
	p := 0
	for _, j := range jets {
		if len(j) > p {
			p = len(j)
		}
	}
	backing := make([]float32, n*p*NumFeatures)
	for i, j := range jets {
		for k, part := range j {
			base := (i*p + k) * NumFeatures
			backing[base+FeatEta] = part[0]
			backing[base+FeatPhi] = part[1]
			backing[base+FeatPt] = part[2]
		}
	}
	return tensor.New(tensor.WithShape(n, p, NumFeatures), tensor.WithBacking(backing))
}

func TestSummarizeSingleParticle(t *testing.T) {
	jets := makeJets(t, [][][3]float32{
		{{0, 0, 1.0}},
	})
	s, err := Summarize(jets)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if math.Abs(s.Pt[0]-1.0) > 1e-6 {
		t.Errorf("Expected jet pt 1.0, got %v", s.Pt[0])
	}
	// A single massless particle gives a massless jet.
	if s.Mass[0] > 1e-3 {
		t.Errorf("Expected massless jet, got mass %v", s.Mass[0])
	}
	if s.Mult[0] != 1 {
		t.Errorf("Expected multiplicity 1, got %v", s.Mult[0])
	}
}

func TestSummarizeTwoParticleMass(t *testing.T) {
	// Two particles separated in phi give a massive jet.
	jets := makeJets(t, [][][3]float32{
		{{0, 0.4, 1.0}, {0, -0.4, 1.0}},
	})
	s, err := Summarize(jets)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if s.Mass[0] <= 0 {
		t.Errorf("Expected positive mass, got %v", s.Mass[0])
	}
	if s.Mult[0] != 2 {
		t.Errorf("Expected multiplicity 2, got %v", s.Mult[0])
	}
}

func TestSummarizeIgnoresPadding(t *testing.T) {
	jets := makeJets(t, [][][3]float32{
		{{0.1, 0.1, 0.5}, {0, 0, 0}},
	})
	s, err := Summarize(jets)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if s.Mult[0] != 1 {
		t.Errorf("Expected padding to be ignored, got multiplicity %v", s.Mult[0])
	}
}

func TestSummaryFeature(t *testing.T) {
	s := &Summary{Pt: []float64{1}, Mass: []float64{2}, Mult: []float64{3}}
	for name, want := range map[string]float64{"pt": 1, "mass": 2, "mult": 3} {
		got, err := s.Feature(name)
		if err != nil {
			t.Fatalf("Feature(%q) failed: %v", name, err)
		}
		if got[0] != want {
			t.Errorf("Feature(%q): expected %v, got %v", name, want, got[0])
		}
	}
	if _, err := s.Feature("bogus"); err == nil {
		t.Error("Expected error for unknown feature")
	}
}

func TestSliceJets(t *testing.T) {
	jets := makeJets(t, [][][3]float32{
		{{0, 0, 1}},
		{{0, 0, 2}},
		{{0, 0, 3}},
	})
	sliced, err := SliceJets(jets, 2)
	if err != nil {
		t.Fatalf("Failed to slice: %v", err)
	}
	if sliced.Shape()[0] != 2 {
		t.Fatalf("Expected 2 jets, got %d", sliced.Shape()[0])
	}

	// Requesting more jets than available returns the full tensor.
	full, err := SliceJets(jets, 100)
	if err != nil {
		t.Fatalf("Failed to slice: %v", err)
	}
	if full.Shape()[0] != 3 {
		t.Fatalf("Expected 3 jets, got %d", full.Shape()[0])
	}
}

func TestRepeatJets(t *testing.T) {
	jets := makeJets(t, [][][3]float32{
		{{0, 0, 1}},
		{{0, 0, 2}},
	})
	repeated, err := RepeatJets(jets, 2)
	if err != nil {
		t.Fatalf("Failed to repeat: %v", err)
	}
	if repeated.Shape()[0] != 4 {
		t.Fatalf("Expected 4 jets, got %d", repeated.Shape()[0])
	}
	data := repeated.Data().([]float32)
	f := NumFeatures
	// np.repeat ordering: each jet is repeated in place.
	pts := []float32{data[FeatPt], data[f+FeatPt], data[2*f+FeatPt], data[3*f+FeatPt]}
	expected := []float32{1, 1, 2, 2}
	for i, want := range expected {
		if pts[i] != want {
			t.Errorf("Jet %d: expected pt %v, got %v", i, want, pts[i])
		}
	}
}
