package plotting

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/jet"
	"github.com/deepjets/jetflow/substructure"
)

// Config controls which features are derived and plotted.
type Config struct {
	// PlotEFPs enables energy-correlation values in the comparison plot.
	PlotEFPs bool `json:"plot_efps" yaml:"plot_efps"`
	// SelectedParticles are 1-based pT ranks whose pT distribution is
	// plotted separately.
	SelectedParticles []int `json:"selected_particles" yaml:"selected_particles"`
	// SelectedMultiplicities are jet multiplicities whose pooled particle
	// pT distribution is plotted separately.
	SelectedMultiplicities []int `json:"selected_multiplicities" yaml:"selected_multiplicities"`
	// Bins is the number of histogram bins.
	Bins int `json:"bins" yaml:"bins"`
}

// DefaultConfig returns the default plot configuration.
func DefaultConfig() Config {
	return Config{
		PlotEFPs:               false,
		SelectedParticles:      []int{1, 3, 10},
		SelectedMultiplicities: []int{10, 20, 30},
		Bins:                   100,
	}
}

// PreparedData holds the per-jet and per-particle summaries a comparison
// plot is built from.
type PreparedData struct {
	Jets *jet.Summary

	// Pooled features of valid particles across all jets.
	ParticleEta []float64
	ParticlePhi []float64
	ParticlePt  []float64

	// pT of the r-th hardest particle, keyed by rank.
	SelectedParticlePt map[int][]float64

	// Pooled particle pT of jets with exactly m particles, keyed by m.
	SelectedMultiplicityPt map[int][]float64

	// Energy-correlation values, filled when Config.PlotEFPs is set.
	EFPs []float64
}

// PrepareData derives the plotting summaries from a raw [N, P, F] jet
// tensor, honoring the feature selection in cfg.
func PrepareData(jets *tensor.Dense, cfg Config) (*PreparedData, error) {
	shape := jets.Shape()
	if len(shape) != 3 || shape[2] < jet.NumFeatures {
		return nil, fmt.Errorf("expected [N, P, >=%d] jet tensor, got shape %v", jet.NumFeatures, shape)
	}
	n, p, f := shape[0], shape[1], shape[2]
	data := jets.Data().([]float32)

	summary, err := jet.Summarize(jets)
	if err != nil {
		return nil, err
	}

	out := &PreparedData{
		Jets:                   summary,
		SelectedParticlePt:     make(map[int][]float64, len(cfg.SelectedParticles)),
		SelectedMultiplicityPt: make(map[int][]float64, len(cfg.SelectedMultiplicities)),
	}
	for _, rank := range cfg.SelectedParticles {
		out.SelectedParticlePt[rank] = nil
	}
	for _, mult := range cfg.SelectedMultiplicities {
		out.SelectedMultiplicityPt[mult] = nil
	}

	pts := make([]float64, 0, p)
	for i := 0; i < n; i++ {
		pts = pts[:0]
		for j := 0; j < p; j++ {
			base := (i*p + j) * f
			pt := float64(data[base+jet.FeatPt])
			if pt <= 0 {
				continue
			}
			out.ParticleEta = append(out.ParticleEta, float64(data[base+jet.FeatEta]))
			out.ParticlePhi = append(out.ParticlePhi, float64(data[base+jet.FeatPhi]))
			out.ParticlePt = append(out.ParticlePt, pt)
			pts = append(pts, pt)
		}

		sort.Sort(sort.Reverse(sort.Float64Slice(pts)))
		for _, rank := range cfg.SelectedParticles {
			if rank >= 1 && rank <= len(pts) {
				out.SelectedParticlePt[rank] = append(out.SelectedParticlePt[rank], pts[rank-1])
			}
		}
		if series, want := out.SelectedMultiplicityPt[len(pts)]; want {
			out.SelectedMultiplicityPt[len(pts)] = append(series, pts...)
		}
	}

	if cfg.PlotEFPs {
		efps, err := substructure.ECF2(jets)
		if err != nil {
			return nil, fmt.Errorf("failed to compute energy correlations: %w", err)
		}
		out.EFPs = efps
	}
	return out, nil
}
