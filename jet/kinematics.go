package jet

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// Feature indices of the per-particle feature axis.
const (
	FeatEta = 0
	FeatPhi = 1
	FeatPt  = 2

	// NumFeatures is the size of the particle feature axis.
	NumFeatures = 3
)

// Summary holds per-jet scalar observables derived from a particle cloud.
type Summary struct {
	Pt   []float64
	Mass []float64
	Mult []float64
}

// Feature returns the named per-jet observable series.
func (s *Summary) Feature(name string) ([]float64, error) {
	switch name {
	case "pt":
		return s.Pt, nil
	case "mass":
		return s.Mass, nil
	case "mult":
		return s.Mult, nil
	default:
		return nil, fmt.Errorf("unknown jet feature %q", name)
	}
}

// Summarize computes jet pt, invariant mass and particle multiplicity for
// every jet in a [N, P, F] tensor. Constituents are treated as massless
// with (eta_rel, phi_rel, pt_rel) kinematics; particles with pt <= 0 are
// ignored.
func Summarize(jets *tensor.Dense) (*Summary, error) {
	shape := jets.Shape()
	if len(shape) != 3 || shape[2] < NumFeatures {
		return nil, fmt.Errorf("expected [N, P, >=%d] jet tensor, got shape %v", NumFeatures, shape)
	}
	n, p, f := shape[0], shape[1], shape[2]
	data := jets.Data().([]float32)

	s := &Summary{
		Pt:   make([]float64, n),
		Mass: make([]float64, n),
		Mult: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		var px, py, pz, e float64
		var mult int
		for j := 0; j < p; j++ {
			base := (i*p + j) * f
			eta := float64(data[base+FeatEta])
			phi := float64(data[base+FeatPhi])
			pt := float64(data[base+FeatPt])
			if pt <= 0 {
				continue
			}
			mult++
			px += pt * math.Cos(phi)
			py += pt * math.Sin(phi)
			pz += pt * math.Sinh(eta)
			e += pt * math.Cosh(eta)
		}
		s.Pt[i] = math.Hypot(px, py)
		m2 := e*e - px*px - py*py - pz*pz
		if m2 > 0 {
			s.Mass[i] = math.Sqrt(m2)
		}
		s.Mult[i] = float64(mult)
	}
	return s, nil
}
