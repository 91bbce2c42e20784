package substructure

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/jet"
)

// R0 is the characteristic jet radius used for n-subjettiness and the
// exclusive-kT axis finding.
const R0 = 0.8

// Observable names of the three ratio observables compared between
// generated and reference jets.
const (
	KeyTau21 = "tau21"
	KeyTau32 = "tau32"
	KeyD2    = "d2"
)

// Observables holds per-jet high-level substructure observables.
type Observables struct {
	Tau1  []float64
	Tau2  []float64
	Tau3  []float64
	Tau21 []float64
	Tau32 []float64
	D2    []float64
	Mass  []float64
	Pt    []float64
}

// ByKey returns every observable series keyed by its dataset name.
func (o *Observables) ByKey() map[string][]float64 {
	return map[string][]float64{
		"tau1":   o.Tau1,
		"tau2":   o.Tau2,
		"tau3":   o.Tau3,
		KeyTau21: o.Tau21,
		KeyTau32: o.Tau32,
		KeyD2:    o.D2,
		"mass":   o.Mass,
		"pt":     o.Pt,
	}
}

// particle is a massless pseudojet constituent.
type particle struct {
	eta, phi, pt float64
}

// Compute derives the substructure observables for every jet in a
// [N, P, F] particle tensor. Particles with pt <= 0 are skipped.
func Compute(jets *tensor.Dense) (*Observables, error) {
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

	obs := &Observables{
		Tau1:  make([]float64, n),
		Tau2:  make([]float64, n),
		Tau3:  make([]float64, n),
		Tau21: make([]float64, n),
		Tau32: make([]float64, n),
		D2:    make([]float64, n),
		Mass:  summary.Mass,
		Pt:    summary.Pt,
	}

	parts := make([]particle, 0, p)
	for i := 0; i < n; i++ {
		parts = parts[:0]
		for j := 0; j < p; j++ {
			base := (i*p + j) * f
			pt := float64(data[base+jet.FeatPt])
			if pt <= 0 {
				continue
			}
			parts = append(parts, particle{
				eta: float64(data[base+jet.FeatEta]),
				phi: float64(data[base+jet.FeatPhi]),
				pt:  pt,
			})
		}
		obs.Tau1[i] = nSubjettiness(parts, 1)
		obs.Tau2[i] = nSubjettiness(parts, 2)
		obs.Tau3[i] = nSubjettiness(parts, 3)
		if obs.Tau1[i] > 0 {
			obs.Tau21[i] = obs.Tau2[i] / obs.Tau1[i]
		}
		if obs.Tau2[i] > 0 {
			obs.Tau32[i] = obs.Tau3[i] / obs.Tau2[i]
		}
		obs.D2[i] = d2(parts)
	}
	return obs, nil
}

// deltaR is the angular distance between two constituents.
func deltaR(a, b particle) float64 {
	dEta := a.eta - b.eta
	dPhi := math.Remainder(a.phi-b.phi, 2*math.Pi)
	return math.Hypot(dEta, dPhi)
}

// nSubjettiness computes tau_N with exclusive-kT subjet axes.
func nSubjettiness(parts []particle, n int) float64 {
	if len(parts) <= n {
		return 0
	}
	axes := exclusiveKtAxes(parts, n)
	var sum, ptSum float64
	for _, p := range parts {
		ptSum += p.pt
		minDR := math.Inf(1)
		for _, ax := range axes {
			if dr := deltaR(p, ax); dr < minDR {
				minDR = dr
			}
		}
		sum += p.pt * minDR
	}
	if ptSum == 0 {
		return 0
	}
	return sum / (ptSum * R0)
}

// exclusiveKtAxes clusters the constituents down to n pseudojets with
// the exclusive-kT algorithm and returns the resulting axes.
func exclusiveKtAxes(parts []particle, n int) []particle {
	jets := append([]particle(nil), parts...)
	for len(jets) > n {
		minDij := math.Inf(1)
		var mi, mj int
		for i := 0; i < len(jets); i++ {
			for j := i + 1; j < len(jets); j++ {
				dr := deltaR(jets[i], jets[j])
				ptMin := math.Min(jets[i].pt, jets[j].pt)
				dij := ptMin * ptMin * dr * dr / (R0 * R0)
				if dij < minDij {
					minDij = dij
					mi, mj = i, j
				}
			}
		}
		jets[mi] = merge(jets[mi], jets[mj])
		jets[mj] = jets[len(jets)-1]
		jets = jets[:len(jets)-1]
	}
	return jets
}

// merge combines two pseudojets with pt-weighted recombination.
func merge(a, b particle) particle {
	pt := a.pt + b.pt
	if pt == 0 {
		return particle{eta: (a.eta + b.eta) / 2, phi: (a.phi + b.phi) / 2}
	}
	return particle{
		eta: (a.eta*a.pt + b.eta*b.pt) / pt,
		phi: (a.phi*a.pt + b.phi*b.pt) / pt,
		pt:  pt,
	}
}

// ECF2 computes the normalized 2-point energy correlation e2 (beta = 1)
// for every jet in a [N, P, F] particle tensor.
func ECF2(jets *tensor.Dense) ([]float64, error) {
	shape := jets.Shape()
	if len(shape) != 3 || shape[2] < jet.NumFeatures {
		return nil, fmt.Errorf("expected [N, P, >=%d] jet tensor, got shape %v", jet.NumFeatures, shape)
	}
	n, p, f := shape[0], shape[1], shape[2]
	data := jets.Data().([]float32)

	out := make([]float64, n)
	parts := make([]particle, 0, p)
	for i := 0; i < n; i++ {
		parts = parts[:0]
		for j := 0; j < p; j++ {
			base := (i*p + j) * f
			pt := float64(data[base+jet.FeatPt])
			if pt <= 0 {
				continue
			}
			parts = append(parts, particle{
				eta: float64(data[base+jet.FeatEta]),
				phi: float64(data[base+jet.FeatPhi]),
				pt:  pt,
			})
		}
		var ptSum, e2 float64
		for _, q := range parts {
			ptSum += q.pt
		}
		if ptSum == 0 {
			continue
		}
		for a := 0; a < len(parts); a++ {
			for b := a + 1; b < len(parts); b++ {
				e2 += parts[a].pt * parts[b].pt * deltaR(parts[a], parts[b])
			}
		}
		out[i] = e2 / (ptSum * ptSum)
	}
	return out, nil
}

// d2 computes the energy-correlation ratio D2 = e3 / e2^3 with beta = 1.
func d2(parts []particle) float64 {
	if len(parts) < 3 {
		return 0
	}
	var ptSum float64
	for _, p := range parts {
		ptSum += p.pt
	}
	if ptSum == 0 {
		return 0
	}

	var e2, e3 float64
	for i := 0; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			rij := deltaR(parts[i], parts[j])
			e2 += parts[i].pt * parts[j].pt * rij
			for k := j + 1; k < len(parts); k++ {
				rik := deltaR(parts[i], parts[k])
				rjk := deltaR(parts[j], parts[k])
				e3 += parts[i].pt * parts[j].pt * parts[k].pt * rij * rik * rjk
			}
		}
	}
	e2 /= ptSum * ptSum
	e3 /= ptSum * ptSum * ptSum
	if e2 == 0 {
		return 0
	}
	return e3 / (e2 * e2 * e2)
}
