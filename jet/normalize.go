package jet

import (
	"fmt"

	"gorgonia.org/tensor"
)

// NormalizeValues returns a standardized copy of values using the given
// mean and std, leaving the input untouched. A zero std centers the
// values only.
func NormalizeValues(values []float32, mean, std float32) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v - mean
		if std != 0 {
			out[i] /= std
		}
	}
	return out
}

// DenormalizeTensor undoes per-feature standardization of the last axis
// of a particle tensor in place.
func DenormalizeTensor(t *tensor.Dense, means, stds []float32) error {
	shape := t.Shape()
	nf := shape[len(shape)-1]
	if len(means) != nf || len(stds) != nf {
		return fmt.Errorf("feature statistics mismatch: tensor has %d features, got %d means and %d stds",
			nf, len(means), len(stds))
	}
	data := t.Data().([]float32)
	for i := range data {
		f := i % nf
		data[i] = data[i]*stds[f] + means[f]
	}
	return nil
}

// BuildConditioningTensor assembles the [N, 2] conditioning tensor from
// external pt and mass values. When normalized is true the values are
// standardized with the dataset's conditioning statistics.
func BuildConditioningTensor(c *Conditioning, normalized bool, condMeans, condStds []float32) (*tensor.Dense, error) {
	n := c.Len()
	pt := c.Pt
	mass := c.Mass
	if normalized {
		if len(condMeans) < 2 || len(condStds) < 2 {
			return nil, fmt.Errorf("conditioning statistics too short: need 2 features, got %d means and %d stds",
				len(condMeans), len(condStds))
		}
		pt = NormalizeValues(pt, condMeans[0], condStds[0])
		mass = NormalizeValues(mass, condMeans[1], condStds[1])
	}
	backing := make([]float32, n*2)
	for i := 0; i < n; i++ {
		backing[i*2] = pt[i]
		backing[i*2+1] = mass[i]
	}
	return tensor.New(tensor.WithShape(n, 2), tensor.WithBacking(backing)), nil
}
