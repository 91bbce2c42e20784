package jet

import (
	"fmt"

	"gorgonia.org/tensor"
)

// TriangularMask builds a [N, jetSize, 1] validity mask from per-jet
// particle multiplicities. Multiplicities larger than jetSize are clipped
// to jetSize; for each jet the first n slots are set to 1.
func TriangularMask(numParticles []int, jetSize int) (*tensor.Dense, error) {
	if jetSize <= 0 {
		return nil, fmt.Errorf("invalid jet size %d", jetSize)
	}
	n := len(numParticles)
	backing := make([]float32, n*jetSize)
	for i, m := range numParticles {
		if m > jetSize {
			m = jetSize
		}
		if m < 0 {
			m = 0
		}
		row := backing[i*jetSize : (i+1)*jetSize]
		for j := 0; j < m; j++ {
			row[j] = 1
		}
	}
	return tensor.New(tensor.WithShape(n, jetSize, 1), tensor.WithBacking(backing)), nil
}

// MaskCounts returns the number of active particles per jet in a
// [N, P, 1] mask tensor.
func MaskCounts(mask *tensor.Dense) []int {
	shape := mask.Shape()
	n, p := shape[0], shape[1]
	data := mask.Data().([]float32)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if data[i*p+j] > 0 {
				counts[i]++
			}
		}
	}
	return counts
}
