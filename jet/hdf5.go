package jet

import (
	"fmt"

	"gonum.org/v1/hdf5"
	"gorgonia.org/tensor"
)

// Dataset names inside a jetflow HDF5 dataset file.
const (
	dsParticles = "particle_features"
	dsMask      = "mask"
	dsCond      = "cond"
	dsMeans     = "means"
	dsStds      = "stds"
	dsCondMeans = "cond_means"
	dsCondStds  = "cond_stds"
)

// LoadDataModule reads the test and val splits plus the feature
// statistics from an HDF5 file. Split datasets are suffixed with
// "_test" and "_val" (e.g. "particle_features_test").
func LoadDataModule(path string, variableJetSizes, normalize bool) (*DataModule, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file %s: %w", path, err)
	}
	defer f.Close()

	dm := &DataModule{
		VariableJetSizes: variableJetSizes,
		Normalize:        normalize,
	}

	for _, split := range []struct {
		suffix string
		dst    *SplitTensors
	}{
		{"_test", &dm.Test},
		{"_val", &dm.Val},
	} {
		data, shape, err := readFloat32(f, dsParticles+split.suffix)
		if err != nil {
			return nil, err
		}
		mask, maskShape, err := readFloat32(f, dsMask+split.suffix)
		if err != nil {
			return nil, err
		}
		cond, condShape, err := readFloat32(f, dsCond+split.suffix)
		if err != nil {
			return nil, err
		}
		split.dst.Data = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
		split.dst.Mask = tensor.New(tensor.WithShape(maskShape...), tensor.WithBacking(mask))
		split.dst.Cond = tensor.New(tensor.WithShape(condShape...), tensor.WithBacking(cond))
	}

	if dm.Means, _, err = readFloat32(f, dsMeans); err != nil {
		return nil, err
	}
	if dm.Stds, _, err = readFloat32(f, dsStds); err != nil {
		return nil, err
	}
	if dm.CondMeans, _, err = readFloat32(f, dsCondMeans); err != nil {
		return nil, err
	}
	if dm.CondStds, _, err = readFloat32(f, dsCondStds); err != nil {
		return nil, err
	}

	dm.NumParticles = dm.Test.Data.Shape()[1]
	dm.NumCondFeatures = dm.Test.Cond.Shape()[1]
	return dm, nil
}

// Conditioning holds per-jet steering features loaded from an external
// conditioning file.
type Conditioning struct {
	Pt           []float32
	Mass         []float32
	NumParticles []int
}

// Len returns the number of jets described by the conditioning data.
func (c *Conditioning) Len() int { return len(c.Pt) }

// ReadConditioning loads pt, mass and particle multiplicity per jet from
// an HDF5 conditioning file (datasets "pt", "mass", "num_particles").
func ReadConditioning(path string) (*Conditioning, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open conditioning file %s: %w", path, err)
	}
	defer f.Close()

	pt, _, err := readFloat32(f, "pt")
	if err != nil {
		return nil, err
	}
	mass, _, err := readFloat32(f, "mass")
	if err != nil {
		return nil, err
	}
	nums, _, err := readFloat32(f, "num_particles")
	if err != nil {
		return nil, err
	}

	cond := &Conditioning{
		Pt:           pt,
		Mass:         mass,
		NumParticles: make([]int, len(nums)),
	}
	for i, n := range nums {
		cond.NumParticles[i] = int(n)
	}
	if len(cond.Mass) != len(cond.Pt) || len(cond.NumParticles) != len(cond.Pt) {
		return nil, fmt.Errorf("conditioning file %s has mismatched lengths (pt=%d mass=%d num_particles=%d)",
			path, len(cond.Pt), len(cond.Mass), len(cond.NumParticles))
	}
	return cond, nil
}

// SaveJets writes a [N, P, F] particle tensor to an HDF5 file under the
// "particle_features" dataset.
func SaveJets(path string, jets *tensor.Dense) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	shape := jets.Shape()
	dims := make([]uint, len(shape))
	for i, d := range shape {
		dims[i] = uint(d)
	}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("failed to create dataspace: %w", err)
	}
	defer space.Close()

	dset, err := f.CreateDataset(dsParticles, hdf5.T_NATIVE_FLOAT, space)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	defer dset.Close()

	data := jets.Data().([]float32)
	if err := dset.Write(&data); err != nil {
		return fmt.Errorf("failed to write jets to %s: %w", path, err)
	}
	return nil
}

// LoadJets reads a particle tensor written by SaveJets.
func LoadJets(path string) (*tensor.Dense, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	data, shape, err := readFloat32(f, dsParticles)
	if err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// readFloat32 reads a float32 dataset and its shape.
func readFloat32(f *hdf5.File, name string) ([]float32, []int, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset %q: %w", name, err)
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read extent of dataset %q: %w", name, err)
	}

	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		shape[i] = int(d)
		n *= int(d)
	}
	data := make([]float32, n)
	if err := dset.Read(&data); err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset %q: %w", name, err)
	}
	return data, shape, nil
}
