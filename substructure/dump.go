package substructure

import (
	"fmt"
	"sort"

	"gonum.org/v1/hdf5"
	"gorgonia.org/tensor"
)

// Ext is the file extension of dumped observable files.
const Ext = ".h5"

// Dump computes the high-level observables of the given jets and writes
// each of them as a named 1-D dataset to <path>.h5.
func Dump(jets *tensor.Dense, path string) error {
	obs, err := Compute(jets)
	if err != nil {
		return fmt.Errorf("failed to compute substructure observables: %w", err)
	}
	return writeObservables(obs, path+Ext)
}

func writeObservables(obs *Observables, fname string) error {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create substructure file %s: %w", fname, err)
	}
	defer f.Close()

	byKey := obs.ByKey()
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := writeDataset(f, key, byKey[key]); err != nil {
			return err
		}
	}
	return nil
}

func writeDataset(f *hdf5.File, name string, values []float64) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return fmt.Errorf("failed to create dataspace for %q: %w", name, err)
	}
	defer space.Close()

	dset, err := f.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return fmt.Errorf("failed to create dataset %q: %w", name, err)
	}
	defer dset.Close()

	if err := dset.Write(&values); err != nil {
		return fmt.Errorf("failed to write dataset %q: %w", name, err)
	}
	return nil
}

// Load reads every observable dataset from <path>.h5 and returns them
// keyed by name together with the sorted key list.
func Load(path string) (map[string][]float64, []string, error) {
	fname := path + Ext
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open substructure file %s: %w", fname, err)
	}
	defer f.Close()

	nobj, err := f.NumObjects()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list substructure file %s: %w", fname, err)
	}

	out := make(map[string][]float64, nobj)
	keys := make([]string, 0, nobj)
	for i := uint(0); i < nobj; i++ {
		name, err := f.ObjectNameByIndex(i)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read object name %d in %s: %w", i, fname, err)
		}
		values, err := readDataset(f, name)
		if err != nil {
			return nil, nil, err
		}
		out[name] = values
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return out, keys, nil
}

func readDataset(f *hdf5.File, name string) ([]float64, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %q: %w", name, err)
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read extent of dataset %q: %w", name, err)
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	values := make([]float64, n)
	if err := dset.Read(&values); err != nil {
		return nil, fmt.Errorf("failed to read dataset %q: %w", name, err)
	}
	return values, nil
}
