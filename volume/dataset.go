package volume

import (
	"io/fs"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"

	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/voxnet/core/parallel"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Dataset holds an in-memory split: all volumes stacked into one dense
// (N, H, W, D, C) tensor with labels and source files kept in step.
type Dataset struct {
	X     *tensor.Dense
	Y     []bool
	Files []string
	Shape Shape
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Positives returns the number of positive-class samples.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		if y {
			n++
		}
	}
	return n
}

// Sample copies out the i-th volume as its own tensor.
func (d *Dataset) Sample(i int) *tensor.Dense {
	size := d.Shape.Size()
	src := d.X.Data().([]float64)[i*size : (i+1)*size]
	out := make([]float64, size)
	copy(out, src)
	return tensor.New(tensor.WithShape(d.Shape.H, d.Shape.W, d.Shape.D, d.Shape.C), tensor.WithBacking(out))
}

// DiscoverFiles recursively enumerates .npy files under root, in lexical
// walk order.
func DiscoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".npy") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, verrors.Wrapf(err, "volume.DiscoverFiles: %s", root)
	}
	return files, nil
}

// LoadSplit loads one dataset split laid out as dir/0/**/*.npy (negative
// class) and dir/1/**/*.npy (positive class). Every loaded volume's label is
// determined solely by its class subdirectory.
func LoadSplit(dir string, shape Shape) (*Dataset, error) {
	negFiles, err := DiscoverFiles(filepath.Join(dir, "0"))
	if err != nil {
		return nil, err
	}
	posFiles, err := DiscoverFiles(filepath.Join(dir, "1"))
	if err != nil {
		return nil, err
	}

	total := len(negFiles) + len(posFiles)
	if total == 0 {
		return nil, verrors.Wrapf(verrors.ErrNoVolumes, "volume.LoadSplit: %s", dir)
	}

	files := make([]string, 0, total)
	files = append(files, negFiles...)
	files = append(files, posFiles...)

	labels := make([]bool, total)
	for i := len(negFiles); i < total; i++ {
		labels[i] = true
	}

	size := shape.Size()
	backing := make([]float64, total*size)

	// Volumes land in disjoint regions of the backing slice, so decoding can
	// run in parallel. The first error wins.
	var mu sync.Mutex
	var loadErr error
	parallel.ParallelizeWithThreshold(total, 8, func(start, end int) {
		for i := start; i < end; i++ {
			v, err := Load(files[i], shape)
			if err != nil {
				mu.Lock()
				if loadErr == nil {
					loadErr = err
				}
				mu.Unlock()
				return
			}
			copy(backing[i*size:(i+1)*size], v.Data().([]float64))
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}

	x := tensor.New(tensor.WithShape(total, shape.H, shape.W, shape.D, shape.C), tensor.WithBacking(backing))
	return &Dataset{X: x, Y: labels, Files: files, Shape: shape}, nil
}

// Shuffle permutes the dataset in place, keeping volumes, labels and source
// files paired.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	n := d.Len()
	size := d.Shape.Size()
	data := d.X.Data().([]float64)
	buf := make([]float64, size)

	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		if i == j {
			continue
		}
		ri := data[i*size : (i+1)*size]
		rj := data[j*size : (j+1)*size]
		copy(buf, ri)
		copy(ri, rj)
		copy(rj, buf)
		d.Y[i], d.Y[j] = d.Y[j], d.Y[i]
		d.Files[i], d.Files[j] = d.Files[j], d.Files[i]
	}
}

// Normalize standardizes each volume in place to zero mean and unit standard
// deviation. Volumes with near-constant intensity are left centered only.
func (d *Dataset) Normalize() {
	n := d.Len()
	size := d.Shape.Size()
	data := d.X.Data().([]float64)

	parallel.ParallelizeWithThreshold(n, 4, func(start, end int) {
		for i := start; i < end; i++ {
			row := data[i*size : (i+1)*size]
			normalizeInPlace(row)
		}
	})
}

func normalizeInPlace(row []float64) {
	var sum float64
	for _, v := range row {
		sum += v
	}
	mean := sum / float64(len(row))

	var sq float64
	for _, v := range row {
		diff := v - mean
		sq += diff * diff
	}
	std := math.Sqrt(sq / float64(len(row)))
	if std < 1e-8 {
		std = 1.0
	}

	for i, v := range row {
		row[i] = (v - mean) / std
	}
}
