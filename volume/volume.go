// Package volume handles discovery, loading and assembly of volumetric
// training data stored as NumPy .npy files.
//
// A volume is a channels-last (H, W, D, C) float64 tensor. Datasets are
// loaded fully into memory as one dense (N, H, W, D, C) batch tensor plus a
// boolean label vector derived from the class subdirectory each file came
// from.
package volume

import (
	"sync"

	"github.com/kshedden/gonpy"
	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Shape describes a single volume: height, width, depth and channels.
type Shape struct {
	H int
	W int
	D int
	C int
}

// DefaultShape is the scan geometry the sex-determination network expects.
var DefaultShape = Shape{H: 32, W: 32, D: 64, C: 1}

// Dims returns the shape as a dimension slice.
func (s Shape) Dims() []int {
	return []int{s.H, s.W, s.D, s.C}
}

// Size returns the number of voxels (including channels) in one volume.
func (s Shape) Size() int {
	return s.H * s.W * s.D * s.C
}

func (s Shape) valid() bool {
	return s.H > 0 && s.W > 0 && s.D > 0 && s.C > 0
}

// matches reports whether the on-disk dims correspond to this shape.
// A trailing channel axis of size 1 may be omitted in the file.
func (s Shape) matches(dims []int) bool {
	switch len(dims) {
	case 4:
		return dims[0] == s.H && dims[1] == s.W && dims[2] == s.D && dims[3] == s.C
	case 3:
		return s.C == 1 && dims[0] == s.H && dims[1] == s.W && dims[2] == s.D
	default:
		return false
	}
}

var convWarnOnce sync.Once

// Load reads one .npy volume and validates it against the expected shape.
// float32 payloads are converted to float64; Fortran-ordered files are
// rejected.
func Load(path string, shape Shape) (*tensor.Dense, error) {
	if !shape.valid() {
		return nil, verrors.NewValidationError("shape", "all dimensions must be positive", shape.Dims())
	}

	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, verrors.Wrapf(err, "volume.Load: %s", path)
	}
	if r.ColumnMajor {
		return nil, verrors.NewValueError("volume.Load", "column-major (Fortran order) volumes are not supported: "+path)
	}
	if !shape.matches(r.Shape) {
		return nil, verrors.NewVolumeShapeError("volume.Load", path, shape.Dims(), r.Shape)
	}

	var data []float64
	switch r.Dtype {
	case "f8":
		data, err = r.GetFloat64()
		if err != nil {
			return nil, verrors.Wrapf(err, "volume.Load: %s", path)
		}
	case "f4":
		raw, gerr := r.GetFloat32()
		if gerr != nil {
			return nil, verrors.Wrapf(gerr, "volume.Load: %s", path)
		}
		// Warn once per process; datasets hold thousands of files.
		convWarnOnce.Do(func() {
			verrors.Warn(verrors.NewDataConversionWarning("float32", "float64", "volume files stored as float32"))
		})
		data = make([]float64, len(raw))
		for i, v := range raw {
			data[i] = float64(v)
		}
	default:
		return nil, verrors.NewValueError("volume.Load", "unsupported dtype "+r.Dtype+" in "+path)
	}

	if len(data) != shape.Size() {
		return nil, verrors.NewVolumeShapeError("volume.Load", path, shape.Dims(), r.Shape)
	}

	return tensor.New(tensor.WithShape(shape.H, shape.W, shape.D, shape.C), tensor.WithBacking(data)), nil
}

// Save writes a volume to a .npy file with its shape in the header.
func Save(path string, v *tensor.Dense) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return verrors.Wrapf(err, "volume.Save: %s", path)
	}
	w.Shape = append([]int(nil), v.Shape()...)
	data, ok := v.Data().([]float64)
	if !ok {
		return verrors.NewValueError("volume.Save", "volume backing must be float64")
	}
	if err := w.WriteFloat64(data); err != nil {
		return verrors.Wrapf(err, "volume.Save: %s", path)
	}
	return nil
}
