package nn

import (
	"math"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// ReLU is a rectified linear activation.
type ReLU struct {
	mask []bool
}

func NewReLU() *ReLU {
	return &ReLU{}
}

func (r *ReLU) Params() []*Param { return nil }

func (r *ReLU) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	in := f64(x)
	out := make([]float64, len(in))
	mask := make([]bool, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = v
			mask[i] = true
		}
	}
	r.mask = mask
	return tensor.New(tensor.WithShape(x.Shape()...), tensor.WithBacking(out)), nil
}

func (r *ReLU) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if r.mask == nil {
		return nil, verrors.NewModelError("ReLU.Backward", "no cached forward pass", nil)
	}
	dy := f64(grad)
	if len(dy) != len(r.mask) {
		return nil, verrors.NewDimensionError("ReLU.Backward", len(r.mask), len(dy), 0)
	}
	dx := make([]float64, len(dy))
	for i, g := range dy {
		if r.mask[i] {
			dx[i] = g
		}
	}
	return tensor.New(tensor.WithShape(grad.Shape()...), tensor.WithBacking(dx)), nil
}

// Sigmoid squashes activations into (0, 1). It is the network's output unit.
type Sigmoid struct {
	y []float64
}

func NewSigmoid() *Sigmoid {
	return &Sigmoid{}
}

func (s *Sigmoid) Params() []*Param { return nil }

func (s *Sigmoid) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	in := f64(x)
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = 1 / (1 + math.Exp(-v))
	}
	s.y = out
	return tensor.New(tensor.WithShape(x.Shape()...), tensor.WithBacking(out)), nil
}

func (s *Sigmoid) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if s.y == nil {
		return nil, verrors.NewModelError("Sigmoid.Backward", "no cached forward pass", nil)
	}
	dy := f64(grad)
	dx := make([]float64, len(dy))
	for i, g := range dy {
		dx[i] = g * s.y[i] * (1 - s.y[i])
	}
	return tensor.New(tensor.WithShape(grad.Shape()...), tensor.WithBacking(dx)), nil
}
