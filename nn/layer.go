// Package nn implements the 3D convolutional layers, residual blocks and the
// sex-determination network itself, with explicit forward and backward
// passes. Tensors are channels-last: volumes (N, H, W, D, C), dense
// activations (N, F).
package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Param is one named, trainable tensor with its gradient. The optimizer
// updates Value in place; Backward passes accumulate into Grad.
type Param struct {
	Name  string
	Value *tensor.Dense
	Grad  *tensor.Dense
}

func newParam(name string, shape ...int) *Param {
	return &Param{
		Name:  name,
		Value: zeros(shape...),
		Grad:  zeros(shape...),
	}
}

// ZeroGrad resets the gradient buffer.
func (p *Param) ZeroGrad() {
	g := f64(p.Grad)
	for i := range g {
		g[i] = 0
	}
}

// Layer is one differentiable unit. Forward caches whatever Backward needs;
// Backward returns the gradient with respect to the layer input.
type Layer interface {
	Forward(x *tensor.Dense, training bool) (*tensor.Dense, error)
	Backward(grad *tensor.Dense) (*tensor.Dense, error)
	Params() []*Param
}

// Stateful is implemented by layers carrying non-trainable state that must
// survive checkpointing, like batch-norm running statistics.
type Stateful interface {
	State() []*Param
}

func f64(t *tensor.Dense) []float64 {
	return t.Data().([]float64)
}

func zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...))
}

func fill(t *tensor.Dense, v float64) {
	d := f64(t)
	for i := range d {
		d[i] = v
	}
}

// heNormal fills p with He-style normal initialization for the given fan-in.
func heNormal(rng *rand.Rand, fanIn int, p *Param) {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2.0 / float64(fanIn)),
		Src:   rng,
	}
	d := f64(p.Value)
	for i := range d {
		d[i] = dist.Rand()
	}
}

func sameDims(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
