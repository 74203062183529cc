package nn

import (
	"math/rand/v2"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Flatten collapses every axis after the batch axis into one feature axis.
type Flatten struct {
	inShape tensor.Shape
}

func NewFlatten() *Flatten {
	return &Flatten{}
}

func (f *Flatten) Params() []*Param { return nil }

func (f *Flatten) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) < 2 {
		return nil, verrors.NewDimensionError("Flatten.Forward", 2, len(s), 0)
	}
	n := s[0]
	features := 1
	for _, d := range s[1:] {
		features *= d
	}
	f.inShape = s.Clone()

	out := make([]float64, len(f64(x)))
	copy(out, f64(x))
	return tensor.New(tensor.WithShape(n, features), tensor.WithBacking(out)), nil
}

func (f *Flatten) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if f.inShape == nil {
		return nil, verrors.NewModelError("Flatten.Backward", "no cached forward pass", nil)
	}
	dx := make([]float64, len(f64(grad)))
	copy(dx, f64(grad))
	return tensor.New(tensor.WithShape(f.inShape...), tensor.WithBacking(dx)), nil
}

// Dense is a fully connected layer: y = xW + b with x (N, In), W (In, Out).
type Dense struct {
	In  int
	Out int

	w *Param
	b *Param

	x *tensor.Dense
}

func NewDense(name string, in, out int, rng *rand.Rand) *Dense {
	d := &Dense{
		In:  in,
		Out: out,
		w:   newParam(name+"/w", in, out),
		b:   newParam(name+"/b", out),
	}
	heNormal(rng, in, d.w)
	return d
}

func (l *Dense) Params() []*Param {
	return []*Param{l.w, l.b}
}

func (l *Dense) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) != 2 {
		return nil, verrors.NewDimensionError("Dense.Forward", 2, len(s), 0)
	}
	if s[1] != l.In {
		return nil, verrors.NewDimensionError("Dense.Forward", l.In, s[1], 1)
	}
	n := s[0]

	in := f64(x)
	wt := f64(l.w.Value)
	bs := f64(l.b.Value)
	out := make([]float64, n*l.Out)

	for i := 0; i < n; i++ {
		row := in[i*l.In : (i+1)*l.In]
		dst := out[i*l.Out : (i+1)*l.Out]
		copy(dst, bs)
		for j, v := range row {
			if v == 0 {
				continue
			}
			wRow := wt[j*l.Out : (j+1)*l.Out]
			for k, wv := range wRow {
				dst[k] += v * wv
			}
		}
	}

	l.x = x
	return tensor.New(tensor.WithShape(n, l.Out), tensor.WithBacking(out)), nil
}

func (l *Dense) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.x == nil {
		return nil, verrors.NewModelError("Dense.Backward", "no cached forward input", nil)
	}
	n := l.x.Shape()[0]

	in := f64(l.x)
	wt := f64(l.w.Value)
	dy := f64(grad)
	dw := f64(l.w.Grad)
	db := f64(l.b.Grad)
	dx := make([]float64, n*l.In)

	for i := 0; i < n; i++ {
		row := in[i*l.In : (i+1)*l.In]
		g := dy[i*l.Out : (i+1)*l.Out]
		for k, gv := range g {
			db[k] += gv
		}
		for j, v := range row {
			wRow := wt[j*l.Out : (j+1)*l.Out]
			var acc float64
			for k, gv := range g {
				dw[j*l.Out+k] += v * gv
				acc += wRow[k] * gv
			}
			dx[i*l.In+j] = acc
		}
	}

	return tensor.New(tensor.WithShape(n, l.In), tensor.WithBacking(dx)), nil
}
