package nn

import (
	"math"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// BatchNorm normalizes activations per channel over the batch and spatial
// axes (channels-last, so the last axis). Running statistics are tracked for
// evaluation mode and checkpointed alongside the trainable scale and shift.
type BatchNorm struct {
	Channels int
	Momentum float64
	Epsilon  float64

	gamma *Param
	beta  *Param

	runningMean *Param
	runningVar  *Param

	// forward cache
	x      *tensor.Dense
	xhat   []float64
	invStd []float64
}

// NewBatchNorm builds a batch-norm layer with scale 1, shift 0 and the usual
// momentum (0.99) and epsilon (1e-3).
func NewBatchNorm(name string, channels int) *BatchNorm {
	bn := &BatchNorm{
		Channels:    channels,
		Momentum:    0.99,
		Epsilon:     1e-3,
		gamma:       newParam(name+"/gamma", channels),
		beta:        newParam(name+"/beta", channels),
		runningMean: newParam(name+"/moving_mean", channels),
		runningVar:  newParam(name+"/moving_var", channels),
	}
	fill(bn.gamma.Value, 1)
	fill(bn.runningVar.Value, 1)
	return bn
}

func (bn *BatchNorm) Params() []*Param {
	return []*Param{bn.gamma, bn.beta}
}

// State exposes the running statistics for checkpointing.
func (bn *BatchNorm) State() []*Param {
	return []*Param{bn.runningMean, bn.runningVar}
}

func (bn *BatchNorm) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	s := x.Shape()
	ch := s[len(s)-1]
	if ch != bn.Channels {
		return nil, verrors.NewDimensionError("BatchNorm.Forward", bn.Channels, ch, len(s)-1)
	}

	in := f64(x)
	m := len(in) / ch // samples per channel

	gamma := f64(bn.gamma.Value)
	beta := f64(bn.beta.Value)

	var mean, invStd []float64
	if training {
		mean = make([]float64, ch)
		variance := make([]float64, ch)
		for i, v := range in {
			mean[i%ch] += v
		}
		for c := range mean {
			mean[c] /= float64(m)
		}
		for i, v := range in {
			diff := v - mean[i%ch]
			variance[i%ch] += diff * diff
		}
		for c := range variance {
			variance[c] /= float64(m)
		}

		rm := f64(bn.runningMean.Value)
		rv := f64(bn.runningVar.Value)
		for c := 0; c < ch; c++ {
			rm[c] = bn.Momentum*rm[c] + (1-bn.Momentum)*mean[c]
			rv[c] = bn.Momentum*rv[c] + (1-bn.Momentum)*variance[c]
		}

		invStd = make([]float64, ch)
		for c := 0; c < ch; c++ {
			invStd[c] = 1 / math.Sqrt(variance[c]+bn.Epsilon)
		}
	} else {
		mean = f64(bn.runningMean.Value)
		rv := f64(bn.runningVar.Value)
		invStd = make([]float64, ch)
		for c := 0; c < ch; c++ {
			invStd[c] = 1 / math.Sqrt(rv[c]+bn.Epsilon)
		}
	}

	out := make([]float64, len(in))
	xhat := make([]float64, len(in))
	for i, v := range in {
		c := i % ch
		xh := (v - mean[c]) * invStd[c]
		xhat[i] = xh
		out[i] = gamma[c]*xh + beta[c]
	}

	if training {
		bn.x = x
		bn.xhat = xhat
		bn.invStd = invStd
	}

	return tensor.New(tensor.WithShape(s...), tensor.WithBacking(out)), nil
}

func (bn *BatchNorm) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if bn.xhat == nil {
		return nil, verrors.NewModelError("BatchNorm.Backward", "no cached forward pass", nil)
	}

	dy := f64(grad)
	ch := bn.Channels
	m := float64(len(dy) / ch)

	gamma := f64(bn.gamma.Value)
	dGamma := f64(bn.gamma.Grad)
	dBeta := f64(bn.beta.Grad)

	sumDy := make([]float64, ch)
	sumDyXhat := make([]float64, ch)
	for i, g := range dy {
		c := i % ch
		sumDy[c] += g
		sumDyXhat[c] += g * bn.xhat[i]
	}
	for c := 0; c < ch; c++ {
		dGamma[c] += sumDyXhat[c]
		dBeta[c] += sumDy[c]
	}

	dx := make([]float64, len(dy))
	for i, g := range dy {
		c := i % ch
		dx[i] = gamma[c] * bn.invStd[c] * (g - sumDy[c]/m - bn.xhat[i]*sumDyXhat[c]/m)
	}

	return tensor.New(tensor.WithShape(grad.Shape()...), tensor.WithBacking(dx)), nil
}
