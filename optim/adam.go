// Package optim provides gradient-based parameter optimizers.
package optim

import (
	"math"

	"github.com/YuminosukeSato/voxnet/nn"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Adam updates parameters with adaptive per-weight moment estimates.
// Parameters are modified in place; their Grad must be populated before
// each Step.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	params []*nn.Param
	t      int
	m      [][]float64 // first moment
	v      [][]float64 // second moment
}

// NewAdam creates an Adam optimizer over params with the given learning
// rate. Moment decay rates and epsilon use the standard defaults.
func NewAdam(params []*nn.Param, lr float64) (*Adam, error) {
	if len(params) == 0 {
		return nil, verrors.NewValueError("optim.NewAdam", "no parameters to optimize")
	}
	if lr <= 0 {
		return nil, verrors.NewValidationError("lr", "must be positive", lr)
	}
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		n := p.Value.Shape().TotalSize()
		a.m[i] = make([]float64, n)
		a.v[i] = make([]float64, n)
	}
	return a, nil
}

// Step applies one update. Bias correction follows the original paper:
// m_hat = m/(1-beta1^t), v_hat = v/(1-beta2^t).
func (a *Adam) Step() error {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range a.params {
		grad := p.Grad.Data().([]float64)
		val := p.Value.Data().([]float64)
		if err := verrors.CheckNumericalStability(p.Name, grad, a.t); err != nil {
			return err
		}
		m, v := a.m[i], a.v[i]
		for j, g := range grad {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
			val[j] -= a.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.Eps)
		}
	}
	return nil
}

// Reset clears the step counter and moment estimates.
func (a *Adam) Reset() {
	a.t = 0
	for i := range a.m {
		for j := range a.m[i] {
			a.m[i][j] = 0
			a.v[i][j] = 0
		}
	}
}
