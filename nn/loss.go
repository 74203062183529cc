package nn

import (
	"math"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// bceEpsilon keeps log arguments away from zero. Matches the conventional
// framework clipping for probabilities.
const bceEpsilon = 1e-7

// BCE computes mean binary cross-entropy between predicted probabilities
// (N, 1) and 0/1 targets, and the gradient of the loss with respect to the
// predictions.
func BCE(pred *tensor.Dense, targets []float64) (float64, *tensor.Dense, error) {
	s := pred.Shape()
	if len(s) != 2 {
		return 0, nil, verrors.NewDimensionError("nn.BCE", 2, len(s), 0)
	}
	if s[1] != 1 {
		return 0, nil, verrors.NewDimensionError("nn.BCE", 1, s[1], 1)
	}
	n := s[0]
	if n != len(targets) {
		return 0, nil, verrors.NewDimensionError("nn.BCE", n, len(targets), 0)
	}
	if n == 0 {
		return 0, nil, verrors.Wrap(verrors.ErrEmptyData, "nn.BCE")
	}

	p := f64(pred)
	grad := make([]float64, n)
	var loss float64
	for i := 0; i < n; i++ {
		pi := verrors.ClipValue(p[i], bceEpsilon, 1-bceEpsilon)
		y := targets[i]
		loss -= y*math.Log(pi) + (1-y)*math.Log(1-pi)
		grad[i] = (pi - y) / (pi * (1 - pi) * float64(n))
	}
	loss /= float64(n)

	return loss, tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(grad)), nil
}
