package nn

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// ResidualBlock is the pre-activation unit the network is built from:
//
//	BN -> ReLU -> Conv3x3x3 (stride s) -> BN -> ReLU -> Conv3x3x3 -> (+) shortcut
//
// The shortcut is the identity when the block keeps resolution and channel
// count; a strided 1x1x1 projection convolution otherwise.
type ResidualBlock struct {
	bn1   *BatchNorm
	relu1 *ReLU
	conv1 *Conv3D
	bn2   *BatchNorm
	relu2 *ReLU
	conv2 *Conv3D

	proj *Conv3D // nil for identity shortcut
}

// NewResidualBlock builds one block taking in channels and producing filters
// channels, downsampling all spatial axes by stride.
func NewResidualBlock(name string, in, filters, stride int, rng *rand.Rand) *ResidualBlock {
	b := &ResidualBlock{
		bn1:   NewBatchNorm(name+"/bn1", in),
		relu1: NewReLU(),
		conv1: NewConv3D(name+"/conv1", in, filters, [3]int{3, 3, 3}, stride, rng),
		bn2:   NewBatchNorm(name+"/bn2", filters),
		relu2: NewReLU(),
		conv2: NewConv3D(name+"/conv2", filters, filters, [3]int{3, 3, 3}, 1, rng),
	}
	if stride > 1 || in != filters {
		b.proj = NewConv3D(name+"/shortcut", in, filters, [3]int{1, 1, 1}, stride, rng)
	}
	return b
}

func (b *ResidualBlock) Params() []*Param {
	params := append([]*Param{}, b.bn1.Params()...)
	params = append(params, b.conv1.Params()...)
	params = append(params, b.bn2.Params()...)
	params = append(params, b.conv2.Params()...)
	if b.proj != nil {
		params = append(params, b.proj.Params()...)
	}
	return params
}

// State exposes the batch-norm running statistics of both norms.
func (b *ResidualBlock) State() []*Param {
	state := append([]*Param{}, b.bn1.State()...)
	return append(state, b.bn2.State()...)
}

func (b *ResidualBlock) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	h, err := b.bn1.Forward(x, training)
	if err != nil {
		return nil, err
	}
	if h, err = b.relu1.Forward(h, training); err != nil {
		return nil, err
	}
	if h, err = b.conv1.Forward(h, training); err != nil {
		return nil, err
	}
	if h, err = b.bn2.Forward(h, training); err != nil {
		return nil, err
	}
	if h, err = b.relu2.Forward(h, training); err != nil {
		return nil, err
	}
	if h, err = b.conv2.Forward(h, training); err != nil {
		return nil, err
	}

	shortcut := x
	if b.proj != nil {
		if shortcut, err = b.proj.Forward(x, training); err != nil {
			return nil, err
		}
	}

	if !sameDims(h.Shape(), shortcut.Shape()) {
		return nil, verrors.NewVolumeShapeError("ResidualBlock.Forward", "", shortcut.Shape(), h.Shape())
	}

	out := make([]float64, len(f64(h)))
	hs := f64(h)
	ss := f64(shortcut)
	for i := range out {
		out[i] = hs[i] + ss[i]
	}
	return tensor.New(tensor.WithShape(h.Shape()...), tensor.WithBacking(out)), nil
}

func (b *ResidualBlock) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	// The add fans the gradient out to both paths unchanged.
	g, err := b.conv2.Backward(grad)
	if err != nil {
		return nil, err
	}
	if g, err = b.relu2.Backward(g); err != nil {
		return nil, err
	}
	if g, err = b.bn2.Backward(g); err != nil {
		return nil, err
	}
	if g, err = b.conv1.Backward(g); err != nil {
		return nil, err
	}
	if g, err = b.relu1.Backward(g); err != nil {
		return nil, err
	}
	if g, err = b.bn1.Backward(g); err != nil {
		return nil, err
	}

	var shortcutGrad *tensor.Dense
	if b.proj != nil {
		if shortcutGrad, err = b.proj.Backward(grad); err != nil {
			return nil, err
		}
	} else {
		shortcutGrad = grad
	}

	if !sameDims(g.Shape(), shortcutGrad.Shape()) {
		return nil, verrors.New(fmt.Sprintf(
			"residual block gradient shapes diverged: %v vs %v", g.Shape(), shortcutGrad.Shape()))
	}

	dx := f64(g)
	sg := f64(shortcutGrad)
	for i := range dx {
		dx[i] += sg[i]
	}
	return g, nil
}
