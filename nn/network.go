package nn

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/tensor"

	coremodel "github.com/YuminosukeSato/voxnet/core/model"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
	"github.com/YuminosukeSato/voxnet/volume"
)

// SnapshotVersion identifies the checkpoint layout produced by Snapshot.
const SnapshotVersion = "1"

// Network is a plain layer stack. Residual branching lives inside
// ResidualBlock, so forward and backward stay a simple chain.
type Network struct {
	coremodel.BaseEstimator

	Name   string
	layers []Layer
}

// NewNetwork builds a network from pre-built layers.
func NewNetwork(name string, layers ...Layer) *Network {
	return &Network{Name: name, layers: layers}
}

// NewSexDetNet assembles the sex-determination architecture: an initial
// 5x5x5 convolution, four stages of three residual blocks at widths 16, 32,
// 64 and 128 with one downsampling block per stage after the first, then
// BN, ReLU, global-extent average pooling and a single sigmoid unit.
//
// The input extents must be divisible by 8 so that three stride-2 stages
// land exactly on the pooling window.
func NewSexDetNet(shape volume.Shape, rng *rand.Rand) (*Network, error) {
	if shape.H%8 != 0 || shape.W%8 != 0 || shape.D%8 != 0 {
		return nil, verrors.NewValidationError("shape", "spatial extents must be divisible by 8", shape.Dims())
	}

	layers := []Layer{
		NewConv3D("conv0", shape.C, 16, [3]int{5, 5, 5}, 1, rng),
	}

	widths := []int{16, 32, 64, 128}
	in := 16
	for stage, filters := range widths {
		for block := 0; block < 3; block++ {
			stride := 1
			if stage > 0 && block == 0 {
				stride = 2
			}
			name := fmt.Sprintf("stage%d/block%d", stage, block)
			layers = append(layers, NewResidualBlock(name, in, filters, stride, rng))
			in = filters
		}
	}

	layers = append(layers,
		NewBatchNorm("post/bn", 128),
		NewReLU(),
		NewAvgPool3D([3]int{shape.H / 8, shape.W / 8, shape.D / 8}),
		NewFlatten(),
		NewDense("predictions", 128, 1, rng),
		NewSigmoid(),
	)

	return NewNetwork("SexDetNet", layers...), nil
}

// Forward runs the full stack. With training true, layers cache what their
// backward passes need and batch norm uses batch statistics.
func (n *Network) Forward(x *tensor.Dense, training bool) (*tensor.Dense, error) {
	var err error
	for _, l := range n.layers {
		if x, err = l.Forward(x, training); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Backward propagates the loss gradient through the stack, accumulating
// parameter gradients.
func (n *Network) Backward(grad *tensor.Dense) error {
	var err error
	for i := len(n.layers) - 1; i >= 0; i-- {
		if grad, err = n.layers[i].Backward(grad); err != nil {
			return err
		}
	}
	return nil
}

// Predict runs an inference forward pass and returns (N, 1) probabilities.
func (n *Network) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	return n.Forward(x, false)
}

// Params returns every trainable parameter in layer order.
func (n *Network) Params() []*Param {
	var params []*Param
	for _, l := range n.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// ZeroGrads clears all parameter gradients before a new batch.
func (n *Network) ZeroGrads() {
	for _, p := range n.Params() {
		p.ZeroGrad()
	}
}

// state returns checkpointed non-trainable tensors (running statistics).
func (n *Network) state() []*Param {
	var state []*Param
	for _, l := range n.layers {
		if s, ok := l.(Stateful); ok {
			state = append(state, s.State()...)
		}
	}
	return state
}

// Snapshot captures all weights and running statistics for persistence.
func (n *Network) Snapshot() *coremodel.NetworkSnapshot {
	snap := &coremodel.NetworkSnapshot{
		ModelType: n.Name,
		Version:   SnapshotVersion,
		Tensors:   make(map[string]coremodel.TensorData),
		IsFitted:  n.IsFitted(),
	}
	for _, p := range append(n.Params(), n.state()...) {
		data := make([]float64, len(f64(p.Value)))
		copy(data, f64(p.Value))
		snap.Tensors[p.Name] = coremodel.TensorData{
			Shape: append([]int(nil), p.Value.Shape()...),
			Data:  data,
		}
	}
	return snap
}

// Restore loads a snapshot into the network. Every tensor must be present
// with a matching shape.
func (n *Network) Restore(snap *coremodel.NetworkSnapshot) error {
	if err := snap.Validate(); err != nil {
		return verrors.NewModelError("Network.Restore", "invalid snapshot", err)
	}
	if snap.ModelType != n.Name {
		return verrors.NewValueError("Network.Restore",
			fmt.Sprintf("snapshot holds %q, network is %q", snap.ModelType, n.Name))
	}
	for _, p := range append(n.Params(), n.state()...) {
		td, ok := snap.Tensors[p.Name]
		if !ok {
			return verrors.NewValueError("Network.Restore", "snapshot missing tensor "+p.Name)
		}
		if !sameDims(p.Value.Shape(), tensor.Shape(td.Shape)) {
			return verrors.NewVolumeShapeError("Network.Restore", p.Name, p.Value.Shape(), td.Shape)
		}
		copy(f64(p.Value), td.Data)
	}
	if snap.IsFitted {
		n.SetFitted()
	}
	return nil
}

// Save writes the network snapshot to a checkpoint file.
func (n *Network) Save(path string) error {
	return coremodel.SaveModel(n.Snapshot(), path)
}

// Load restores the network from a checkpoint file.
func (n *Network) Load(path string) error {
	var snap coremodel.NetworkSnapshot
	if err := coremodel.LoadModel(&snap, path); err != nil {
		return verrors.Wrap(err, "Network.Load")
	}
	return n.Restore(&snap)
}

// NumParams returns the total trainable parameter count.
func (n *Network) NumParams() int {
	total := 0
	for _, p := range n.Params() {
		total += len(f64(p.Value))
	}
	return total
}
