package augment

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/voxnet/volume"
)

// makeDataset builds an in-memory dataset of n constant-filled volumes where
// volume i holds the value i everywhere and is positive when i is odd.
func makeDataset(n int, shape volume.Shape) *volume.Dataset {
	size := shape.Size()
	backing := make([]float64, n*size)
	labels := make([]bool, n)
	files := make([]string, n)
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			backing[i*size+j] = float64(i)
		}
		labels[i] = i%2 == 1
		files[i] = fmt.Sprintf("case_%03d.npy", i)
	}
	return &volume.Dataset{
		X:     tensor.New(tensor.WithShape(n, shape.H, shape.W, shape.D, shape.C), tensor.WithBacking(backing)),
		Y:     labels,
		Files: files,
		Shape: shape,
	}
}

func TestFlowBatchShape(t *testing.T) {
	ds := makeDataset(10, testShape)
	g := &Generator{}
	flow, err := g.Flow(ds, 4, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	defer flow.Stop()

	batch, err := flow.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	s := batch.X.Shape()
	want := []int{4, testShape.H, testShape.W, testShape.D, testShape.C}
	for i := range want {
		if s[i] != want[i] {
			t.Fatalf("batch shape %v, want %v", s, want)
		}
	}
	if len(batch.Y) != 4 {
		t.Errorf("len(Y) = %d, want 4", len(batch.Y))
	}
}

func TestFlowIdentityPreservesLabelPairing(t *testing.T) {
	ds := makeDataset(8, testShape)
	g := &Generator{} // identity config, synchronous
	flow, err := g.Flow(ds, 4, rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}

	size := testShape.Size()
	for round := 0; round < 6; round++ {
		batch, err := flow.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		data := batch.X.Data().([]float64)
		for i := 0; i < 4; i++ {
			id := int(data[i*size]) // constant fill identifies the sample
			wantLabel := 0.0
			if id%2 == 1 {
				wantLabel = 1.0
			}
			if batch.Y[i] != wantLabel {
				t.Fatalf("round %d sample %d: volume %d labelled %v", round, i, id, batch.Y[i])
			}
		}
	}
}

func TestFlowCoversEverySamplePerPass(t *testing.T) {
	const n = 12
	ds := makeDataset(n, testShape)
	g := &Generator{}
	flow, err := g.Flow(ds, 4, rand.New(rand.NewPCG(3, 3)))
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}

	size := testShape.Size()
	seen := make(map[int]int)
	for b := 0; b < n/4; b++ {
		batch, err := flow.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		data := batch.X.Data().([]float64)
		for i := 0; i < 4; i++ {
			seen[int(data[i*size])]++
		}
	}

	for i := 0; i < n; i++ {
		if seen[i] != 1 {
			t.Errorf("sample %d drawn %d times in one pass, want exactly once", i, seen[i])
		}
	}
}

func TestFlowAugmentedBatchesWithWorkers(t *testing.T) {
	ds := makeDataset(10, testShape)
	g := &Generator{
		Config: Config{
			RotationRange:    30,
			WidthShiftRange:  0.125,
			HeightShiftRange: 0.125,
			DepthShiftRange:  0.125,
			ZoomRange:        0.125,
			HorizontalFlip:   true,
		},
		Workers: 4,
	}
	flow, err := g.Flow(ds, 5, rand.New(rand.NewPCG(4, 4)))
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}

	for round := 0; round < 4; round++ {
		batch, err := flow.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		for _, y := range batch.Y {
			if y != 0 && y != 1 {
				t.Fatalf("label %v outside {0, 1}", y)
			}
		}
		if got := batch.X.Shape()[0]; got != 5 {
			t.Fatalf("batch size %d, want 5", got)
		}
	}
}

func TestFlowPrefetching(t *testing.T) {
	ds := makeDataset(8, testShape)
	g := &Generator{Workers: 2, Queue: 3}
	flow, err := g.Flow(ds, 2, rand.New(rand.NewPCG(5, 5)))
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := flow.Next(); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}

	flow.Stop()
	flow.Stop() // idempotent
}

// Two flows built from the same source must not contend on it: the
// prefetching flow samples transforms on its producer goroutine while the
// consumer keeps drawing identity batches from the second flow.
func TestFlowsFromSharedSourceDoNotContend(t *testing.T) {
	ds := makeDataset(8, testShape)
	rng := rand.New(rand.NewPCG(7, 7))

	trainGen := &Generator{
		Config:  Config{RotationRange: 30, ZoomRange: 0.125, HorizontalFlip: true},
		Workers: 2,
		Queue:   4,
	}
	trainFlow, err := trainGen.Flow(ds, 2, rng)
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	defer trainFlow.Stop()

	valFlow, err := (&Generator{}).Flow(ds, 2, rng)
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := trainFlow.Next(); err != nil {
			t.Fatalf("train Next %d: %v", i, err)
		}
		if _, err := valFlow.Next(); err != nil {
			t.Fatalf("val Next %d: %v", i, err)
		}
	}
}

func TestFlowRejectsBadInput(t *testing.T) {
	ds := makeDataset(4, testShape)
	rng := rand.New(rand.NewPCG(6, 6))

	if _, err := (&Generator{}).Flow(ds, 0, rng); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := (&Generator{}).Flow(nil, 2, rng); err == nil {
		t.Error("expected error for nil dataset")
	}
	bad := &Generator{Config: Config{ZoomRange: 2}}
	if _, err := bad.Flow(ds, 2, rng); err == nil {
		t.Error("expected error for invalid config")
	}
}
