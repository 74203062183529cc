package volume

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorgonia.org/tensor"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// writeSplit lays out dir/0 and dir/1 with neg and pos constant-filled
// volumes. Each file's voxels all hold its index within its class, offset
// by 1000 for the positive class.
func writeSplit(t *testing.T, dir string, shape Shape, neg, pos int) {
	t.Helper()
	for class, count := range map[string]int{"0": neg, "1": pos} {
		classDir := filepath.Join(dir, class)
		if err := os.MkdirAll(classDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < count; i++ {
			fill := float64(i)
			if class == "1" {
				fill += 1000
			}
			data := make([]float64, shape.Size())
			for j := range data {
				data[j] = fill
			}
			v := tensor.New(tensor.WithShape(shape.Dims()...), tensor.WithBacking(data))
			if err := Save(filepath.Join(classDir, fmt.Sprintf("case_%03d.npy", i)), v); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		filepath.Join(dir, "x.npy"),
		filepath.Join(nested, "y.npy"),
		filepath.Join(dir, "ignore.txt"),
	} {
		if err := os.WriteFile(name, []byte("stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := DiscoverFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("found %d files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		if !strings.HasSuffix(f, ".npy") {
			t.Errorf("non-npy file discovered: %s", f)
		}
	}
}

func TestLoadSplitLabelsFollowDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, testShape, 3, 2)

	ds, err := LoadSplit(dir, testShape)
	if err != nil {
		t.Fatalf("LoadSplit: %v", err)
	}

	if ds.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", ds.Len())
	}
	if ds.Positives() != 2 {
		t.Errorf("Positives() = %d, want 2", ds.Positives())
	}

	sep := string(filepath.Separator)
	for i, f := range ds.Files {
		fromPos := strings.Contains(f, sep+"1"+sep)
		if ds.Y[i] != fromPos {
			t.Errorf("label for %s = %v, want %v", f, ds.Y[i], fromPos)
		}

		// Volume content must belong to the labelled class too.
		v := ds.Sample(i).Data().([]float64)[0]
		if ds.Y[i] != (v >= 1000) {
			t.Errorf("sample %d: voxel value %v inconsistent with label %v", i, v, ds.Y[i])
		}
	}
}

func TestLoadSplitEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "1"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := LoadSplit(dir, testShape)
	if !verrors.Is(err, verrors.ErrNoVolumes) {
		t.Errorf("expected ErrNoVolumes, got %v", err)
	}
}

func TestShuffleKeepsSamplesPaired(t *testing.T) {
	shape := Shape{H: 2, W: 2, D: 2, C: 1}
	const n = 20
	size := shape.Size()

	backing := make([]float64, n*size)
	labels := make([]bool, n)
	files := make([]string, n)
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			backing[i*size+j] = float64(i)
		}
		labels[i] = i%3 == 0
		files[i] = fmt.Sprintf("case_%03d.npy", i)
	}
	ds := &Dataset{
		X:     tensor.New(tensor.WithShape(n, 2, 2, 2, 1), tensor.WithBacking(backing)),
		Y:     append([]bool(nil), labels...),
		Files: append([]string(nil), files...),
		Shape: shape,
	}

	rng := rand.New(rand.NewPCG(7, 7))
	ds.Shuffle(rng)

	moved := false
	for i := 0; i < n; i++ {
		orig := int(ds.Sample(i).Data().([]float64)[0])
		if orig != i {
			moved = true
		}
		if ds.Files[i] != files[orig] {
			t.Errorf("position %d: volume %d paired with file %s", i, orig, ds.Files[i])
		}
		if ds.Y[i] != labels[orig] {
			t.Errorf("position %d: volume %d paired with label %v", i, orig, ds.Y[i])
		}
	}
	if !moved {
		t.Error("shuffle left every sample in place")
	}
}

func TestNormalize(t *testing.T) {
	shape := Shape{H: 2, W: 2, D: 2, C: 1}
	size := shape.Size()
	backing := []float64{
		// sample 0: spread values
		1, 2, 3, 4, 5, 6, 7, 8,
		// sample 1: constant, must not divide by ~zero
		5, 5, 5, 5, 5, 5, 5, 5,
	}
	ds := &Dataset{
		X:     tensor.New(tensor.WithShape(2, 2, 2, 2, 1), tensor.WithBacking(backing)),
		Y:     []bool{false, true},
		Files: []string{"a.npy", "b.npy"},
		Shape: shape,
	}

	ds.Normalize()

	data := ds.X.Data().([]float64)
	for s := 0; s < 2; s++ {
		row := data[s*size : (s+1)*size]
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(size)
		if math.Abs(mean) > 1e-12 {
			t.Errorf("sample %d mean = %v, want 0", s, mean)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("sample %d produced non-finite value %v", s, v)
			}
		}
	}

	// Spread sample ends up with unit standard deviation.
	row := data[:size]
	var sq float64
	for _, v := range row {
		sq += v * v
	}
	std := math.Sqrt(sq / float64(size))
	if math.Abs(std-1) > 1e-9 {
		t.Errorf("sample 0 std = %v, want 1", std)
	}
}
