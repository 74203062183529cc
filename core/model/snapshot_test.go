package model

import (
	"path/filepath"
	"testing"
)

func sampleSnapshot() *NetworkSnapshot {
	return &NetworkSnapshot{
		ModelType: "SexDetNet",
		Version:   "1",
		IsFitted:  true,
		Tensors: map[string]TensorData{
			"predictions/w": {Shape: []int{2, 1}, Data: []float64{0.5, -0.25}},
			"predictions/b": {Shape: []int{1}, Data: []float64{0.1}},
		},
	}
}

func TestNetworkSnapshotValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NetworkSnapshot)
		wantErr bool
	}{
		{"valid", func(ns *NetworkSnapshot) {}, false},
		{"missing model type", func(ns *NetworkSnapshot) { ns.ModelType = "" }, true},
		{"missing version", func(ns *NetworkSnapshot) { ns.Version = "" }, true},
		{"fitted without tensors", func(ns *NetworkSnapshot) { ns.Tensors = nil }, true},
		{
			"shape data mismatch",
			func(ns *NetworkSnapshot) {
				ns.Tensors["predictions/w"] = TensorData{Shape: []int{3, 1}, Data: []float64{1, 2}}
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := sampleSnapshot()
			tt.mutate(ns)
			err := ns.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNetworkSnapshotClone(t *testing.T) {
	ns := sampleSnapshot()
	clone := ns.Clone()

	clone.Tensors["predictions/w"].Data[0] = 99

	if ns.Tensors["predictions/w"].Data[0] == 99 {
		t.Error("clone shares backing data with the original")
	}
	if clone.ModelType != ns.ModelType || clone.Version != ns.Version {
		t.Error("clone metadata differs from original")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sex_det.gob")

	ns := sampleSnapshot()
	if err := SaveModel(ns, path); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}

	var loaded NetworkSnapshot
	if err := LoadModel(&loaded, path); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	if loaded.ModelType != ns.ModelType {
		t.Errorf("ModelType = %q, want %q", loaded.ModelType, ns.ModelType)
	}
	if len(loaded.Tensors) != len(ns.Tensors) {
		t.Fatalf("got %d tensors, want %d", len(loaded.Tensors), len(ns.Tensors))
	}
	w := loaded.Tensors["predictions/w"]
	if w.Data[0] != 0.5 || w.Data[1] != -0.25 {
		t.Errorf("tensor data mismatch: %v", w.Data)
	}
	if !loaded.IsFitted {
		t.Error("IsFitted flag lost in round trip")
	}
}

func TestSaveModelOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sex_det.gob")

	first := sampleSnapshot()
	if err := SaveModel(first, path); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second := sampleSnapshot()
	second.Tensors["predictions/b"] = TensorData{Shape: []int{1}, Data: []float64{-3}}
	if err := SaveModel(second, path); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var loaded NetworkSnapshot
	if err := LoadModel(&loaded, path); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if got := loaded.Tensors["predictions/b"].Data[0]; got != -3 {
		t.Errorf("checkpoint not replaced: b = %v, want -3", got)
	}
}

func TestBaseEstimator(t *testing.T) {
	var e BaseEstimator
	if e.IsFitted() {
		t.Error("new estimator reports fitted")
	}
	e.SetFitted()
	if !e.IsFitted() {
		t.Error("SetFitted did not stick")
	}
	e.Reset()
	if e.IsFitted() {
		t.Error("Reset did not clear fitted state")
	}
}
