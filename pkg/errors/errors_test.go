package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "voxnet: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "voxnet: Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}
		})
	}
}

func TestVolumeShapeError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		path     string
		expected []int
		got      []int
		wantMsg  string
	}{
		{
			name:     "with path",
			op:       "volume.Load",
			path:     "train/1/case_042.npy",
			expected: []int{32, 32, 64, 1},
			got:      []int{32, 32, 32, 1},
			wantMsg:  `voxnet: volume.Load: volume "train/1/case_042.npy" has shape [32 32 32 1], expected [32 32 64 1]`,
		},
		{
			name:     "without path",
			op:       "ResidualBlock.Forward",
			expected: []int{4, 16, 16, 32, 32},
			got:      []int{4, 8, 8, 16, 32},
			wantMsg:  "voxnet: ResidualBlock.Forward: volume shape mismatch. Expected [4 16 16 32 32], got [4 8 8 16 32]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVolumeShapeError(tt.op, tt.path, tt.expected, tt.got)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var shapeErr *VolumeShapeError
			if !As(err, &shapeErr) {
				t.Fatal("expected errors.As to unwrap *VolumeShapeError")
			}
			if shapeErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", shapeErr.Path, tt.path)
			}
		})
	}
}

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("SexDetNet", "Predict")
	want := "voxnet: SexDetNet: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestDimensionError(t *testing.T) {
	err := NewDimensionError("Dense.Forward", 128, 64, 1)
	want := "voxnet: Dense.Forward: dimension mismatch on axis 1. Expected 128, got 64"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("batch_size", "must be positive", -1)
	want := "voxnet: validation failed for parameter 'batch_size': must be positive (got: -1)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) { captured = w })
	defer SetWarningHandler(nil)

	warning := NewUndefinedMetricWarning("Precision", "no predicted positives", 0)
	Warn(warning)

	if captured == nil {
		t.Fatal("warning handler was not called")
	}
	if !strings.Contains(captured.Error(), "Precision") {
		t.Errorf("unexpected warning message: %v", captured)
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrNoVolumes, "volume.LoadSplit")
	if !Is(err, ErrNoVolumes) {
		t.Error("wrapped error should match ErrNoVolumes")
	}
	if !strings.Contains(err.Error(), "volume.LoadSplit") {
		t.Errorf("wrap context missing: %v", err)
	}
}
