// Package config loads the training run configuration from a SETTINGS.json
// file and fills in defaults for anything left out.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/voxnet/augment"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// Settings describes one training run. Paths are resolved relative to the
// directory holding the settings file.
type Settings struct {
	DataDir    string `json:"data_dir"`
	WeightsDir string `json:"weights_dir"`
	PlotPath   string `json:"plot_path,omitempty"`

	BatchSize    int     `json:"batch_size"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Patience     int     `json:"early_stopping_rounds"`

	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Seed      uint64 `json:"seed"`
	Normalize bool   `json:"normalize"`
	LogLevel  string `json:"log_level"`

	Augmentation augment.Config `json:"augmentation"`
}

// Default returns the standard run configuration used when a field is
// missing from the file.
func Default() Settings {
	return Settings{
		DataDir:      "data_train/stage1/sex_det/volumes_1",
		WeightsDir:   "weights/stage1/sex_det",
		BatchSize:    16,
		Epochs:       1000,
		LearningRate: 1e-3,
		Patience:     10,
		Workers:      4,
		QueueSize:    20,
		Seed:         42,
		Normalize:    false,
		LogLevel:     "info",
		Augmentation: augment.Config{
			RotationRange:    30,
			WidthShiftRange:  0.125,
			HeightShiftRange: 0.125,
			DepthShiftRange:  0.125,
			ZoomRange:        0.125,
			HorizontalFlip:   true,
		},
	}
}

// Load reads path, overlays it on the defaults and validates the result.
// Relative paths in the file become relative to the file's directory.
func Load(path string) (Settings, error) {
	s := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return s, verrors.Wrapf(err, "config.Load: reading %s", path)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, verrors.Wrapf(err, "config.Load: parsing %s", path)
	}

	base := filepath.Dir(path)
	if !filepath.IsAbs(s.DataDir) {
		s.DataDir = filepath.Join(base, s.DataDir)
	}
	if !filepath.IsAbs(s.WeightsDir) {
		s.WeightsDir = filepath.Join(base, s.WeightsDir)
	}
	if s.PlotPath != "" && !filepath.IsAbs(s.PlotPath) {
		s.PlotPath = filepath.Join(base, s.PlotPath)
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the run configuration.
func (s Settings) Validate() error {
	if s.DataDir == "" {
		return verrors.NewValidationError("data_dir", "must not be empty", s.DataDir)
	}
	if s.WeightsDir == "" {
		return verrors.NewValidationError("weights_dir", "must not be empty", s.WeightsDir)
	}
	if s.BatchSize <= 0 {
		return verrors.NewValidationError("batch_size", "must be positive", s.BatchSize)
	}
	if s.Epochs <= 0 {
		return verrors.NewValidationError("epochs", "must be positive", s.Epochs)
	}
	if s.LearningRate <= 0 {
		return verrors.NewValidationError("learning_rate", "must be positive", s.LearningRate)
	}
	if s.Workers < 0 {
		return verrors.NewValidationError("workers", "must not be negative", s.Workers)
	}
	if s.QueueSize < 0 {
		return verrors.NewValidationError("queue_size", "must not be negative", s.QueueSize)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return verrors.NewValidationError("log_level", "must be one of debug, info, warn, error", s.LogLevel)
	}
	return s.Augmentation.Validate()
}

// TrainDir returns the training split directory.
func (s Settings) TrainDir() string {
	return filepath.Join(s.DataDir, "train")
}

// ValDir returns the validation split directory.
func (s Settings) ValDir() string {
	return filepath.Join(s.DataDir, "val")
}

// WeightsPath returns the checkpoint file location.
func (s Settings) WeightsPath() string {
	return filepath.Join(s.WeightsDir, "sex_det.gob")
}
