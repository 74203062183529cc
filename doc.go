// Package voxnet trains a 3D convolutional residual network that classifies
// volumetric medical-imaging data (binary sex determination from CT/MRI-like
// volumes).
//
// The module is organized as a small library plus one batch-training command:
//
//   - volume: .npy volume discovery, loading and dataset assembly
//   - augment: random affine augmentation and batch generation
//   - nn: 3D layers, residual blocks, the network and its loss
//   - optim: gradient-based optimizers
//   - metrics: binary classification metrics
//   - train: generator-driven fit loop, callbacks, checkpointing
//   - config: settings file handling
//   - core/model: persistence and estimator state
//   - core/parallel: parallel processing utilities
//   - pkg/errors, pkg/log: error handling and structured logging
//
// The training entry point lives in cmd/voxnet-train. It expects volumes laid
// out as <data_dir>/{train,val}/{0,1}/**/*.npy, each file holding one
// 32x32x64x1 scan, and writes the best-validation-loss checkpoint under the
// configured weights directory.
package voxnet
