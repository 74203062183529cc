// Package log defines standard attribute keys for training operations.
//
// Using these keys keeps log output consistent across the dataset,
// augmentation and training packages so runs can be filtered and compared.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the network being trained.
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "evaluate", "predict", "checkpoint"
	OperationKey = "ml.operation"

	// PhaseKey indicates the phase of the run.
	// Examples: "training", "validation"
	PhaseKey = "ml.phase"
)

// Data shape and characteristics.
const (
	// SamplesKey indicates the number of samples in a dataset or batch.
	SamplesKey = "data.samples"

	// PositivesKey indicates the number of positive-class samples.
	PositivesKey = "data.positives"

	// NegativesKey indicates the number of negative-class samples.
	NegativesKey = "data.negatives"

	// BatchSizeKey indicates the mini-batch size.
	BatchSizeKey = "data.batch_size"

	// VolumeShapeKey records the configured volume shape.
	VolumeShapeKey = "data.volume_shape"
)

// Training progress and performance.
const (
	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// StepsKey records the number of batches per epoch.
	StepsKey = "training.steps"

	// LossKey records training loss.
	LossKey = "metrics.loss"

	// ValLossKey records validation loss.
	ValLossKey = "metrics.val_loss"

	// AccuracyKey records classification accuracy.
	AccuracyKey = "metrics.accuracy"

	// DurationSecondsKey records execution time for long operations.
	DurationSecondsKey = "perf.duration_seconds"

	// LearningRateKey records the optimizer learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants.
const (
	OperationFit        = "fit"
	OperationEvaluate   = "evaluate"
	OperationPredict    = "predict"
	OperationCheckpoint = "checkpoint"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
)
