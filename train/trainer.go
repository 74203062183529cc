// Package train drives the mini-batch training loop: forward pass, loss,
// backward pass, optimizer step, per-epoch validation and callbacks.
package train

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/voxnet/augment"
	"github.com/YuminosukeSato/voxnet/metrics"
	"github.com/YuminosukeSato/voxnet/nn"
	"github.com/YuminosukeSato/voxnet/optim"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
	voxlog "github.com/YuminosukeSato/voxnet/pkg/log"
)

// TrainingParams configures a training run.
type TrainingParams struct {
	Epochs          int     `json:"epochs"`
	StepsPerEpoch   int     `json:"steps_per_epoch"`
	ValidationSteps int     `json:"validation_steps"`
	LearningRate    float64 `json:"learning_rate"`
	EarlyStopping   int     `json:"early_stopping_rounds"`
	Verbosity       int     `json:"verbosity"`
}

// DefaultParams returns the standard configuration: checkpoint on every
// validation-loss improvement and stop after 10 epochs without one.
func DefaultParams() TrainingParams {
	return TrainingParams{
		Epochs:        1000,
		LearningRate:  1e-3,
		EarlyStopping: 10,
		Verbosity:     1,
	}
}

// Validate checks the parameters before training starts.
func (p TrainingParams) Validate() error {
	if p.Epochs <= 0 {
		return verrors.NewValidationError("epochs", "must be positive", p.Epochs)
	}
	if p.StepsPerEpoch <= 0 {
		return verrors.NewValidationError("steps_per_epoch", "must be positive", p.StepsPerEpoch)
	}
	if p.ValidationSteps <= 0 {
		return verrors.NewValidationError("validation_steps", "must be positive", p.ValidationSteps)
	}
	if p.LearningRate <= 0 {
		return verrors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	return nil
}

// Trainer runs the epoch loop for one model.
type Trainer struct {
	params    TrainingParams
	model     *nn.Network
	callbacks *CallbackList
	history   *History
}

// NewTrainer creates a trainer. RecordEvaluation is always installed so the
// returned History covers every run; pass additional callbacks for
// checkpointing, logging and early stopping.
func NewTrainer(model *nn.Network, params TrainingParams, callbacks ...Callback) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	history := NewHistory()
	cbs := append([]Callback{RecordEvaluation(history)}, callbacks...)
	if params.EarlyStopping > 0 {
		cbs = append(cbs, EarlyStoppingCallback(params.EarlyStopping, "val_loss"))
	}
	if params.Verbosity > 0 {
		cbs = append(cbs, PrintEvaluation(1))
	}
	return &Trainer{
		params:    params,
		model:     model,
		callbacks: NewCallbackList(cbs...),
		history:   history,
	}, nil
}

// History returns the metric series recorded so far.
func (t *Trainer) History() *History {
	return t.history
}

// FitGenerator trains the model on batches drawn from trainFlow, validating
// on valFlow after every epoch. It returns once Epochs have run or a
// callback stops training early.
func (t *Trainer) FitGenerator(trainFlow, valFlow *augment.Flow) (err error) {
	defer verrors.Recover(&err, "Trainer.FitGenerator")
	defer trainFlow.Stop()
	defer valFlow.Stop()

	opt, err := optim.NewAdam(t.model.Params(), t.params.LearningRate)
	if err != nil {
		return err
	}

	slog.Info("training started",
		slog.String(voxlog.OperationKey, voxlog.OperationFit),
		slog.Int("epochs", t.params.Epochs),
		slog.Int(voxlog.StepsKey, t.params.StepsPerEpoch),
		slog.Int(voxlog.BatchSizeKey, trainFlow.BatchSize()),
		slog.Float64(voxlog.LearningRateKey, t.params.LearningRate),
		slog.Int("model_params", t.model.NumParams()))

	for epoch := 1; epoch <= t.params.Epochs; epoch++ {
		t.callbacks.BeforeEpoch(epoch, t.model)

		trainLoss, trainAcc, err := t.runEpoch(trainFlow, opt, epoch)
		if err != nil {
			return err
		}
		valResults, err := t.evaluate(valFlow)
		if err != nil {
			return err
		}

		t.model.SetFitted()

		results := map[string]float64{
			"loss":     trainLoss,
			"accuracy": trainAcc,
		}
		for name, value := range valResults {
			results[name] = value
		}
		if err := t.callbacks.AfterEpoch(epoch, t.model, results); err != nil {
			return err
		}
		if t.callbacks.ShouldStop() {
			break
		}
	}
	return nil
}

// runEpoch performs StepsPerEpoch optimization steps and returns the mean
// training loss and accuracy.
func (t *Trainer) runEpoch(flow *augment.Flow, opt *optim.Adam, epoch int) (float64, float64, error) {
	var lossSum float64
	var correct, seen int

	for step := 0; step < t.params.StepsPerEpoch; step++ {
		batch, err := flow.Next()
		if err != nil {
			return 0, 0, err
		}

		t.model.ZeroGrads()
		pred, err := t.model.Forward(batch.X, true)
		if err != nil {
			return 0, 0, err
		}
		loss, grad, err := nn.BCE(pred, batch.Y)
		if err != nil {
			return 0, 0, err
		}
		if err := verrors.CheckScalar("Trainer.runEpoch", loss, epoch); err != nil {
			return 0, 0, err
		}
		if err := t.model.Backward(grad); err != nil {
			return 0, 0, err
		}
		if err := opt.Step(); err != nil {
			return 0, 0, err
		}

		lossSum += loss
		c, n := countCorrect(pred, batch.Y)
		correct += c
		seen += n
	}

	steps := float64(t.params.StepsPerEpoch)
	return lossSum / steps, float64(correct) / float64(seen), nil
}

// evaluate runs ValidationSteps inference batches and computes the
// validation metrics over all of them at once: loss, accuracy, precision,
// recall and F-measure.
func (t *Trainer) evaluate(flow *augment.Flow) (map[string]float64, error) {
	preds := make([]float64, 0, t.params.ValidationSteps*flow.BatchSize())
	targets := make([]float64, 0, cap(preds))

	for step := 0; step < t.params.ValidationSteps; step++ {
		batch, err := flow.Next()
		if err != nil {
			return nil, err
		}
		pred, err := t.model.Predict(batch.X)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred.Data().([]float64)...)
		targets = append(targets, batch.Y...)
	}

	yTrue := mat.NewVecDense(len(targets), targets)
	yProb := mat.NewVecDense(len(preds), preds)

	results := make(map[string]float64, 5)
	for name, metric := range map[string]func(*mat.VecDense, *mat.VecDense, float64) (float64, error){
		"val_accuracy":  metrics.Accuracy,
		"val_precision": metrics.Precision,
		"val_recall":    metrics.Recall,
		"val_fmeasure":  metrics.FMeasure,
	} {
		value, err := metric(yTrue, yProb, metrics.DefaultThreshold)
		if err != nil {
			return nil, err
		}
		results[name] = value
	}
	loss, err := metrics.LogLoss(yTrue, yProb)
	if err != nil {
		return nil, err
	}
	results["val_loss"] = loss
	return results, nil
}

// countCorrect thresholds (N, 1) probabilities at 0.5 against 0/1 targets.
func countCorrect(pred *tensor.Dense, targets []float64) (int, int) {
	p := pred.Data().([]float64)
	correct := 0
	for i, y := range targets {
		if (p[i] >= 0.5) == (y >= 0.5) {
			correct++
		}
	}
	return correct, len(targets)
}
