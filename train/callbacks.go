package train

import (
	"log/slog"
	"math"
	"time"

	"github.com/YuminosukeSato/voxnet/nn"
	voxlog "github.com/YuminosukeSato/voxnet/pkg/log"
)

// CallbackEnv is the state handed to callbacks after each epoch.
type CallbackEnv struct {
	Model        *nn.Network
	Epoch        int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is invoked around each training epoch.
type Callback func(env *CallbackEnv) error

// PrintEvaluation logs the epoch metrics every period epochs.
func PrintEvaluation(period int) Callback {
	return func(env *CallbackEnv) error {
		if period <= 0 || env.Epoch%period != 0 {
			return nil
		}
		attrs := []any{
			slog.Int(voxlog.EpochKey, env.Epoch),
			slog.Float64(voxlog.DurationSecondsKey, env.EndTime.Sub(env.BeginTime).Seconds()),
		}
		for name, value := range env.EvalResults {
			attrs = append(attrs, slog.Float64(name, value))
		}
		slog.Info("epoch finished", attrs...)
		return nil
	}
}

// RecordEvaluation appends every epoch metric to the history.
func RecordEvaluation(history *History) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history.Record(name, value)
		}
		return nil
	}
}

// ModelCheckpoint saves the model to path whenever the watched metric
// improves (decreases). The file is only ever overwritten with a better
// model, so it always holds the best epoch seen so far.
func ModelCheckpoint(path, metric string) Callback {
	best := math.Inf(1)
	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if value >= best {
			return nil
		}
		best = value
		if err := env.Model.Save(path); err != nil {
			return err
		}
		slog.Info("checkpoint saved",
			slog.String(voxlog.OperationKey, voxlog.OperationCheckpoint),
			slog.Int(voxlog.EpochKey, env.Epoch),
			slog.Float64(metric, value),
			slog.String("path", path))
		return nil
	}
}

// EarlyStoppingCallback stops training after rounds epochs without
// improvement on the watched metric.
func EarlyStoppingCallback(rounds int, metric string) Callback {
	es := NewEarlyStopping(rounds, metric)
	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if es.Update(env.Epoch, value) {
			slog.Info("early stopping",
				slog.Int(voxlog.EpochKey, env.Epoch),
				slog.Int("best_epoch", es.BestEpoch),
				slog.Float64("best_"+metric, es.BestScore))
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList runs a set of callbacks and tracks the stop flag.
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env: &CallbackEnv{
			EvalResults: make(map[string]float64),
		},
	}
}

// BeforeEpoch records the epoch start.
func (cl *CallbackList) BeforeEpoch(epoch int, model *nn.Network) {
	cl.env.Epoch = epoch
	cl.env.Model = model
	cl.env.BeginTime = time.Now()
}

// AfterEpoch hands the finished epoch to every callback.
func (cl *CallbackList) AfterEpoch(epoch int, model *nn.Network, evalResults map[string]float64) error {
	cl.env.Epoch = epoch
	cl.env.Model = model
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop reports whether any callback requested a stop.
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
