// Command voxnet-train trains the sex-determination network on a directory
// of labelled .npy volumes and keeps the best checkpoint by validation loss.
package main

import (
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/YuminosukeSato/voxnet/augment"
	"github.com/YuminosukeSato/voxnet/config"
	"github.com/YuminosukeSato/voxnet/nn"
	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
	voxlog "github.com/YuminosukeSato/voxnet/pkg/log"
	"github.com/YuminosukeSato/voxnet/train"
	"github.com/YuminosukeSato/voxnet/volume"
)

func main() {
	settingsPath := flag.String("settings", "SETTINGS.json", "path to the run configuration file")
	flag.Parse()

	settings, err := config.Load(*settingsPath)
	if err != nil {
		voxlog.SetupLogger("info")
		slog.Error("invalid configuration", voxlog.ErrAttr(err))
		os.Exit(1)
	}

	voxlog.SetupLogger(settings.LogLevel)
	voxlog.InitWarnBridge()

	if err := run(settings); err != nil {
		slog.Error("training failed", voxlog.ErrAttr(err))
		os.Exit(1)
	}
}

func run(settings config.Settings) error {
	shape := volume.DefaultShape
	rng := rand.New(rand.NewPCG(settings.Seed, settings.Seed))

	slog.Info("run configuration",
		slog.String("train_dir", settings.TrainDir()),
		slog.String("val_dir", settings.ValDir()),
		slog.String("weights_path", settings.WeightsPath()),
		slog.Int(voxlog.BatchSizeKey, settings.BatchSize),
		slog.Int("epochs", settings.Epochs),
		slog.Float64(voxlog.LearningRateKey, settings.LearningRate),
		slog.Uint64(voxlog.RandomSeedKey, settings.Seed),
		slog.Any(voxlog.VolumeShapeKey, shape.Dims()))

	trainSet, err := volume.LoadSplit(settings.TrainDir(), shape)
	if err != nil {
		return verrors.Wrap(err, "loading training split")
	}
	valSet, err := volume.LoadSplit(settings.ValDir(), shape)
	if err != nil {
		return verrors.Wrap(err, "loading validation split")
	}
	if settings.Normalize {
		trainSet.Normalize()
		valSet.Normalize()
	}
	trainSet.Shuffle(rng)

	logSplit("train", trainSet)
	logSplit("val", valSet)

	stepsPerEpoch := trainSet.Len() / settings.BatchSize
	validationSteps := valSet.Len() / settings.BatchSize
	if stepsPerEpoch == 0 || validationSteps == 0 {
		return verrors.Newf("splits too small for batch size %d: train=%d val=%d",
			settings.BatchSize, trainSet.Len(), valSet.Len())
	}

	trainGen := &augment.Generator{
		Config:  settings.Augmentation,
		Workers: settings.Workers,
		Queue:   settings.QueueSize,
	}
	trainFlow, err := trainGen.Flow(trainSet, settings.BatchSize, rng)
	if err != nil {
		return err
	}

	// Validation batches pass through untransformed.
	valGen := &augment.Generator{Config: augment.Config{}}
	valFlow, err := valGen.Flow(valSet, settings.BatchSize, rng)
	if err != nil {
		return err
	}

	model, err := nn.NewSexDetNet(shape, rng)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(settings.WeightsDir, 0o755); err != nil {
		return verrors.Wrap(err, "creating weights directory")
	}

	params := train.DefaultParams()
	params.Epochs = settings.Epochs
	params.StepsPerEpoch = stepsPerEpoch
	params.ValidationSteps = validationSteps
	params.LearningRate = settings.LearningRate
	params.EarlyStopping = settings.Patience

	trainer, err := train.NewTrainer(model, params,
		train.ModelCheckpoint(settings.WeightsPath(), "val_loss"))
	if err != nil {
		return err
	}

	if err := trainer.FitGenerator(trainFlow, valFlow); err != nil {
		return err
	}

	if settings.PlotPath != "" {
		if err := trainer.History().PlotCurves("sex_det training", settings.PlotPath); err != nil {
			return err
		}
		slog.Info("training curves written", slog.String("path", settings.PlotPath))
	}
	return nil
}

func logSplit(phase string, ds *volume.Dataset) {
	pos := ds.Positives()
	slog.Info("split loaded",
		slog.String(voxlog.PhaseKey, phase),
		slog.Int(voxlog.SamplesKey, ds.Len()),
		slog.Int(voxlog.PositivesKey, pos),
		slog.Int(voxlog.NegativesKey, ds.Len()-pos))
}
