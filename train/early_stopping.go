package train

import "math"

// EarlyStopping tracks the best validation score and counts the epochs
// since it last improved.
type EarlyStopping struct {
	Rounds          int     // epochs without improvement before stopping
	BestScore       float64 // best score seen so far
	BestEpoch       int     // epoch with the best score
	RoundsNoImprove int     // epochs since the last improvement
	Metric          string  // watched metric name
	Minimize        bool    // whether lower is better
	Enabled         bool
}

// NewEarlyStopping creates a handler watching metric. Loss-like metrics are
// minimized; accuracy-like metrics are maximized. rounds <= 0 disables it.
func NewEarlyStopping(rounds int, metric string) *EarlyStopping {
	if rounds <= 0 {
		return &EarlyStopping{Enabled: false}
	}

	minimize := true
	switch metric {
	case "accuracy", "val_accuracy", "precision", "recall", "f1":
		minimize = false
	}

	bestScore := math.Inf(1)
	if !minimize {
		bestScore = math.Inf(-1)
	}

	return &EarlyStopping{
		Rounds:    rounds,
		BestScore: bestScore,
		Metric:    metric,
		Minimize:  minimize,
		Enabled:   true,
	}
}

// Update records the score for epoch and returns true when training should
// stop.
func (es *EarlyStopping) Update(epoch int, score float64) bool {
	if !es.Enabled {
		return false
	}

	improved := false
	if es.Minimize {
		improved = score < es.BestScore
	} else {
		improved = score > es.BestScore
	}

	if improved {
		es.BestScore = score
		es.BestEpoch = epoch
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}

	return es.RoundsNoImprove >= es.Rounds
}

// ShouldStop reports whether the patience has run out.
func (es *EarlyStopping) ShouldStop() bool {
	if !es.Enabled {
		return false
	}
	return es.RoundsNoImprove >= es.Rounds
}
