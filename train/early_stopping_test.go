package train

import "testing"

func TestEarlyStoppingStopsAfterPatience(t *testing.T) {
	es := NewEarlyStopping(3, "val_loss")

	if es.Update(1, 1.0) {
		t.Fatal("first score must not stop training")
	}
	// Three consecutive epochs without improvement exhaust the patience.
	if es.Update(2, 1.1) {
		t.Fatal("stopped after 1 bad epoch, patience is 3")
	}
	if es.Update(3, 1.2) {
		t.Fatal("stopped after 2 bad epochs, patience is 3")
	}
	if !es.Update(4, 1.05) {
		t.Fatal("expected stop after 3 epochs without improvement")
	}

	if es.BestEpoch != 1 {
		t.Errorf("BestEpoch = %d, want 1", es.BestEpoch)
	}
	if es.BestScore != 1.0 {
		t.Errorf("BestScore = %v, want 1.0", es.BestScore)
	}
}

func TestEarlyStoppingResetsOnImprovement(t *testing.T) {
	es := NewEarlyStopping(2, "val_loss")

	es.Update(1, 1.0)
	es.Update(2, 1.5) // 1 without improvement
	es.Update(3, 0.8) // improvement resets the counter
	if es.Update(4, 0.9) {
		t.Fatal("stopped too early after reset")
	}
	if !es.Update(5, 0.85) {
		t.Fatal("expected stop once patience ran out again")
	}
	if es.BestEpoch != 3 {
		t.Errorf("BestEpoch = %d, want 3", es.BestEpoch)
	}
}

func TestEarlyStoppingMaximizesAccuracy(t *testing.T) {
	es := NewEarlyStopping(2, "val_accuracy")
	if es.Minimize {
		t.Fatal("accuracy should be maximized")
	}

	es.Update(1, 0.6)
	es.Update(2, 0.7)
	es.Update(3, 0.65)
	if !es.Update(4, 0.69) {
		t.Error("expected stop after 2 epochs below the best accuracy")
	}
	if es.BestScore != 0.7 {
		t.Errorf("BestScore = %v, want 0.7", es.BestScore)
	}
}

func TestEarlyStoppingDisabled(t *testing.T) {
	es := NewEarlyStopping(0, "val_loss")
	if es.Enabled {
		t.Fatal("rounds <= 0 must disable early stopping")
	}
	for i := 1; i <= 100; i++ {
		if es.Update(i, float64(i)) {
			t.Fatal("disabled early stopping requested a stop")
		}
	}
}
