package junction

import (
	"math"
	"testing"
)

func TestQueueReduction(t *testing.T) {
	reduction := NewQueueReduction()

	if got := reduction.Observe(0); got != 0 {
		t.Errorf("Expected 0 before a baseline exists, got %v", got)
	}
	if reduction.Baseline() != 0 {
		t.Errorf("Expected empty ticks not to set the baseline")
	}

	if got := reduction.Observe(8); got != 0 {
		t.Errorf("Expected 0 on the baseline tick, got %v", got)
	}
	if reduction.Baseline() != 8 {
		t.Errorf("Expected baseline 8, got %d", reduction.Baseline())
	}

	if got := reduction.Observe(6); math.Abs(got-25) > 1e-9 {
		t.Errorf("Expected 25%% reduction, got %v", got)
	}
	if got := reduction.Observe(12); got != 0 {
		t.Errorf("Expected growth to report 0, got %v", got)
	}
	if got := reduction.Observe(0); got != 100 {
		t.Errorf("Expected 100%% when the queue clears, got %v", got)
	}

	reduction.Reset()
	if reduction.Baseline() != 0 {
		t.Errorf("Expected reset to clear the baseline")
	}
}

func TestFrame(t *testing.T) {
	pair := Pair{NS: Snap(3, 1, 2), SN: Snap(1, 2, 1)}
	frame := NewFrame(Status{Phase: PhaseBGreen}, pair, 12.5)

	if frame.Pair() != pair {
		t.Errorf("Expected frame to round-trip its pair")
	}
	if frame.Status.Phase != PhaseBGreen || frame.Reduction != 12.5 {
		t.Errorf("Expected frame fields to be preserved, got %+v", frame)
	}
}
