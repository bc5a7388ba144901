package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/anggasct/junction"
)

// RecorderObserver writes every phase change of a controller to a Recorder
type RecorderObserver struct {
	junction.BaseObserver
	recorder Recorder
	runID    string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRecorderObserver creates an observer bound to runID
func NewRecorderObserver(recorder Recorder, runID string, logger *slog.Logger) *RecorderObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecorderObserver{
		recorder: recorder,
		runID:    runID,
		timeout:  5 * time.Second,
		logger:   logger.With("component", "recorder", "run_id", runID),
	}
}

// RunID returns the run the observer records into
func (r *RecorderObserver) RunID() string {
	return r.runID
}

// OnTransition implements junction.Observer
func (r *RecorderObserver) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	c, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.recorder.RecordPhaseChange(c, NewPhaseRecord(r.runID, change)); err != nil {
		r.logger.Error("failed to record phase change", "tick", change.Tick, "error", err)
	}
}
