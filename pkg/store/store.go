// Package store persists controller runs: phase changes and periodic samples.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/anggasct/junction"
)

// Run describes one controller session
type Run struct {
	ID         string
	Junction   string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Thresholds junction.Thresholds
}

// NewRun creates run metadata with a fresh ID
func NewRun(name, source string, startedAt time.Time, th junction.Thresholds) Run {
	return Run{
		ID:         uuid.NewString(),
		Junction:   name,
		Source:     source,
		StartedAt:  startedAt,
		Thresholds: th,
	}
}

// PhaseRecord is one stored phase change
type PhaseRecord struct {
	RunID  string
	Tick   uint64
	At     time.Time
	From   junction.Phase
	To     junction.Phase
	Reason junction.SwitchReason
	Served time.Duration
	Green  time.Duration
	Pair   junction.Pair
}

// NewPhaseRecord converts a controller phase change
func NewPhaseRecord(runID string, change junction.PhaseChange) PhaseRecord {
	return PhaseRecord{
		RunID:  runID,
		Tick:   change.Tick,
		At:     change.At,
		From:   change.From,
		To:     change.To,
		Reason: change.Reason,
		Served: change.Served,
		Green:  change.GreenDuration,
		Pair:   change.Pair,
	}
}

// Sample is a periodic snapshot of a frame
type Sample struct {
	RunID     string
	Tick      uint64
	At        time.Time
	Phase     junction.Phase
	Remaining time.Duration
	Pair      junction.Pair
	Reduction float64
}

// NewSample converts a rendered frame
func NewSample(runID string, at time.Time, frame junction.Frame) Sample {
	return Sample{
		RunID:     runID,
		Tick:      frame.Status.Tick,
		At:        at,
		Phase:     frame.Status.Phase,
		Remaining: frame.Status.TimeRemaining,
		Pair:      frame.Pair(),
		Reduction: frame.Reduction,
	}
}

// Recorder is a destination for run history
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, at time.Time) error
	RecordPhaseChange(ctx context.Context, rec PhaseRecord) error
	RecordSample(ctx context.Context, s Sample) error
	Close() error
}

// Multi fans every call out to all recorders and joins their errors
type Multi []Recorder

// StartRun implements Recorder
func (m Multi) StartRun(ctx context.Context, run Run) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.StartRun(ctx, run))
	}
	return errors.Join(errs...)
}

// FinishRun implements Recorder
func (m Multi) FinishRun(ctx context.Context, runID string, at time.Time) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.FinishRun(ctx, runID, at))
	}
	return errors.Join(errs...)
}

// RecordPhaseChange implements Recorder
func (m Multi) RecordPhaseChange(ctx context.Context, rec PhaseRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordPhaseChange(ctx, rec))
	}
	return errors.Join(errs...)
}

// RecordSample implements Recorder
func (m Multi) RecordSample(ctx context.Context, s Sample) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordSample(ctx, s))
	}
	return errors.Join(errs...)
}

// Close implements Recorder
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
