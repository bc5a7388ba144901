// Package sim drives a controller from a snapshot source at a fixed tick rate and fans
// each resulting frame out to renderers, storage and publishers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/feed"
	"github.com/anggasct/junction/pkg/store"
)

// DefaultInterval paces the loop at 30 ticks per second
const DefaultInterval = time.Second / 30

// Renderer consumes one frame per tick
type Renderer interface {
	Render(frame junction.Frame) error
}

// Runner owns the tick loop
type Runner struct {
	controller *junction.Controller
	source     feed.Source
	reduction  *junction.QueueReduction
	logger     *slog.Logger

	interval       time.Duration
	sampleInterval time.Duration
	maxTicks       uint64

	recorder   store.Recorder
	run        store.Run
	lastSample time.Time

	renderers []Renderer
	frames    chan<- junction.Frame
	dropped   atomic.Uint64
	ticks     atomic.Uint64
}

// Option configures a Runner
type Option func(*Runner)

// WithInterval sets the tick period
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder stores the run, its phase changes and a sample every interval
func WithRecorder(recorder store.Recorder, run store.Run, sampleInterval time.Duration) Option {
	return func(r *Runner) {
		r.recorder = recorder
		r.run = run
		r.sampleInterval = sampleInterval
	}
}

// WithRenderer adds a frame renderer
func WithRenderer(renderer Renderer) Option {
	return func(r *Runner) {
		r.renderers = append(r.renderers, renderer)
	}
}

// WithFrames forwards every frame to ch without blocking; frames are dropped while ch is full
func WithFrames(ch chan<- junction.Frame) Option {
	return func(r *Runner) {
		r.frames = ch
	}
}

// WithMaxTicks stops Run after n ticks; zero means unlimited
func WithMaxTicks(n uint64) Option {
	return func(r *Runner) {
		r.maxTicks = n
	}
}

// NewRunner creates a runner for controller fed by source
func NewRunner(controller *junction.Controller, source feed.Source, opts ...Option) *Runner {
	r := &Runner{
		controller: controller,
		source:     source,
		reduction:  junction.NewQueueReduction(),
		logger:     slog.Default(),
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")

	if r.recorder != nil {
		controller.AddObserver(store.NewRecorderObserver(r.recorder, r.run.ID, r.logger))
	}
	return r
}

// Controller returns the driven controller
func (r *Runner) Controller() *junction.Controller {
	return r.controller
}

// Ticks returns the number of completed steps
func (r *Runner) Ticks() uint64 {
	return r.ticks.Load()
}

// Dropped returns the number of frames not forwarded because the channel was full
func (r *Runner) Dropped() uint64 {
	return r.dropped.Load()
}

// Step pulls one pair from the source, ticks the controller and emits the frame
func (r *Runner) Step(ctx context.Context) (junction.Frame, error) {
	pair, err := r.source.Next(ctx)
	if err != nil {
		return junction.Frame{}, err
	}
	pair = pair.Sanitize()

	now := r.controller.Clock().Now()
	result := r.controller.Tick(now, pair)
	frame := junction.NewFrame(r.controller.Status(now), pair, r.reduction.Observe(pair.TotalQueue()))
	r.ticks.Add(1)

	if r.recorder != nil && (r.lastSample.IsZero() || result.Switched || now.Sub(r.lastSample) >= r.sampleInterval) {
		r.lastSample = now
		if err := r.recorder.RecordSample(ctx, store.NewSample(r.run.ID, now, frame)); err != nil {
			r.logger.Warn("failed to record sample", "tick", result.Tick, "error", err)
		}
	}

	for _, renderer := range r.renderers {
		if err := renderer.Render(frame); err != nil {
			r.logger.Warn("render failed", "error", err)
		}
	}

	if r.frames != nil {
		select {
		case r.frames <- frame:
		default:
			r.dropped.Add(1)
		}
	}
	return frame, nil
}

// Run ticks until ctx is cancelled, the source is exhausted or the tick limit is reached.
// Cancellation and exhaustion are not errors.
func (r *Runner) Run(ctx context.Context) error {
	if r.recorder != nil {
		if err := r.recorder.StartRun(ctx, r.run); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		defer func() {
			// the run context may already be cancelled
			finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.recorder.FinishRun(finishCtx, r.run.ID, r.controller.Clock().Now()); err != nil {
				r.logger.Error("failed to finish run", "run_id", r.run.ID, "error", err)
			}
		}()
	}

	r.logger.Info("runner started", "interval", r.interval, "phase", r.controller.Phase())
	defer func() {
		r.logger.Info("runner stopped", "ticks", r.Ticks(), "dropped_frames", r.Dropped())
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.Step(ctx); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				r.logger.Info("source exhausted")
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				if ctx.Err() != nil {
					return nil
				}
				return err
			default:
				return fmt.Errorf("step: %w", err)
			}
		}
		if r.maxTicks > 0 && r.Ticks() >= r.maxTicks {
			return nil
		}
	}
}
