package sim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/feed"
	"github.com/anggasct/junction/pkg/store"
)

var epoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func pairOf(nsQueue, snQueue int) junction.Pair {
	return junction.Pair{
		NS: junction.TrafficSnapshot{QueueLength: nsQueue, AvgSpeed: 1, VehicleCount: nsQueue},
		SN: junction.TrafficSnapshot{QueueLength: snQueue, AvgSpeed: 1, VehicleCount: snQueue},
	}
}

func newController(t *testing.T) (*junction.Controller, *junction.ManualClock) {
	t.Helper()
	clock := junction.NewManualClock(epoch)
	c, err := junction.NewController(junction.DefaultThresholds(), junction.WithClock(clock))
	require.NoError(t, err)
	return c, clock
}

type memoryRecorder struct {
	mutex    sync.Mutex
	started  []store.Run
	finished []string
	changes  []store.PhaseRecord
	samples  []store.Sample
	startErr error
}

func (m *memoryRecorder) StartRun(ctx context.Context, run store.Run) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.started = append(m.started, run)
	return m.startErr
}

func (m *memoryRecorder) FinishRun(ctx context.Context, runID string, at time.Time) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.finished = append(m.finished, runID)
	return nil
}

func (m *memoryRecorder) RecordPhaseChange(ctx context.Context, rec store.PhaseRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.changes = append(m.changes, rec)
	return nil
}

func (m *memoryRecorder) RecordSample(ctx context.Context, s store.Sample) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

func (m *memoryRecorder) Close() error { return nil }

func TestStepBuildsFrames(t *testing.T) {
	c, clock := newController(t)
	source := feed.NewSequenceSource(false, pairOf(6, 4), pairOf(3, 2), pairOf(-1, 0))
	r := NewRunner(c, source)

	frame, err := r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Status.Tick)
	assert.Equal(t, junction.PhaseAGreen, frame.Status.Phase)
	assert.Equal(t, 0.0, frame.Reduction)
	assert.Equal(t, pairOf(6, 4), frame.Pair())

	clock.Advance(time.Second)
	frame, err = r.Step(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, frame.Reduction, 1e-9)
	assert.Equal(t, 19*time.Second, frame.Status.TimeRemaining)

	// negative counts are clamped before the frame is built
	frame, err = r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, frame.NS.QueueLength)
	assert.Equal(t, 100.0, frame.Reduction)

	_, err = r.Step(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(3), r.Ticks())
}

func TestStepRecordsSamplesAndChanges(t *testing.T) {
	c, clock := newController(t)
	rec := &memoryRecorder{}
	run := store.NewRun("test", "sequence", epoch, c.Thresholds())
	r := NewRunner(c, feed.NewSequenceSource(true, pairOf(2, 8)), WithRecorder(rec, run, time.Second))

	// 25 seconds at 10 ticks per second crosses the 20s default green
	for i := 0; i < 250; i++ {
		clock.Advance(100 * time.Millisecond)
		_, err := r.Step(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, rec.changes, 1)
	assert.Equal(t, run.ID, rec.changes[0].RunID)
	assert.Equal(t, junction.PhaseBGreen, rec.changes[0].To)

	// one per second plus the switching tick
	assert.InDelta(t, 26, len(rec.samples), 1)
	for _, s := range rec.samples {
		assert.Equal(t, run.ID, s.RunID)
	}
}

func TestFramesDropWhenFull(t *testing.T) {
	c, _ := newController(t)
	frames := make(chan junction.Frame, 2)
	r := NewRunner(c, feed.NewSequenceSource(true, pairOf(1, 1)), WithFrames(frames))

	for i := 0; i < 5; i++ {
		_, err := r.Step(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, frames, 2)
	assert.Equal(t, uint64(3), r.Dropped())

	first := <-frames
	assert.Equal(t, uint64(1), first.Status.Tick)
}

func TestRunStopsAtEndOfSource(t *testing.T) {
	c, _ := newController(t)
	rec := &memoryRecorder{}
	run := store.NewRun("test", "sequence", epoch, c.Thresholds())
	source := feed.NewSequenceSource(false, pairOf(1, 1), pairOf(2, 2), pairOf(3, 3))
	r := NewRunner(c, source, WithInterval(time.Millisecond), WithRecorder(rec, run, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, uint64(3), r.Ticks())
	require.Len(t, rec.started, 1)
	assert.Equal(t, run.ID, rec.started[0].ID)
	assert.Equal(t, []string{run.ID}, rec.finished)
}

func TestRunStopsOnCancelAndLimit(t *testing.T) {
	c, _ := newController(t)
	r := NewRunner(c, feed.NewSequenceSource(true, pairOf(1, 1)), WithInterval(time.Millisecond), WithMaxTicks(5))
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, uint64(5), r.Ticks())

	c2, _ := newController(t)
	r2 := NewRunner(c2, feed.NewLatch(), WithInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// the latch never completes a pair, so Run blocks until the deadline
	require.NoError(t, r2.Run(ctx))
	assert.Equal(t, uint64(0), r2.Ticks())
}

func TestRunStartFailure(t *testing.T) {
	c, _ := newController(t)
	rec := &memoryRecorder{startErr: errors.New("read-only")}
	r := NewRunner(c, feed.FallbackSource{}, WithRecorder(rec, store.Run{ID: "x"}, time.Second))
	err := r.Run(context.Background())
	assert.ErrorContains(t, err, "read-only")
	assert.Empty(t, rec.finished)
}

func TestPanel(t *testing.T) {
	status := junction.Status{
		Phase:         junction.PhaseBGreen,
		GreenDuration: 30 * time.Second,
		TimeRemaining: 12500 * time.Millisecond,
	}
	pair := junction.Pair{
		NS: junction.TrafficSnapshot{QueueLength: 4, AvgSpeed: 2.3, VehicleCount: 5},
		SN: junction.TrafficSnapshot{QueueLength: 9, AvgSpeed: 0.5, VehicleCount: 10},
	}
	panel := Panel(junction.NewFrame(status, pair, 37.5))

	assert.Equal(t, strings.Join([]string{
		"Traffic Control Status",
		"Current: S→N GREEN  12.5s left of 30.0s",
		"N→S: Queue=4, Vehicles=5, Speed=2.3",
		"S→N: Queue=9, Vehicles=10, Speed=0.5",
		"Traffic Reduced: 37.5%",
		"",
	}, "\n"), panel)
}

func TestTextRendererThrottles(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTextRenderer(&buf, time.Second)

	frameAt := func(phase junction.Phase, elapsed time.Duration) junction.Frame {
		return junction.NewFrame(junction.Status{Phase: phase, PhaseStart: epoch, Elapsed: elapsed}, pairOf(1, 1), 0)
	}

	require.NoError(t, renderer.Render(frameAt(junction.PhaseAGreen, 0)))
	require.NoError(t, renderer.Render(frameAt(junction.PhaseAGreen, 500*time.Millisecond)))
	assert.Equal(t, 1, strings.Count(buf.String(), "Traffic Control Status"))

	require.NoError(t, renderer.Render(frameAt(junction.PhaseAGreen, time.Second)))
	assert.Equal(t, 2, strings.Count(buf.String(), "Traffic Control Status"))

	// phase change renders immediately
	require.NoError(t, renderer.Render(frameAt(junction.PhaseBGreen, 1100*time.Millisecond)))
	assert.Equal(t, 3, strings.Count(buf.String(), "Traffic Control Status"))
}
