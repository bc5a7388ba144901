package feed

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/tracker"
)

func snap(q int, speed float64, n int) junction.TrafficSnapshot {
	return junction.TrafficSnapshot{QueueLength: q, AvgSpeed: speed, VehicleCount: n}
}

func TestFallbackSource(t *testing.T) {
	pair, err := FallbackSource{}.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, junction.FallbackPair(), pair)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FallbackSource{}.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequenceSource(t *testing.T) {
	a := junction.Pair{NS: snap(1, 1, 1)}
	b := junction.Pair{SN: snap(2, 1, 2)}

	once := NewSequenceSource(false, a, b)
	ctx := context.Background()
	got, _ := once.Next(ctx)
	assert.Equal(t, a, got)
	got, _ = once.Next(ctx)
	assert.Equal(t, b, got)
	_, err := once.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	looping := NewSequenceSource(true, a, b)
	for i := 0; i < 5; i++ {
		got, err := looping.Next(ctx)
		require.NoError(t, err)
		if i%2 == 0 {
			assert.Equal(t, a, got)
		} else {
			assert.Equal(t, b, got)
		}
	}

	_, err = NewSequenceSource(true).Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSnapshotReplay(t *testing.T) {
	input := `# recorded 2024-01-01
{"ns":{"queue_length":3,"avg_speed":1.5,"vehicle_count":2},"sn":{"queue_length":0,"avg_speed":4,"vehicle_count":0}}

{"ns":{"queue_length":-1,"avg_speed":0,"vehicle_count":0},"sn":{"queue_length":7,"avg_speed":0.5,"vehicle_count":7}}
`
	replay := NewSnapshotReplay(strings.NewReader(input))
	ctx := context.Background()

	first, err := replay.Next(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(junction.Pair{NS: snap(3, 1.5, 2), SN: snap(0, 4, 0)}, first); diff != "" {
		t.Errorf("first pair mismatch (-want +got):\n%s", diff)
	}

	second, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, second.NS.QueueLength, "replay passes raw values; the controller sanitizes")
	assert.Equal(t, 7, second.SN.QueueLength)

	_, err = replay.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, replay.Close())
}

func TestSnapshotReplay_BadLine(t *testing.T) {
	replay := NewSnapshotReplay(strings.NewReader("{\"ns\":{}}\nnot json\n"))
	ctx := context.Background()

	_, err := replay.Next(ctx)
	require.NoError(t, err)

	_, err = replay.Next(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestOpenSnapshotReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"ns":{"queue_length":1,"avg_speed":1,"vehicle_count":1},"sn":{}}`+"\n"), 0o644))

	replay, err := OpenSnapshotReplay(path)
	require.NoError(t, err)
	defer replay.Close()

	pair, err := replay.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pair.NS.QueueLength)

	_, err = OpenSnapshotReplay(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestDetectionReplay(t *testing.T) {
	input := strings.Join([]string{
		`{"ns":{"boxes":[{"x1":90,"y1":90,"x2":110,"y2":110,"class":2,"confidence":0.9},{"x1":0,"y1":0,"x2":10,"y2":10,"class":0,"confidence":0.9}]},"sn":{"boxes":[]}}`,
		`{"ns":{"boxes":[{"x1":100,"y1":90,"x2":120,"y2":110,"class":2,"confidence":0.9}]},"sn":{"boxes":[]}}`,
		`{"ns":{"boxes":[{"x1":110,"y1":90,"x2":130,"y2":110,"class":2,"confidence":0.9}]},"sn":{"missing":true}}`,
		`{"ns":{"missing":true},"sn":{"missing":true}}`,
	}, "\n")
	replay := NewDetectionReplay(strings.NewReader(input), tracker.DefaultConfig())
	ctx := context.Background()

	first, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap(1, junction.MinSpeed, 1), first.NS, "a new track has not moved yet")
	assert.Equal(t, snap(0, 1.0, 0), first.SN)

	second, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.NS.VehicleCount)
	assert.InDelta(t, 3.0, second.NS.AvgSpeed, 1e-9)

	// One camera down: that approach repeats its last snapshot, the other keeps tracking
	third, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.SN, third.SN)
	assert.Equal(t, 1, third.NS.QueueLength)
	assert.Equal(t, 1, third.NS.VehicleCount)

	// Both cameras down
	fourth, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, junction.FallbackPair(), fourth)

	_, err = replay.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLatch_PairsBySequence(t *testing.T) {
	latch := NewLatch()

	_, ok := latch.Offer(1, junction.ApproachA, snap(1, 1, 1))
	assert.False(t, ok)
	_, ok = latch.Offer(2, junction.ApproachB, snap(9, 1, 9))
	assert.False(t, ok)

	pair, ok := latch.Offer(1, junction.ApproachB, snap(2, 1, 2))
	require.True(t, ok)
	assert.Equal(t, junction.Pair{NS: snap(1, 1, 1), SN: snap(2, 1, 2)}, pair)
	assert.Equal(t, 1, latch.Pending())

	// Late data for a completed sequence is ignored
	_, ok = latch.Offer(1, junction.ApproachA, snap(5, 5, 5))
	assert.False(t, ok)
	latest, _ := latch.Latest()
	assert.Equal(t, pair, latest)

	pair, ok = latch.Offer(2, junction.ApproachA, snap(3, 1, 3))
	require.True(t, ok)
	assert.Equal(t, junction.Pair{NS: snap(3, 1, 3), SN: snap(9, 1, 9)}, pair)
	assert.Zero(t, latch.Pending())
}

func TestLatch_NewerSequenceDiscardsOlderPartials(t *testing.T) {
	latch := NewLatch()
	latch.Offer(3, junction.ApproachA, snap(1, 1, 1))
	latch.Offer(5, junction.ApproachA, snap(2, 1, 2))
	latch.Offer(5, junction.ApproachB, snap(3, 1, 3))

	assert.Zero(t, latch.Pending())
	_, ok := latch.Offer(3, junction.ApproachB, snap(4, 1, 4))
	assert.False(t, ok)
}

func TestLatch_PendingIsBounded(t *testing.T) {
	latch := NewLatch()
	for seq := uint64(1); seq <= DefaultMaxPending+10; seq++ {
		latch.Offer(seq, junction.ApproachA, snap(1, 1, 1))
	}
	assert.Equal(t, DefaultMaxPending, latch.Pending())

	// The oldest sequences were evicted
	_, ok := latch.Offer(1, junction.ApproachB, snap(1, 1, 1))
	assert.False(t, ok)
}

func TestLatch_PublisherRestartResetsSequence(t *testing.T) {
	latch := NewLatch()
	for seq := uint64(1); seq <= 500; seq++ {
		latch.Offer(seq, junction.ApproachA, snap(1, 1, 1))
		latch.Offer(seq, junction.ApproachB, snap(1, 1, 1))
	}

	// A recent sequence is still treated as late data
	_, ok := latch.Offer(490, junction.ApproachA, snap(7, 1, 7))
	assert.False(t, ok)
	assert.Zero(t, latch.Restarts())

	// Counters start again from 1 after a camera node restart
	_, ok = latch.Offer(1, junction.ApproachA, snap(9, 1, 9))
	assert.False(t, ok)
	stale, _ := latch.Latest()
	assert.Equal(t, 1, stale.NS.QueueLength, "previous pair is served until a new one completes")

	pair, ok := latch.Offer(1, junction.ApproachB, snap(9, 1, 9))
	require.True(t, ok)
	assert.Equal(t, junction.Pair{NS: snap(9, 1, 9), SN: snap(9, 1, 9)}, pair)
	assert.Equal(t, 1, latch.Restarts())

	for seq := uint64(2); seq <= 100; seq++ {
		latch.Offer(seq, junction.ApproachA, snap(int(seq), 1, 1))
		latch.Offer(seq, junction.ApproachB, snap(int(seq), 1, 1))
	}
	latest, err := latch.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, latest.NS.QueueLength)
	assert.Equal(t, 1, latch.Restarts())
}

func TestLatch_UnsequencedMessagesKeepPairing(t *testing.T) {
	latch := NewLatch()

	for q := 1; q <= 3; q++ {
		_, ok := latch.Offer(0, junction.ApproachA, snap(q, 1, q))
		assert.False(t, ok)
		pair, ok := latch.Offer(0, junction.ApproachB, snap(q+10, 1, q))
		require.True(t, ok, "pair %d", q)
		assert.Equal(t, q, pair.NS.QueueLength)
		assert.Equal(t, q+10, pair.SN.QueueLength)
	}
}

func TestLatch_NextWaitsForFirstPair(t *testing.T) {
	latch := NewLatch()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := latch.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var wg sync.WaitGroup
	wg.Add(1)
	var got junction.Pair
	go func() {
		defer wg.Done()
		got, err = latch.Next(context.Background())
	}()
	latch.Offer(1, junction.ApproachA, snap(1, 1, 1))
	latch.Offer(1, junction.ApproachB, snap(2, 1, 2))
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 2, got.SN.QueueLength)

	// Repeats the latest pair until a newer one completes
	again, err := latch.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestReopenSource(t *testing.T) {
	a := junction.Pair{NS: snap(1, 1, 1)}
	b := junction.Pair{SN: snap(2, 1, 2)}
	src := NewReopenSource(func() (Source, error) {
		return NewSequenceSource(false, a, b), nil
	})

	var got []junction.Pair
	for i := 0; i < 5; i++ {
		pair, err := src.Next(context.Background())
		require.NoError(t, err)
		got = append(got, pair)
	}
	if diff := cmp.Diff([]junction.Pair{a, b, a, b, a}, got); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, src.Rounds())
	assert.NoError(t, src.Close())
}

func TestReopenSource_EmptyAndFailing(t *testing.T) {
	empty := NewReopenSource(func() (Source, error) { return NewSequenceSource(false), nil })
	_, err := empty.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	boom := errors.New("missing file")
	failing := NewReopenSource(func() (Source, error) { return nil, boom })
	_, err = failing.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestReopenSource_ClosesReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"ns":{"queue_length":4,"avg_speed":1,"vehicle_count":4},"sn":{}}`+"\n"), 0o644))

	src := NewReopenSource(func() (Source, error) { return OpenSnapshotReplay(path) })
	for i := 0; i < 3; i++ {
		pair, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, pair.NS.QueueLength)
	}
	assert.Equal(t, 3, src.Rounds())
	require.NoError(t, src.Close())
}
