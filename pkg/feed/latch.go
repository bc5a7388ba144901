package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/anggasct/junction"
)

// DefaultMaxPending bounds the number of half-filled sequences a Latch keeps
const DefaultMaxPending = 64

// DefaultRestartGap is how far a sequence may fall behind the last completed one before
// the latch assumes the publisher restarted its counter
const DefaultRestartGap = DefaultMaxPending

type partial struct {
	ns, sn       junction.TrafficSnapshot
	hasNS, hasSN bool
}

// Latch assembles per-approach snapshots that arrive independently into pairs.
// Snapshots are matched by sequence number, so a pair never mixes two different
// instants. Once a sequence completes, it and every older sequence are discarded.
//
// A sequence far behind the last completed one, or sequence 0 after any completion,
// means the publisher restarted. The latch then forgets its history and starts pairing
// from the new sequence; the previous pair is served until the first new one completes.
//
// As a Source, Latch yields the newest completed pair, repeating it until a newer one
// arrives, and blocks only until the first pair is complete.
type Latch struct {
	mutex        sync.Mutex
	pending      map[uint64]*partial
	completed    uint64
	hasCompleted bool
	latest       junction.Pair
	hasLatest    bool
	fresh        chan struct{}
	maxPending   int
	restartGap   uint64
	restarts     int
	logger       *slog.Logger
}

// LatchOption configures a Latch
type LatchOption func(*Latch)

// WithLatchLogger sets the logger used to report sequence restarts
func WithLatchLogger(logger *slog.Logger) LatchOption {
	return func(l *Latch) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRestartGap sets how far behind a sequence must be to count as a restart
func WithRestartGap(gap uint64) LatchOption {
	return func(l *Latch) {
		l.restartGap = gap
	}
}

// NewLatch creates an empty latch
func NewLatch(opts ...LatchOption) *Latch {
	l := &Latch{
		pending:    make(map[uint64]*partial),
		fresh:      make(chan struct{}, 1),
		maxPending: DefaultMaxPending,
		restartGap: DefaultRestartGap,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Offer records one approach's snapshot for seq. It returns the pair when seq becomes
// complete. Snapshots for sequences at or below the last completed one are dropped
// unless they mark a restart.
func (l *Latch) Offer(seq uint64, approach junction.Approach, s junction.TrafficSnapshot) (junction.Pair, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.hasCompleted && seq <= l.completed {
		if seq != 0 && l.completed-seq <= l.restartGap {
			return junction.Pair{}, false
		}
		l.restart(seq)
	}

	p, ok := l.pending[seq]
	if !ok {
		l.evict()
		p = &partial{}
		l.pending[seq] = p
	}
	if approach == junction.ApproachB {
		p.sn, p.hasSN = s, true
	} else {
		p.ns, p.hasNS = s, true
	}
	if !p.hasNS || !p.hasSN {
		return junction.Pair{}, false
	}

	pair := junction.Pair{NS: p.ns, SN: p.sn}
	l.completed = seq
	l.hasCompleted = true
	l.latest = pair
	l.hasLatest = true
	for k := range l.pending {
		if k <= seq {
			delete(l.pending, k)
		}
	}

	select {
	case l.fresh <- struct{}{}:
	default:
	}
	return pair, true
}

// restart forgets completed and pending sequences; callers hold the mutex
func (l *Latch) restart(seq uint64) {
	l.logger.Warn("snapshot sequence restarted, resetting latch",
		"last_completed", l.completed,
		"seq", seq)
	l.restarts++
	l.completed = 0
	l.hasCompleted = false
	clear(l.pending)
}

// Restarts returns how many sequence restarts the latch has seen
func (l *Latch) Restarts() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.restarts
}

// evict drops the oldest pending sequence when the latch is full; callers hold the mutex
func (l *Latch) evict() {
	if len(l.pending) < l.maxPending {
		return
	}
	first := true
	var oldest uint64
	for k := range l.pending {
		if first || k < oldest {
			oldest = k
			first = false
		}
	}
	delete(l.pending, oldest)
}

// Latest returns the newest completed pair
func (l *Latch) Latest() (junction.Pair, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.latest, l.hasLatest
}

// Pending returns the number of incomplete sequences held
func (l *Latch) Pending() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.pending)
}

// Next returns the newest completed pair, waiting for the first one if necessary
func (l *Latch) Next(ctx context.Context) (junction.Pair, error) {
	if pair, ok := l.Latest(); ok {
		select {
		case <-l.fresh:
		default:
		}
		return pair, nil
	}

	select {
	case <-ctx.Done():
		return junction.Pair{}, ctx.Err()
	case <-l.fresh:
		pair, _ := l.Latest()
		return pair, nil
	}
}
