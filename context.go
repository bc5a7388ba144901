package junction

import "time"

// TickContext carries everything a guard or observer needs to know about one evaluation.
// Green and Red are the sanitized snapshots of the approaches that hold and wait for
// right-of-way in Phase.
type TickContext struct {
	Tick          uint64
	Now           time.Time
	Phase         Phase
	PhaseStart    time.Time
	Elapsed       time.Duration
	GreenDuration time.Duration
	Pair          Pair
	Green         TrafficSnapshot
	Red           TrafficSnapshot
	Thresholds    Thresholds
}

// newTickContext builds the context for the given phase. Elapsed never goes negative,
// even when a caller hands in a timestamp that predates the phase start.
func newTickContext(tick uint64, now time.Time, phase Phase, start time.Time, green time.Duration, pair Pair, th Thresholds) *TickContext {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	active := phase.Approach()
	return &TickContext{
		Tick:          tick,
		Now:           now,
		Phase:         phase,
		PhaseStart:    start,
		Elapsed:       elapsed,
		GreenDuration: green,
		Pair:          pair,
		Green:         pair.For(active),
		Red:           pair.For(active.Other()),
		Thresholds:    th,
	}
}

// ActiveApproach returns the approach holding right-of-way
func (ctx *TickContext) ActiveApproach() Approach {
	return ctx.Phase.Approach()
}

// Remaining returns the green time left, never negative
func (ctx *TickContext) Remaining() time.Duration {
	if r := ctx.GreenDuration - ctx.Elapsed; r > 0 {
		return r
	}
	return 0
}
