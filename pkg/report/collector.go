// Package report collects a controller run and renders timing reports: a summary,
// an HTML chart page and a PNG plot.
package report

import (
	"sync"
	"time"

	"github.com/anggasct/junction"
)

// Point is one sampled tick
type Point struct {
	Tick      uint64
	Offset    time.Duration
	Phase     junction.Phase
	Remaining time.Duration
	NSQueue   int
	SNQueue   int
}

// Collector records phase changes and sampled ticks
type Collector struct {
	junction.BaseObserver

	mutex   sync.Mutex
	every   uint64
	start   time.Time
	last    time.Time
	changes []junction.PhaseChange
	points  []Point
}

// NewCollector samples the first tick, every n-th tick and every switching tick; n < 1 samples all ticks
func NewCollector(every int) *Collector {
	if every < 1 {
		every = 1
	}
	return &Collector{every: uint64(every)}
}

// OnPhaseEnter marks the run start on the first phase entry
func (c *Collector) OnPhaseEnter(phase junction.Phase, ctx *junction.TickContext) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.start.IsZero() {
		c.start = ctx.Now
		c.last = ctx.Now
	}
}

// OnTransition implements junction.Observer
func (c *Collector) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.changes = append(c.changes, change)
}

// OnTick implements junction.ExtendedObserver
func (c *Collector) OnTick(result *junction.TickResult, ctx *junction.TickContext) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.start.IsZero() {
		c.start = result.Now
	}
	if result.Now.After(c.last) {
		c.last = result.Now
	}
	if result.Tick != 1 && result.Tick%c.every != 0 && !result.Switched {
		return
	}
	c.points = append(c.points, Point{
		Tick:      result.Tick,
		Offset:    result.Now.Sub(c.start),
		Phase:     result.To,
		Remaining: result.TimeRemaining,
		NSQueue:   ctx.Pair.NS.QueueLength,
		SNQueue:   ctx.Pair.SN.QueueLength,
	})
}

// OnReset starts a fresh collection
func (c *Collector) OnReset(ctx *junction.TickContext) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.start = ctx.Now
	c.last = ctx.Now
	c.changes = nil
	c.points = nil
}

// Changes returns a copy of the recorded phase changes
func (c *Collector) Changes() []junction.PhaseChange {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]junction.PhaseChange(nil), c.changes...)
}

// Points returns a copy of the sampled ticks
func (c *Collector) Points() []Point {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]Point(nil), c.points...)
}

// Duration is the wall time covered by the collection
func (c *Collector) Duration() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.last.Sub(c.start)
}

// Summary computes run statistics
func (c *Collector) Summary() Summary {
	return Summarize(c.Changes(), c.Points(), c.Duration())
}
