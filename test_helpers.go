package junction

import (
	"sync"
	"testing"
	"time"
)

// TestObserver is a mock observer for testing that captures all observer events
type TestObserver struct {
	mutex       sync.RWMutex
	Transitions []PhaseChange
	PhaseEnters []PhaseEvent
	PhaseExits  []PhaseEvent
	Guards      []GuardEvent
	Ticks       []*TickResult
	Errors      []ErrorEvent
	Resets      []*TickContext
}

type PhaseEvent struct {
	Phase Phase
	Ctx   *TickContext
}

type GuardEvent struct {
	Transition string
	Result     bool
	Ctx        *TickContext
}

type ErrorEvent struct {
	Error error
	Ctx   *TickContext
}

// NewTestObserver creates a new test observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

// Observer interface implementations
func (o *TestObserver) OnTransition(change PhaseChange, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, change)
}

func (o *TestObserver) OnPhaseEnter(phase Phase, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.PhaseEnters = append(o.PhaseEnters, PhaseEvent{Phase: phase, Ctx: ctx})
}

// ExtendedObserver interface implementations
func (o *TestObserver) OnPhaseExit(phase Phase, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.PhaseExits = append(o.PhaseExits, PhaseEvent{Phase: phase, Ctx: ctx})
}

func (o *TestObserver) OnGuardEvaluation(transition string, result bool, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Guards = append(o.Guards, GuardEvent{Transition: transition, Result: result, Ctx: ctx})
}

func (o *TestObserver) OnTick(result *TickResult, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Ticks = append(o.Ticks, result)
}

func (o *TestObserver) OnError(err error, ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, ErrorEvent{Error: err, Ctx: ctx})
}

func (o *TestObserver) OnReset(ctx *TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Resets = append(o.Resets, ctx)
}

// Helper methods for test assertions
func (o *TestObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = nil
	o.PhaseEnters = nil
	o.PhaseExits = nil
	o.Guards = nil
	o.Ticks = nil
	o.Errors = nil
	o.Resets = nil
}

func (o *TestObserver) TransitionCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Transitions)
}

func (o *TestObserver) PhaseEnterCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.PhaseEnters)
}

func (o *TestObserver) PhaseExitCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.PhaseExits)
}

func (o *TestObserver) ErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Errors)
}

func (o *TestObserver) LastTransition() *PhaseChange {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.Transitions) == 0 {
		return nil
	}
	return &o.Transitions[len(o.Transitions)-1]
}

// Test controller builders

// TestEpoch is the fixed start time used by test controllers
var TestEpoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// NewTestController creates a controller on a manual clock starting at TestEpoch
func NewTestController(t *testing.T, th Thresholds, opts ...Option) (*Controller, *ManualClock) {
	t.Helper()
	clock := NewManualClock(TestEpoch)
	controller, err := NewController(th, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("Expected no error creating controller, got: %v", err)
	}
	return controller, clock
}

// Snap is shorthand for a TrafficSnapshot literal
func Snap(queue int, speed float64, count int) TrafficSnapshot {
	return TrafficSnapshot{QueueLength: queue, AvgSpeed: speed, VehicleCount: count}
}

// Test assertions and utilities

// AssertPhase checks if the controller is in the expected phase
func AssertPhase(t *testing.T, controller *Controller, expected Phase) {
	t.Helper()
	if phase := controller.Phase(); phase != expected {
		t.Errorf("Expected phase %s, got %s", expected, phase)
	}
}

// AssertSwitched checks that a tick switched between the expected phases for the expected reason
func AssertSwitched(t *testing.T, result *TickResult, from, to Phase, reason SwitchReason) {
	t.Helper()
	if !result.Switched {
		t.Errorf("Expected tick %d to switch", result.Tick)
		return
	}
	if result.From != from || result.To != to {
		t.Errorf("Expected switch %s -> %s, got %s -> %s", from, to, result.From, result.To)
	}
	if result.Reason != reason {
		t.Errorf("Expected reason %s, got %s", reason, result.Reason)
	}
}

// AssertNotSwitched checks that a tick held the current phase
func AssertNotSwitched(t *testing.T, result *TickResult) {
	t.Helper()
	if result.Switched {
		t.Errorf("Expected tick %d to hold, switched %s -> %s (%s)", result.Tick, result.From, result.To, result.Reason)
	}
}

// AssertDurationWithin checks that d lies in [min, max]
func AssertDurationWithin(t *testing.T, d, min, max time.Duration) {
	t.Helper()
	if d < min || d > max {
		t.Errorf("Expected duration in [%v, %v], got %v", min, max, d)
	}
}

// AssertDurationNear checks that d is within tolerance of expected
func AssertDurationNear(t *testing.T, d, expected, tolerance time.Duration) {
	t.Helper()
	diff := d - expected
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("Expected duration %v (±%v), got %v", expected, tolerance, d)
	}
}

// Test guard functions for testing
var TestGuardResult bool

func TestGuard(ctx *TickContext) bool {
	return TestGuardResult
}

func SetTestGuard(result bool) {
	TestGuardResult = result
}

// PanickingGuard always panics
func PanickingGuard(ctx *TickContext) bool {
	panic("guard exploded")
}
