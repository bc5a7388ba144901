package observers

import (
	"fmt"
	"sync"

	"github.com/anggasct/junction"
)

// ValidationObserver checks controller behaviour against its safety rules: phases
// alternate, at most one switch happens per tick and every green time lies within bounds.
type ValidationObserver struct {
	junction.BaseObserver

	thresholds    junction.Thresholds
	visitedPhases map[junction.Phase]bool
	lastTick      uint64
	lastSwitch    uint64
	current       junction.Phase
	violations    []string
	mutex         sync.RWMutex
}

// NewValidationObserver creates a new validation observer for the given thresholds
func NewValidationObserver(th junction.Thresholds) *ValidationObserver {
	return &ValidationObserver{
		thresholds:    th,
		visitedPhases: make(map[junction.Phase]bool),
		violations:    make([]string, 0),
	}
}

// addViolation adds a violation; callers hold the mutex
func (o *ValidationObserver) addViolation(format string, args ...any) {
	o.violations = append(o.violations, fmt.Sprintf(format, args...))
}

// OnPhaseEnter validates phase entry
func (o *ValidationObserver) OnPhaseEnter(phase junction.Phase, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedPhases[phase] = true
	o.current = phase
	if d := ctx.GreenDuration; d < o.thresholds.MinGreen || d > o.thresholds.MaxGreen {
		o.addViolation("Green duration %v for %s outside [%v, %v]", d, phase, o.thresholds.MinGreen, o.thresholds.MaxGreen)
	}
}

// OnTransition validates transitions
func (o *ValidationObserver) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if change.To != change.From.Next() {
		o.addViolation("Invalid transition from '%s' to '%s'", change.From, change.To)
	}
	if o.current != "" && change.From != o.current {
		o.addViolation("Transition from '%s' while '%s' was active", change.From, o.current)
	}
	if change.Tick != 0 && change.Tick == o.lastSwitch {
		o.addViolation("More than one transition in tick %d", change.Tick)
	}
	o.lastSwitch = change.Tick
}

// OnTick validates tick ordering and remaining time
func (o *ValidationObserver) OnTick(result *junction.TickResult, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if result.Tick <= o.lastTick {
		o.addViolation("Tick %d did not advance past %d", result.Tick, o.lastTick)
	}
	o.lastTick = result.Tick
	if result.TimeRemaining < 0 {
		o.addViolation("Negative time remaining %v at tick %d", result.TimeRemaining, result.Tick)
	}
}

// OnReset restarts tick tracking
func (o *ValidationObserver) OnReset(ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.lastTick = 0
	o.lastSwitch = 0
	o.current = ""
}

// OnError records errors as violations
func (o *ValidationObserver) OnError(err error, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.addViolation("Error occurred: %v", err)
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// GetUnvisitedPhases returns phases that were never entered
func (o *ValidationObserver) GetUnvisitedPhases() []junction.Phase {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []junction.Phase
	for _, phase := range junction.Phases() {
		if !o.visitedPhases[phase] {
			unvisited = append(unvisited, phase)
		}
	}
	return unvisited
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedPhases = make(map[junction.Phase]bool)
	o.violations = make([]string, 0)
	o.lastTick = 0
	o.lastSwitch = 0
	o.current = ""
}
