package junction

import (
	"fmt"
	"sync"
	"time"
)

// Controller is the two-phase signal controller. It holds right-of-way for one approach at a
// time and flips it when one of its transitions fires.
type Controller struct {
	mutex sync.RWMutex

	thresholds  Thresholds
	estimator   Estimator
	clock       Clock
	transitions []Transition
	observers   *ObserverManager

	phase         Phase
	phaseStart    time.Time
	greenDuration time.Duration
	tick          uint64
	switches      uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the clock used at construction and by Step
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithTransitions replaces the default transition table. Order is priority order.
func WithTransitions(transitions ...Transition) Option {
	return func(c *Controller) {
		c.transitions = append([]Transition(nil), transitions...)
	}
}

// WithObserver registers an observer before the initial phase is entered
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		c.observers.AddObserver(observer)
	}
}

type guardEvaluation struct {
	transition string
	result     bool
}

// NewController creates a controller starting in A_GREEN with the default green duration
func NewController(th Thresholds, opts ...Option) (*Controller, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		thresholds:  th,
		estimator:   NewEstimator(th),
		clock:       SystemClock{},
		transitions: DefaultTransitions(),
		observers:   NewObserverManager(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		return nil, NewConfigurationError("Controller", "clock cannot be nil")
	}
	if len(c.transitions) == 0 {
		return nil, NewConfigurationError("Controller", "at least one transition is required")
	}
	for i, tr := range c.transitions {
		if tr.Guard == nil {
			return nil, NewConfigurationError("Controller", fmt.Sprintf("transition %d (%s) has no guard", i, tr.Name))
		}
	}

	now := c.clock.Now()
	c.phase = PhaseAGreen
	c.phaseStart = now
	c.greenDuration = th.DefaultGreen

	ctx := newTickContext(0, now, c.phase, now, c.greenDuration, Pair{}, th)
	c.observers.NotifyPhaseEnter(c.phase, ctx)

	return c, nil
}

// safeEvaluateGuard safely evaluates a guard function with panic recovery
func safeEvaluateGuard(guard GuardFunc, ctx *TickContext) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()

	result = guard(ctx)
	return result, nil
}

// Tick runs one controller update with the given timestamp and traffic pair.
// At most one transition fires per tick.
func (c *Controller) Tick(now time.Time, pair Pair) *TickResult {
	pair = pair.Sanitize()

	c.mutex.Lock()
	c.tick++
	ctx := newTickContext(c.tick, now, c.phase, c.phaseStart, c.greenDuration, pair, c.thresholds)

	var (
		evaluations []guardEvaluation
		guardErrs   []error
		fired       *Transition
	)
	for i := range c.transitions {
		tr := &c.transitions[i]
		matched, err := safeEvaluateGuard(tr.Guard, ctx)
		if err != nil {
			guardErrs = append(guardErrs, NewGuardError(tr.Name, ctx.Phase, err))
		}
		evaluations = append(evaluations, guardEvaluation{transition: tr.Name, result: matched})
		if matched {
			fired = tr
			break
		}
	}

	result := &TickResult{
		Tick:          c.tick,
		Now:           now,
		From:          c.phase,
		To:            c.phase,
		Elapsed:       ctx.Elapsed,
		GreenDuration: c.greenDuration,
		TimeRemaining: ctx.Remaining(),
	}

	after := ctx
	if fired != nil {
		next := c.phase.Next()
		c.phase = next
		c.phaseStart = now
		c.greenDuration = c.estimator.Estimate(pair, next.Approach())
		c.switches++

		result.Switched = true
		result.To = next
		result.Reason = fired.Reason
		result.Transition = fired.Name
		result.GreenDuration = c.greenDuration
		result.TimeRemaining = c.greenDuration

		after = newTickContext(c.tick, now, c.phase, c.phaseStart, c.greenDuration, pair, c.thresholds)
	}
	c.mutex.Unlock()

	for _, ev := range evaluations {
		c.observers.NotifyGuardEvaluation(ev.transition, ev.result, ctx)
	}
	for _, err := range guardErrs {
		c.observers.NotifyError(err, ctx)
	}
	if change, ok := result.Change(pair); ok {
		c.observers.NotifyPhaseExit(change.From, ctx)
		c.observers.NotifyTransition(change, after)
		c.observers.NotifyPhaseEnter(change.To, after)
	}
	c.observers.NotifyTick(result, after)

	return result
}

// Step runs Tick using the controller's clock
func (c *Controller) Step(pair Pair) *TickResult {
	return c.Tick(c.clock.Now(), pair)
}

// Reset returns the controller to A_GREEN with the default green duration starting at now
func (c *Controller) Reset(now time.Time) {
	c.mutex.Lock()
	c.phase = PhaseAGreen
	c.phaseStart = now
	c.greenDuration = c.thresholds.DefaultGreen
	c.tick = 0
	c.switches = 0
	ctx := newTickContext(0, now, c.phase, now, c.greenDuration, Pair{}, c.thresholds)
	c.mutex.Unlock()

	c.observers.NotifyReset(ctx)
	c.observers.NotifyPhaseEnter(ctx.Phase, ctx)
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.phase
}

// Active returns the approach holding right-of-way
func (c *Controller) Active() Approach {
	return c.Phase().Approach()
}

// GreenDuration returns the green time computed for the current phase
func (c *Controller) GreenDuration() time.Duration {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.greenDuration
}

// PhaseStart returns when the current phase began
func (c *Controller) PhaseStart() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.phaseStart
}

// TimeRemaining returns the green time left at now, never negative
func (c *Controller) TimeRemaining(now time.Time) time.Duration {
	return c.Status(now).TimeRemaining
}

// Status returns a consistent view of the controller at now
func (c *Controller) Status(now time.Time) Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ctx := newTickContext(c.tick, now, c.phase, c.phaseStart, c.greenDuration, Pair{}, c.thresholds)
	return Status{
		Tick:          c.tick,
		Phase:         c.phase,
		Active:        c.phase.Approach(),
		PhaseStart:    c.phaseStart,
		Elapsed:       ctx.Elapsed,
		GreenDuration: c.greenDuration,
		TimeRemaining: ctx.Remaining(),
		Switches:      c.switches,
	}
}

// Thresholds returns the thresholds the controller was built with
func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

// Transitions returns a copy of the transition table in priority order
func (c *Controller) Transitions() []Transition {
	return append([]Transition(nil), c.transitions...)
}

// Clock returns the controller's clock
func (c *Controller) Clock() Clock {
	return c.clock
}

// AddObserver adds an observer to the controller
func (c *Controller) AddObserver(observer Observer) {
	c.observers.AddObserver(observer)
}

// RemoveObserver removes an observer from the controller
func (c *Controller) RemoveObserver(observer Observer) {
	c.observers.RemoveObserver(observer)
}
