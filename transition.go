package junction

// GuardFunc decides whether a transition fires for the current tick
type GuardFunc func(ctx *TickContext) bool

// SwitchReason records which rule flipped the phase
type SwitchReason string

const (
	// ReasonEarly marks a switch before the green time expired
	ReasonEarly SwitchReason = "early"
	// ReasonTimed marks a switch after the green time expired
	ReasonTimed SwitchReason = "timed"
)

// Transition is one rule of the controller's transition table. Every transition flips
// right-of-way to the other approach; rules differ only in when they fire.
type Transition struct {
	Name   string
	Reason SwitchReason
	Guard  GuardFunc
}

// NewTransition creates a new transition
func NewTransition(name string, reason SwitchReason) *Transition {
	return &Transition{
		Name:   name,
		Reason: reason,
	}
}

// WithGuard adds a guard condition to the transition
func (t *Transition) WithGuard(guard GuardFunc) *Transition {
	t.Guard = guard
	return t
}

// EarlySwitchGuard fires when early switching is enabled, the red approach has at least
// VehicleThreshold vehicles and the green approach has fewer than VehicleThreshold.
//
// This is a corrected reading of the reference overload condition, which compares the same
// count against the threshold on both sides and as written very likely never fires.
// Because the intended behaviour is unconfirmed the rule is off by default.
func EarlySwitchGuard(ctx *TickContext) bool {
	if !ctx.Thresholds.EarlySwitch {
		return false
	}
	threshold := ctx.Thresholds.VehicleThreshold
	return ctx.Red.VehicleCount >= threshold && ctx.Green.VehicleCount < threshold
}

// TimedSwitchGuard fires once the phase has been green for its full duration
func TimedSwitchGuard(ctx *TickContext) bool {
	return ctx.Elapsed >= ctx.GreenDuration
}

// DefaultTransitions returns the rule table in priority order: early switch, then timed switch
func DefaultTransitions() []Transition {
	return []Transition{
		*NewTransition("early_switch", ReasonEarly).WithGuard(EarlySwitchGuard),
		*NewTransition("timed_switch", ReasonTimed).WithGuard(TimedSwitchGuard),
	}
}
