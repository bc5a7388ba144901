package junction

import "time"

// PhaseChange describes one switch of right-of-way
type PhaseChange struct {
	Tick   uint64
	At     time.Time
	From   Phase
	To     Phase
	Reason SwitchReason
	// Served is how long the previous phase was green
	Served time.Duration
	// GreenDuration is the newly computed green time for To
	GreenDuration time.Duration
	Pair          Pair
}

// TickResult represents the outcome of one controller update
type TickResult struct {
	Tick          uint64
	Now           time.Time
	Switched      bool
	From          Phase
	To            Phase
	Reason        SwitchReason
	Transition    string
	Elapsed       time.Duration
	GreenDuration time.Duration
	TimeRemaining time.Duration
}

// Active returns the approach holding right-of-way after the tick
func (r *TickResult) Active() Approach {
	return r.To.Approach()
}

// Change converts a switching result into a PhaseChange; ok is false when nothing switched
func (r *TickResult) Change(pair Pair) (PhaseChange, bool) {
	if !r.Switched {
		return PhaseChange{}, false
	}
	return PhaseChange{
		Tick:          r.Tick,
		At:            r.Now,
		From:          r.From,
		To:            r.To,
		Reason:        r.Reason,
		Served:        r.Elapsed,
		GreenDuration: r.GreenDuration,
		Pair:          pair,
	}, true
}

// Status is the read-only view of the controller consumed by renderers
type Status struct {
	Tick          uint64        `json:"tick"`
	Phase         Phase         `json:"phase"`
	Active        Approach      `json:"-"`
	PhaseStart    time.Time     `json:"phase_start"`
	Elapsed       time.Duration `json:"elapsed"`
	GreenDuration time.Duration `json:"green_duration"`
	TimeRemaining time.Duration `json:"time_remaining"`
	Switches      uint64        `json:"switches"`
}
