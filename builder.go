package junction

// ControllerBuilder provides a fluent entry point for assembling a controller
type ControllerBuilder interface {
	Thresholds(th Thresholds) ControllerBuilder
	EarlySwitch(enabled bool) ControllerBuilder
	Clock(clock Clock) ControllerBuilder
	Observe(observer Observer) ControllerBuilder

	// Rule starts a custom transition rule. Declaring any rule replaces the default table.
	Rule(name string, reason SwitchReason) RuleBuilder

	Build() (*Controller, error)
}

// RuleBuilder configures one transition rule
type RuleBuilder interface {
	// Conditions; repeated calls are combined with AND
	When(guard GuardFunc) RuleBuilder
	Unless(guard GuardFunc) RuleBuilder

	// Multiple rules, in priority order
	Rule(name string, reason SwitchReason) RuleBuilder

	// Navigation back
	Observe(observer Observer) ControllerBuilder
	Build() (*Controller, error)
}

type controllerBuilderImpl struct {
	thresholds  Thresholds
	earlySwitch *bool
	options     []Option
	rules       []*Transition
}

type ruleBuilderImpl struct {
	builder *controllerBuilderImpl
	rule    *Transition
}

// NewControllerBuilder creates a builder starting from DefaultThresholds
func NewControllerBuilder() ControllerBuilder {
	return &controllerBuilderImpl{thresholds: DefaultThresholds()}
}

// Thresholds replaces the timing thresholds
func (b *controllerBuilderImpl) Thresholds(th Thresholds) ControllerBuilder {
	b.thresholds = th
	return b
}

// EarlySwitch overrides the threshold's early switch flag
func (b *controllerBuilderImpl) EarlySwitch(enabled bool) ControllerBuilder {
	b.earlySwitch = &enabled
	return b
}

// Clock sets the controller clock
func (b *controllerBuilderImpl) Clock(clock Clock) ControllerBuilder {
	b.options = append(b.options, WithClock(clock))
	return b
}

// Observe registers an observer
func (b *controllerBuilderImpl) Observe(observer Observer) ControllerBuilder {
	b.options = append(b.options, WithObserver(observer))
	return b
}

// Rule adds a transition rule
func (b *controllerBuilderImpl) Rule(name string, reason SwitchReason) RuleBuilder {
	rule := NewTransition(name, reason)
	b.rules = append(b.rules, rule)
	return &ruleBuilderImpl{builder: b, rule: rule}
}

// Build validates the configuration and creates the controller
func (b *controllerBuilderImpl) Build() (*Controller, error) {
	th := b.thresholds
	if b.earlySwitch != nil {
		th.EarlySwitch = *b.earlySwitch
	}

	opts := append([]Option(nil), b.options...)
	if len(b.rules) > 0 {
		transitions := make([]Transition, 0, len(b.rules))
		for _, rule := range b.rules {
			transitions = append(transitions, *rule)
		}
		opts = append(opts, WithTransitions(transitions...))
	}
	return NewController(th, opts...)
}

// When adds a guard condition
func (rb *ruleBuilderImpl) When(guard GuardFunc) RuleBuilder {
	if prev := rb.rule.Guard; prev != nil {
		rb.rule.Guard = func(ctx *TickContext) bool {
			return prev(ctx) && guard(ctx)
		}
		return rb
	}
	rb.rule.Guard = guard
	return rb
}

// Unless adds a negated guard condition
func (rb *ruleBuilderImpl) Unless(guard GuardFunc) RuleBuilder {
	return rb.When(func(ctx *TickContext) bool {
		return !guard(ctx)
	})
}

// Rule starts the next rule
func (rb *ruleBuilderImpl) Rule(name string, reason SwitchReason) RuleBuilder {
	return rb.builder.Rule(name, reason)
}

// Observe registers an observer
func (rb *ruleBuilderImpl) Observe(observer Observer) ControllerBuilder {
	return rb.builder.Observe(observer)
}

// Build creates the controller
func (rb *ruleBuilderImpl) Build() (*Controller, error) {
	return rb.builder.Build()
}
