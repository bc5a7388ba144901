package junction

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestController_InitialState(t *testing.T) {
	observer := NewTestObserver()
	controller, _ := NewTestController(t, DefaultThresholds(), WithObserver(observer))

	AssertPhase(t, controller, PhaseAGreen)
	if controller.Active() != ApproachA {
		t.Errorf("Expected approach A active, got %s", controller.Active())
	}
	if controller.GreenDuration() != 20*time.Second {
		t.Errorf("Expected default green 20s, got %v", controller.GreenDuration())
	}
	if !controller.PhaseStart().Equal(TestEpoch) {
		t.Errorf("Expected phase start at construction time, got %v", controller.PhaseStart())
	}
	if observer.PhaseEnterCount() != 1 {
		t.Errorf("Expected initial phase enter notification, got %d", observer.PhaseEnterCount())
	}
}

func TestController_InvalidConfiguration(t *testing.T) {
	bad := DefaultThresholds()
	bad.MinGreen = 0
	if _, err := NewController(bad); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for invalid thresholds, got %v", err)
	}

	if _, err := NewController(DefaultThresholds(), WithTransitions()); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for empty transition table, got %v", err)
	}

	if _, err := NewController(DefaultThresholds(), WithTransitions(*NewTransition("no_guard", ReasonTimed))); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for missing guard, got %v", err)
	}

	if _, err := NewController(DefaultThresholds(), WithClock(nil)); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for nil clock, got %v", err)
	}
}

// Queue empty on A, long and slow on B: A holds for the default 20s, then B gets max green.
func TestController_ScenarioA(t *testing.T) {
	th := DefaultThresholds()
	controller, clock := NewTestController(t, th)
	pair := Pair{NS: Snap(0, 5, 0), SN: Snap(10, 1, 0)}

	var switchTick *TickResult
	for i := 1; i <= 21; i++ {
		result := controller.Tick(clock.Advance(time.Second), pair)
		if result.Switched {
			if switchTick != nil {
				t.Fatalf("Expected exactly one switch, got another at tick %d", result.Tick)
			}
			switchTick = result
		}
	}

	if switchTick == nil {
		t.Fatal("Expected a switch within 21 seconds")
	}
	AssertSwitched(t, switchTick, PhaseAGreen, PhaseBGreen, ReasonTimed)
	if switchTick.Elapsed < th.DefaultGreen {
		t.Errorf("Expected switch only once elapsed >= %v, got %v", th.DefaultGreen, switchTick.Elapsed)
	}
	if switchTick.Tick != 20 {
		t.Errorf("Expected switch at tick 20, got %d", switchTick.Tick)
	}
	AssertDurationNear(t, controller.GreenDuration(), th.MaxGreen, time.Second)
	AssertPhase(t, controller, PhaseBGreen)
}

// No queue anywhere: every recomputed duration is the default.
func TestController_ScenarioB(t *testing.T) {
	th := DefaultThresholds()
	controller, clock := NewTestController(t, th)
	pair := Pair{NS: Snap(0, 3, 0), SN: Snap(0, 2, 0)}

	switches := 0
	for i := 0; i < 200; i++ {
		result := controller.Tick(clock.Advance(time.Second), pair)
		if result.Switched {
			switches++
			if result.GreenDuration != th.DefaultGreen {
				t.Errorf("Expected recomputed duration %v, got %v", th.DefaultGreen, result.GreenDuration)
			}
		}
	}
	if switches != 10 {
		t.Errorf("Expected 10 switches in 200s of 20s phases, got %d", switches)
	}
}

// Malformed input is clamped; durations stay finite and inside bounds.
func TestController_ScenarioC(t *testing.T) {
	th := DefaultThresholds()
	controller, clock := NewTestController(t, th)
	pair := Pair{NS: Snap(-10, math.NaN(), -3), SN: Snap(-1, -4, 0)}

	for i := 0; i < 100; i++ {
		result := controller.Tick(clock.Advance(time.Second), pair)
		if result.GreenDuration <= 0 {
			t.Fatalf("Expected positive green duration, got %v", result.GreenDuration)
		}
		if result.Switched && result.GreenDuration != th.DefaultGreen {
			t.Errorf("Expected clamped input to give zero demand and default green, got %v", result.GreenDuration)
		}
		if result.TimeRemaining < 0 {
			t.Fatalf("Expected non-negative remaining time, got %v", result.TimeRemaining)
		}
	}
}

func TestController_TimedSwitchBoundary(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())

	result := controller.Tick(clock.Advance(20*time.Second-time.Nanosecond), Pair{})
	AssertNotSwitched(t, result)
	if result.TimeRemaining != time.Nanosecond {
		t.Errorf("Expected 1ns remaining, got %v", result.TimeRemaining)
	}

	result = controller.Tick(clock.Advance(time.Nanosecond), Pair{})
	AssertSwitched(t, result, PhaseAGreen, PhaseBGreen, ReasonTimed)
	if !controller.PhaseStart().Equal(clock.Now()) {
		t.Errorf("Expected phase start reset to switch time")
	}
}

func TestController_SingleTransitionPerTick(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())

	// A huge jump would satisfy the timed guard for several phases in a row
	result := controller.Tick(clock.Advance(10*time.Minute), Pair{})
	AssertSwitched(t, result, PhaseAGreen, PhaseBGreen, ReasonTimed)
	AssertPhase(t, controller, PhaseBGreen)

	if remaining := controller.TimeRemaining(clock.Now()); remaining != controller.GreenDuration() {
		t.Errorf("Expected a fresh phase with full remaining time, got %v", remaining)
	}
}

func TestController_EarlySwitchDisabledByDefault(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())
	congested := Pair{NS: Snap(0, 5, 0), SN: Snap(12, 0.5, 12)}

	for i := 0; i < 19; i++ {
		result := controller.Tick(clock.Advance(time.Second), congested)
		AssertNotSwitched(t, result)
	}
}

func TestController_EarlySwitchEnabled(t *testing.T) {
	th := DefaultThresholds()
	th.EarlySwitch = true
	observer := NewTestObserver()
	controller, clock := NewTestController(t, th, WithObserver(observer))

	// Green approach busy: no early switch
	result := controller.Tick(clock.Advance(time.Second), Pair{NS: Snap(5, 1, 5), SN: Snap(8, 1, 8)})
	AssertNotSwitched(t, result)

	// Red approach below threshold: no early switch
	result = controller.Tick(clock.Advance(time.Second), Pair{NS: Snap(0, 5, 0), SN: Snap(2, 1, 2)})
	AssertNotSwitched(t, result)

	// Red congested, green nearly empty
	result = controller.Tick(clock.Advance(time.Second), Pair{NS: Snap(1, 5, 1), SN: Snap(8, 1, 3)})
	AssertSwitched(t, result, PhaseAGreen, PhaseBGreen, ReasonEarly)
	if result.Transition != "early_switch" {
		t.Errorf("Expected early_switch transition, got %s", result.Transition)
	}

	last := observer.LastTransition()
	if last == nil {
		t.Fatal("Expected transition to be observed")
	}
	if last.Reason != ReasonEarly || last.Served != 3*time.Second {
		t.Errorf("Expected early switch after 3s, got %s after %v", last.Reason, last.Served)
	}
}

func TestController_EarlyRuleTakesPriority(t *testing.T) {
	th := DefaultThresholds()
	th.EarlySwitch = true
	controller, clock := NewTestController(t, th)

	result := controller.Tick(clock.Advance(30*time.Second), Pair{NS: Snap(0, 5, 0), SN: Snap(9, 1, 9)})
	AssertSwitched(t, result, PhaseAGreen, PhaseBGreen, ReasonEarly)
}

func TestController_GuardPanicIsReported(t *testing.T) {
	observer := NewTestObserver()
	controller, clock := NewTestController(t, DefaultThresholds(),
		WithObserver(observer),
		WithTransitions(
			*NewTransition("broken", ReasonEarly).WithGuard(PanickingGuard),
			*NewTransition("timed_switch", ReasonTimed).WithGuard(TimedSwitchGuard),
		))

	result := controller.Tick(clock.Advance(time.Second), Pair{})
	AssertNotSwitched(t, result)
	if observer.ErrorCount() != 1 {
		t.Fatalf("Expected 1 error notification, got %d", observer.ErrorCount())
	}
	if err := observer.Errors[0].Error; !IsGuardError(err) || GetErrorCode(err) != ErrCodeGuardPanic {
		t.Errorf("Expected guard panic error, got %v", err)
	}

	result = controller.Tick(clock.Advance(20*time.Second), Pair{})
	AssertSwitched(t, result, PhaseAGreen, PhaseBGreen, ReasonTimed)
}

func TestController_CustomTransitions(t *testing.T) {
	SetTestGuard(false)
	defer SetTestGuard(false)

	controller, clock := NewTestController(t, DefaultThresholds(),
		WithTransitions(*NewTransition("manual", ReasonEarly).WithGuard(TestGuard)))

	AssertNotSwitched(t, controller.Tick(clock.Advance(time.Hour), Pair{}))

	SetTestGuard(true)
	AssertSwitched(t, controller.Tick(clock.Advance(time.Second), Pair{}), PhaseAGreen, PhaseBGreen, ReasonEarly)
	AssertSwitched(t, controller.Tick(clock.Advance(time.Second), Pair{}), PhaseBGreen, PhaseAGreen, ReasonEarly)

	if got := len(controller.Transitions()); got != 1 {
		t.Errorf("Expected 1 transition, got %d", got)
	}
}

func TestController_StepUsesClock(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())

	clock.Advance(5 * time.Second)
	result := controller.Step(Pair{})
	if result.Elapsed != 5*time.Second {
		t.Errorf("Expected 5s elapsed, got %v", result.Elapsed)
	}
	if !result.Now.Equal(clock.Now()) {
		t.Errorf("Expected tick time to come from the clock")
	}
}

func TestController_Status(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())
	controller.Tick(clock.Advance(4*time.Second), Pair{})

	status := controller.Status(clock.Advance(time.Second))
	if status.Phase != PhaseAGreen || status.Active != ApproachA {
		t.Errorf("Expected A_GREEN status, got %s", status.Phase)
	}
	if status.Elapsed != 5*time.Second || status.TimeRemaining != 15*time.Second {
		t.Errorf("Expected 5s elapsed and 15s remaining, got %v and %v", status.Elapsed, status.TimeRemaining)
	}
	if status.Tick != 1 || status.Switches != 0 {
		t.Errorf("Expected tick 1 with no switches, got tick %d switches %d", status.Tick, status.Switches)
	}

	// Timestamps before the phase start never produce negative elapsed time
	early := controller.Status(TestEpoch.Add(-time.Minute))
	if early.Elapsed != 0 || early.TimeRemaining != 20*time.Second {
		t.Errorf("Expected clamped elapsed, got %v", early.Elapsed)
	}

	// Remaining time saturates at zero
	if remaining := controller.TimeRemaining(clock.Now().Add(time.Hour)); remaining != 0 {
		t.Errorf("Expected 0 remaining, got %v", remaining)
	}
}

func TestController_Reset(t *testing.T) {
	observer := NewTestObserver()
	controller, clock := NewTestController(t, DefaultThresholds(), WithObserver(observer))

	controller.Tick(clock.Advance(25*time.Second), Pair{SN: Snap(5, 1, 5)})
	AssertPhase(t, controller, PhaseBGreen)

	now := clock.Advance(time.Second)
	controller.Reset(now)

	AssertPhase(t, controller, PhaseAGreen)
	status := controller.Status(now)
	if status.GreenDuration != 20*time.Second || status.Tick != 0 || status.Switches != 0 {
		t.Errorf("Expected initial status after reset, got %+v", status)
	}
	if len(observer.Resets) != 1 {
		t.Errorf("Expected reset notification, got %d", len(observer.Resets))
	}
	if observer.PhaseEnterCount() != 3 {
		t.Errorf("Expected 3 phase enters (initial, switch, reset), got %d", observer.PhaseEnterCount())
	}
}

func TestController_ConcurrentReaders(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					status := controller.Status(clock.Now())
					if status.TimeRemaining < 0 {
						t.Errorf("Expected non-negative remaining time")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		controller.Tick(clock.Advance(250*time.Millisecond), Pair{NS: Snap(i%7, 1, i%7), SN: Snap(i%5, 2, i%5)})
	}
	close(done)
	wg.Wait()
}

func TestController_ObserverCanReadStatus(t *testing.T) {
	controller, clock := NewTestController(t, DefaultThresholds())

	reader := &statusReadingObserver{controller: controller, clock: clock}
	controller.AddObserver(reader)
	controller.Tick(clock.Advance(21*time.Second), Pair{})

	if reader.seen != PhaseBGreen {
		t.Errorf("Expected observer to read B_GREEN from inside the callback, got %s", reader.seen)
	}

	controller.RemoveObserver(reader)
	controller.Tick(clock.Advance(21*time.Second), Pair{})
	if reader.seen != PhaseBGreen {
		t.Errorf("Expected removed observer not to be notified")
	}
}

type statusReadingObserver struct {
	BaseObserver
	controller *Controller
	clock      Clock
	seen       Phase
}

func (o *statusReadingObserver) OnTransition(change PhaseChange, ctx *TickContext) {
	o.seen = o.controller.Status(o.clock.Now()).Phase
}
