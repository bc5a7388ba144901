package junction

import (
	"fmt"
	"sync"
)

// Observer represents an entity that observes the controller
type Observer interface {
	// Required methods

	// OnTransition is called when right-of-way changes hands
	OnTransition(change PhaseChange, ctx *TickContext)

	// OnPhaseEnter is called when a phase becomes active, including the initial phase
	OnPhaseEnter(phase Phase, ctx *TickContext)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnPhaseExit is called when a phase ends
	OnPhaseExit(phase Phase, ctx *TickContext)

	// OnGuardEvaluation is called for every guard evaluated during a tick
	OnGuardEvaluation(transition string, result bool, ctx *TickContext)

	// OnTick is called once per tick after the update has completed
	OnTick(result *TickResult, ctx *TickContext)

	// OnError is called when a guard or observer panics
	OnError(err error, ctx *TickContext)

	// OnReset is called when the controller is reset to its initial phase
	OnReset(ctx *TickContext)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements the required Observer method
func (o *BaseObserver) OnTransition(change PhaseChange, ctx *TickContext) {}

// OnPhaseEnter implements the required Observer method
func (o *BaseObserver) OnPhaseEnter(phase Phase, ctx *TickContext) {}

// OnPhaseExit implements the optional ExtendedObserver method
func (o *BaseObserver) OnPhaseExit(phase Phase, ctx *TickContext) {}

// OnGuardEvaluation implements the optional ExtendedObserver method
func (o *BaseObserver) OnGuardEvaluation(transition string, result bool, ctx *TickContext) {}

// OnTick implements the optional ExtendedObserver method
func (o *BaseObserver) OnTick(result *TickResult, ctx *TickContext) {}

// OnError implements the optional ExtendedObserver method
func (o *BaseObserver) OnError(err error, ctx *TickContext) {}

// OnReset implements the optional ExtendedObserver method
func (o *BaseObserver) OnReset(ctx *TickContext) {}

// ObserverManager manages a collection of observers
type ObserverManager struct {
	mutex     sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered observers
func (om *ObserverManager) Len() int {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// each calls fn for every observer. A panicking observer is reported through OnError
// on the extended observers and never reaches the controller.
func (om *ObserverManager) each(callback string, ctx *TickContext, fn func(Observer)) {
	for _, observer := range om.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if extObs, ok := observer.(ExtendedObserver); ok {
						func() {
							defer func() { recover() }()
							extObs.OnError(&ObserverError{Callback: callback, Cause: fmt.Errorf("%v", r)}, ctx)
						}()
					}
				}
			}()
			fn(observer)
		}()
	}
}

// eachExtended is each restricted to observers implementing ExtendedObserver
func (om *ObserverManager) eachExtended(callback string, ctx *TickContext, fn func(ExtendedObserver)) {
	om.each(callback, ctx, func(observer Observer) {
		if extObs, ok := observer.(ExtendedObserver); ok {
			fn(extObs)
		}
	})
}

// NotifyTransition notifies all observers of a phase change
func (om *ObserverManager) NotifyTransition(change PhaseChange, ctx *TickContext) {
	om.each("OnTransition", ctx, func(o Observer) { o.OnTransition(change, ctx) })
}

// NotifyPhaseEnter notifies all observers of phase entry
func (om *ObserverManager) NotifyPhaseEnter(phase Phase, ctx *TickContext) {
	om.each("OnPhaseEnter", ctx, func(o Observer) { o.OnPhaseEnter(phase, ctx) })
}

// NotifyPhaseExit notifies all observers of phase exit
func (om *ObserverManager) NotifyPhaseExit(phase Phase, ctx *TickContext) {
	om.eachExtended("OnPhaseExit", ctx, func(o ExtendedObserver) { o.OnPhaseExit(phase, ctx) })
}

// NotifyGuardEvaluation notifies all observers of a guard evaluation
func (om *ObserverManager) NotifyGuardEvaluation(transition string, result bool, ctx *TickContext) {
	om.eachExtended("OnGuardEvaluation", ctx, func(o ExtendedObserver) { o.OnGuardEvaluation(transition, result, ctx) })
}

// NotifyTick notifies all observers that a tick completed
func (om *ObserverManager) NotifyTick(result *TickResult, ctx *TickContext) {
	om.eachExtended("OnTick", ctx, func(o ExtendedObserver) { o.OnTick(result, ctx) })
}

// NotifyReset notifies all observers of a reset
func (om *ObserverManager) NotifyReset(ctx *TickContext) {
	om.eachExtended("OnReset", ctx, func(o ExtendedObserver) { o.OnReset(ctx) })
}

// NotifyError notifies all observers of errors
func (om *ObserverManager) NotifyError(err error, ctx *TickContext) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { recover() }()
				extObs.OnError(err, ctx)
			}()
		}
	}
}
