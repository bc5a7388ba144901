package observers

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/anggasct/junction"
)

// GreenSummary describes the green durations handed to one approach
type GreenSummary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
	P90    time.Duration
}

// MetricsObserver collects metrics about controller execution. Phase time is measured
// on the controller's timestamps, so it is exact under a manual clock.
type MetricsObserver struct {
	junction.BaseObserver

	phaseVisits      map[junction.Phase]int
	phaseTimeSpent   map[junction.Phase]time.Duration
	transitionCounts map[string]int
	reasonCounts     map[junction.SwitchReason]int
	greenDurations   map[junction.Approach][]float64
	lastPhaseEntry   map[junction.Phase]time.Time
	tickCount        int
	errorCount       int
	mutex            sync.RWMutex
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{}
	o.Reset()
	return o
}

// OnPhaseEnter records phase entry metrics
func (o *MetricsObserver) OnPhaseEnter(phase junction.Phase, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.phaseVisits[phase]++
	o.lastPhaseEntry[phase] = ctx.PhaseStart
	approach := phase.Approach()
	o.greenDurations[approach] = append(o.greenDurations[approach], ctx.GreenDuration.Seconds())
}

// OnPhaseExit records phase exit metrics
func (o *MetricsObserver) OnPhaseExit(phase junction.Phase, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if entryTime, ok := o.lastPhaseEntry[phase]; ok {
		if elapsed := ctx.Now.Sub(entryTime); elapsed > 0 {
			o.phaseTimeSpent[phase] += elapsed
		}
		delete(o.lastPhaseEntry, phase)
	}
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	transitionKey := string(change.From) + "->" + string(change.To)
	o.transitionCounts[transitionKey]++
	o.reasonCounts[change.Reason]++
}

// OnTick counts ticks
func (o *MetricsObserver) OnTick(result *junction.TickResult, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.tickCount++
}

// OnError records error metrics
func (o *MetricsObserver) OnError(err error, ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.errorCount++
}

// OnReset forgets open phase entries; accumulated counters are kept
func (o *MetricsObserver) OnReset(ctx *junction.TickContext) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.lastPhaseEntry = make(map[junction.Phase]time.Time)
}

// GetPhaseVisitCounts returns the number of times each phase was entered
func (o *MetricsObserver) GetPhaseVisitCounts() map[junction.Phase]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[junction.Phase]int)
	for phase, count := range o.phaseVisits {
		result[phase] = count
	}
	return result
}

// GetPhaseTimeSpent returns the completed green time spent in each phase
func (o *MetricsObserver) GetPhaseTimeSpent() map[junction.Phase]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[junction.Phase]time.Duration)
	for phase, duration := range o.phaseTimeSpent {
		result[phase] = duration
	}
	return result
}

// GetTransitionCounts returns the number of times each transition occurred
func (o *MetricsObserver) GetTransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[string]int)
	for transition, count := range o.transitionCounts {
		result[transition] = count
	}
	return result
}

// GetReasonCounts returns switches grouped by reason
func (o *MetricsObserver) GetReasonCounts() map[junction.SwitchReason]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[junction.SwitchReason]int)
	for reason, count := range o.reasonCounts {
		result[reason] = count
	}
	return result
}

// GetTickCount returns the number of ticks observed
func (o *MetricsObserver) GetTickCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.tickCount
}

// GetErrorCount returns the number of errors
func (o *MetricsObserver) GetErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.errorCount
}

// GreenSummary summarises the green durations assigned to an approach
func (o *MetricsObserver) GreenSummary(approach junction.Approach) GreenSummary {
	o.mutex.RLock()
	values := append([]float64(nil), o.greenDurations[approach]...)
	o.mutex.RUnlock()

	if len(values) == 0 {
		return GreenSummary{}
	}
	sort.Float64s(values)

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return GreenSummary{
		Count:  len(values),
		Mean:   junction.Seconds(mean),
		StdDev: junction.Seconds(std),
		Min:    junction.Seconds(values[0]),
		Max:    junction.Seconds(values[len(values)-1]),
		P90:    junction.Seconds(stat.Quantile(0.9, stat.Empirical, values, nil)),
	}
}

// Reset resets all metrics
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.phaseVisits = make(map[junction.Phase]int)
	o.phaseTimeSpent = make(map[junction.Phase]time.Duration)
	o.transitionCounts = make(map[string]int)
	o.reasonCounts = make(map[junction.SwitchReason]int)
	o.greenDurations = make(map[junction.Approach][]float64)
	o.lastPhaseEntry = make(map[junction.Phase]time.Time)
	o.tickCount = 0
	o.errorCount = 0
}
