package observers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anggasct/junction"
)

// PrometheusObserver exports controller activity as Prometheus metrics, partitioned by junction name.
type PrometheusObserver struct {
	junction.BaseObserver

	name string

	ticks         *prometheus.CounterVec
	switches      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	greenSeconds  *prometheus.HistogramVec
	servedSeconds *prometheus.HistogramVec
	remaining     *prometheus.GaugeVec
	queueLength   *prometheus.GaugeVec
	avgSpeed      *prometheus.GaugeVec
	activeGreen   *prometheus.GaugeVec
}

// NewPrometheusObserver registers the controller metrics with reg. A nil reg uses the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer, name string) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	greenBuckets := []float64{5, 10, 15, 20, 25, 30, 35, 40, 45, 60}

	return &PrometheusObserver{
		name: name,
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "ticks_total",
			Help:      "Total controller ticks",
		}, []string{"junction"}),
		switches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "switches_total",
			Help:      "Total phase switches by target phase and reason",
		}, []string{"junction", "to", "reason"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "errors_total",
			Help:      "Total guard and observer failures",
		}, []string{"junction"}),
		greenSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "green_duration_seconds",
			Help:      "Green time assigned when an approach receives right-of-way",
			Buckets:   greenBuckets,
		}, []string{"junction", "approach"}),
		servedSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "served_duration_seconds",
			Help:      "Green time actually served before a switch",
			Buckets:   greenBuckets,
		}, []string{"junction", "approach"}),
		remaining: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "time_remaining_seconds",
			Help:      "Green time left in the current phase",
		}, []string{"junction"}),
		queueLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "junction",
			Subsystem: "traffic",
			Name:      "queue_length",
			Help:      "Latest sanitized queue length per approach",
		}, []string{"junction", "approach"}),
		avgSpeed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "junction",
			Subsystem: "traffic",
			Name:      "avg_speed",
			Help:      "Latest sanitized average speed per approach",
		}, []string{"junction", "approach"}),
		activeGreen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "junction",
			Subsystem: "controller",
			Name:      "green",
			Help:      "1 for the approach holding right-of-way, 0 otherwise",
		}, []string{"junction", "approach"}),
	}
}

// OnPhaseEnter records the assigned green time and flags the active approach
func (o *PrometheusObserver) OnPhaseEnter(phase junction.Phase, ctx *junction.TickContext) {
	active := phase.Approach()
	o.greenSeconds.WithLabelValues(o.name, active.String()).Observe(ctx.GreenDuration.Seconds())
	o.activeGreen.WithLabelValues(o.name, active.String()).Set(1)
	o.activeGreen.WithLabelValues(o.name, active.Other().String()).Set(0)
}

// OnTransition counts switches and the time served by the outgoing phase
func (o *PrometheusObserver) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	o.switches.WithLabelValues(o.name, string(change.To), string(change.Reason)).Inc()
	o.servedSeconds.WithLabelValues(o.name, change.From.Approach().String()).Observe(change.Served.Seconds())
}

// OnTick updates the per-tick gauges
func (o *PrometheusObserver) OnTick(result *junction.TickResult, ctx *junction.TickContext) {
	o.ticks.WithLabelValues(o.name).Inc()
	o.remaining.WithLabelValues(o.name).Set(result.TimeRemaining.Seconds())
	for _, approach := range []junction.Approach{junction.ApproachA, junction.ApproachB} {
		s := ctx.Pair.For(approach)
		o.queueLength.WithLabelValues(o.name, approach.String()).Set(float64(s.QueueLength))
		o.avgSpeed.WithLabelValues(o.name, approach.String()).Set(s.AvgSpeed)
	}
}

// OnError counts errors
func (o *PrometheusObserver) OnError(err error, ctx *junction.TickContext) {
	o.errors.WithLabelValues(o.name).Inc()
}
