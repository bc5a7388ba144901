package junction

import (
	"math"
	"time"
)

// Demand converts a snapshot into a scalar demand: longer queues and slower traffic mean more demand.
// Inputs are sanitized first, so the result is never negative or NaN.
func Demand(s TrafficSnapshot) float64 {
	s = s.Sanitize()
	return float64(s.QueueLength) / math.Max(MinSpeed, s.AvgSpeed)
}

// Estimate returns the green duration for the active approach.
//
// The duration scales linearly between MinGreen and MaxGreen with the active approach's
// share of combined demand. With no demand on either approach it falls back to DefaultGreen.
func Estimate(th Thresholds, ns, sn TrafficSnapshot, active Approach) time.Duration {
	dNS := Demand(ns)
	dSN := Demand(sn)
	total := dNS + dSN
	if total <= 0 {
		return th.DefaultGreen
	}

	dActive := dNS
	if active == ApproachB {
		dActive = dSN
	}
	ratio := dActive / total

	minS := th.MinGreen.Seconds()
	maxS := th.MaxGreen.Seconds()
	seconds := minS + ratio*(maxS-minS)
	seconds = math.Max(minS, math.Min(maxS, seconds))

	return Seconds(seconds)
}

// Estimator binds Estimate to a fixed set of thresholds
type Estimator struct {
	thresholds Thresholds
}

// NewEstimator creates an estimator for the given thresholds
func NewEstimator(th Thresholds) Estimator {
	return Estimator{thresholds: th}
}

// Estimate returns the green duration for the active approach of the pair
func (e Estimator) Estimate(pair Pair, active Approach) time.Duration {
	return Estimate(e.thresholds, pair.NS, pair.SN, active)
}
