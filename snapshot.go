package junction

import "math"

// MinSpeed is the speed floor applied before any division by speed
const MinSpeed = 0.1

// TrafficSnapshot summarises one approach for one tick
type TrafficSnapshot struct {
	QueueLength  int     `json:"queue_length"`
	AvgSpeed     float64 `json:"avg_speed"`
	VehicleCount int     `json:"vehicle_count"`
}

// Sanitize clamps malformed values to safe floors: negative counts become zero and
// speeds that are NaN, negative or below MinSpeed become MinSpeed. +Inf is kept as the
// largest finite speed so it still means "no demand" and stays serialisable.
func (s TrafficSnapshot) Sanitize() TrafficSnapshot {
	if s.QueueLength < 0 {
		s.QueueLength = 0
	}
	if s.VehicleCount < 0 {
		s.VehicleCount = 0
	}
	switch {
	case math.IsInf(s.AvgSpeed, 1):
		s.AvgSpeed = math.MaxFloat64
	case math.IsNaN(s.AvgSpeed) || s.AvgSpeed < MinSpeed:
		s.AvgSpeed = MinSpeed
	}
	return s
}

// Pair holds both approaches' snapshots from the same tick.
// The controller only ever consumes a Pair, never a lone snapshot.
type Pair struct {
	NS TrafficSnapshot `json:"ns"`
	SN TrafficSnapshot `json:"sn"`
}

// For returns the snapshot belonging to the given approach
func (p Pair) For(a Approach) TrafficSnapshot {
	if a == ApproachB {
		return p.SN
	}
	return p.NS
}

// With returns a copy of the pair with the given approach's snapshot replaced
func (p Pair) With(a Approach, s TrafficSnapshot) Pair {
	if a == ApproachB {
		p.SN = s
	} else {
		p.NS = s
	}
	return p
}

// Sanitize sanitizes both snapshots
func (p Pair) Sanitize() Pair {
	return Pair{NS: p.NS.Sanitize(), SN: p.SN.Sanitize()}
}

// TotalQueue returns the combined queue length, ignoring negative values
func (p Pair) TotalQueue() int {
	s := p.Sanitize()
	return s.NS.QueueLength + s.SN.QueueLength
}

// FallbackPair is the constant pair supplied when video is unavailable
func FallbackPair() Pair {
	return Pair{
		NS: TrafficSnapshot{QueueLength: 2, AvgSpeed: 1.0, VehicleCount: 2},
		SN: TrafficSnapshot{QueueLength: 1, AvgSpeed: 1.5, VehicleCount: 1},
	}
}
