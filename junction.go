// Package junction implements an adaptive signal controller for a junction with two
// conflicting approaches. Each tick the controller receives a pair of traffic snapshots,
// decides whether right-of-way changes hands, and recomputes the green time from the
// relative demand of the two approaches.
package junction

import "time"

// Seconds converts fractional seconds to a time.Duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
