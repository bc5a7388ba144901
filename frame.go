package junction

// Frame is everything a renderer or publisher needs for one tick
type Frame struct {
	Status    Status          `json:"status"`
	NS        TrafficSnapshot `json:"ns"`
	SN        TrafficSnapshot `json:"sn"`
	Reduction float64         `json:"reduction_pct"`
}

// NewFrame assembles a frame from a status and the pair used for the tick
func NewFrame(status Status, pair Pair, reduction float64) Frame {
	return Frame{
		Status:    status,
		NS:        pair.NS,
		SN:        pair.SN,
		Reduction: reduction,
	}
}

// Pair returns the frame's traffic pair
func (f Frame) Pair() Pair {
	return Pair{NS: f.NS, SN: f.SN}
}
