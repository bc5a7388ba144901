// Package detect turns per-frame object detections into traffic snapshots.
package detect

import (
	"gonum.org/v1/gonum/stat"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/tracker"
)

// MinConfidence is the detector score a box must exceed to count
const MinConfidence = 0.3

// VehicleClasses are the COCO class IDs counted as vehicles: car, motorcycle, bus, truck
var VehicleClasses = map[int]string{
	2: "car",
	3: "motorcycle",
	5: "bus",
	7: "truck",
}

// Box is one detector output in pixel coordinates
type Box struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Class      int     `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Centroid returns the box centre using integer midpoints
func (b Box) Centroid() tracker.Point {
	return tracker.Point{
		X: float64((b.X1 + b.X2) / 2),
		Y: float64((b.Y1 + b.Y2) / 2),
	}
}

// IsVehicle reports whether the box is a confident vehicle detection
func (b Box) IsVehicle() bool {
	_, ok := VehicleClasses[b.Class]
	return ok && b.Confidence > MinConfidence
}

// Filter returns the vehicle boxes in input order
func Filter(boxes []Box) []Box {
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		if b.IsVehicle() {
			out = append(out, b)
		}
	}
	return out
}

// Frame is one camera frame's detections. Missing marks a frame the camera failed to deliver.
type Frame struct {
	Boxes   []Box `json:"boxes"`
	Missing bool  `json:"missing,omitempty"`
}

// Processor converts one approach's frames into snapshots
type Processor struct {
	approach junction.Approach
	tracker  *tracker.Tracker
	last     junction.TrafficSnapshot
}

// NewProcessor creates a processor for an approach with its own tracker
func NewProcessor(approach junction.Approach, config tracker.Config) *Processor {
	return &Processor{
		approach: approach,
		tracker:  tracker.New(config),
		last:     junction.TrafficSnapshot{AvgSpeed: 1.0},
	}
}

// Approach returns the approach this processor serves
func (p *Processor) Approach() junction.Approach {
	return p.approach
}

// Process filters, tracks and summarises a frame. A missing frame repeats the last snapshot.
//
// Queue length is the number of vehicle detections and vehicle count the number of live
// tracks. Average speed is the mean of the moving tracks' speeds, 1.0 when nothing is
// tracked, and never below junction.MinSpeed.
func (p *Processor) Process(frame Frame) junction.TrafficSnapshot {
	if frame.Missing {
		return p.last
	}

	vehicles := Filter(frame.Boxes)
	centroids := make([]tracker.Point, len(vehicles))
	for i, b := range vehicles {
		centroids[i] = b.Centroid()
	}
	tracks := p.tracker.Update(centroids)

	speed := 1.0
	if len(tracks) > 0 {
		var moving []float64
		for _, tr := range tracks {
			if tr.Speed > 0 {
				moving = append(moving, tr.Speed)
			}
		}
		speed = junction.MinSpeed
		if len(moving) > 0 {
			speed = stat.Mean(moving, nil)
		}
	}
	if speed < junction.MinSpeed {
		speed = junction.MinSpeed
	}

	p.last = junction.TrafficSnapshot{
		QueueLength:  len(vehicles),
		AvgSpeed:     speed,
		VehicleCount: len(tracks),
	}
	return p.last
}

// Last returns the most recent snapshot
func (p *Processor) Last() junction.TrafficSnapshot {
	return p.last
}
