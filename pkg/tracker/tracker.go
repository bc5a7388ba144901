// Package tracker follows vehicle centroids across video frames and estimates their speed.
//
// Detections are associated to existing tracks by proximity: every track/detection
// pair within the gating distance is a candidate, and candidates are accepted
// closest-first so that each track and each detection is used at most once.
package tracker

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// Point is an image-space position in pixels
type Point struct {
	X float64
	Y float64
}

// Distance returns the Euclidean distance between two points
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Track is one followed vehicle
type Track struct {
	ID          string
	Centroid    Point
	Positions   []Point
	Disappeared int
	// Speed is the per-frame displacement scaled by FPS/100, the unit the demand estimator expects
	Speed float64
}

// Config controls association and track lifetime
type Config struct {
	// MaxDisappeared is how many consecutive frames a track may go unmatched before it is dropped
	MaxDisappeared int
	// HistorySize bounds the stored position history
	HistorySize int
	// GatingDistance is the largest centroid jump, in pixels, accepted as the same vehicle
	GatingDistance float64
	// FPS is the frame rate used for speed estimation
	FPS float64
}

// DefaultConfig returns the stock tracker settings
func DefaultConfig() Config {
	return Config{
		MaxDisappeared: 5,
		HistorySize:    10,
		GatingDistance: 80,
		FPS:            30,
	}
}

// Tracker assigns stable IDs to vehicle centroids between frames
type Tracker struct {
	config Config
	tracks map[string]*Track
	order  []string
}

// New creates a tracker. Zero-valued config fields take their defaults.
func New(config Config) *Tracker {
	def := DefaultConfig()
	if config.MaxDisappeared <= 0 {
		config.MaxDisappeared = def.MaxDisappeared
	}
	if config.HistorySize <= 0 {
		config.HistorySize = def.HistorySize
	}
	if config.GatingDistance <= 0 {
		config.GatingDistance = def.GatingDistance
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	return &Tracker{
		config: config,
		tracks: make(map[string]*Track),
	}
}

// Config returns the tracker settings in effect
func (t *Tracker) Config() Config {
	return t.config
}

type candidate struct {
	track     string
	detection int
	distance  float64
}

// Update associates the frame's centroids with existing tracks and returns every live track
// in creation order. An empty frame ages all tracks and returns nothing.
func (t *Tracker) Update(centroids []Point) []Track {
	if len(centroids) == 0 {
		for _, id := range t.order {
			t.tracks[id].Disappeared++
		}
		t.prune()
		return nil
	}

	var candidates []candidate
	for _, id := range t.order {
		track := t.tracks[id]
		for j, c := range centroids {
			if d := track.Centroid.Distance(c); d <= t.config.GatingDistance {
				candidates = append(candidates, candidate{track: id, detection: j, distance: d})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].distance < candidates[b].distance
	})

	matchedTracks := make(map[string]bool)
	matchedDetections := make(map[int]bool)
	for _, c := range candidates {
		if matchedTracks[c.track] || matchedDetections[c.detection] {
			continue
		}
		matchedTracks[c.track] = true
		matchedDetections[c.detection] = true
		t.observe(t.tracks[c.track], centroids[c.detection])
	}

	for _, id := range t.order {
		if !matchedTracks[id] {
			t.tracks[id].Disappeared++
		}
	}
	t.prune()

	for j, c := range centroids {
		if !matchedDetections[j] {
			t.add(c)
		}
	}

	return t.Tracks()
}

// Tracks returns copies of the live tracks in creation order
func (t *Tracker) Tracks() []Track {
	out := make([]Track, 0, len(t.order))
	for _, id := range t.order {
		track := *t.tracks[id]
		track.Positions = append([]Point(nil), track.Positions...)
		out = append(out, track)
	}
	return out
}

// Len returns the number of live tracks
func (t *Tracker) Len() int {
	return len(t.order)
}

// Reset drops all tracks
func (t *Tracker) Reset() {
	t.tracks = make(map[string]*Track)
	t.order = nil
}

func (t *Tracker) observe(track *Track, c Point) {
	prev := track.Centroid
	track.Centroid = c
	track.Disappeared = 0
	track.Positions = append(track.Positions, c)
	if over := len(track.Positions) - t.config.HistorySize; over > 0 {
		track.Positions = track.Positions[over:]
	}
	track.Speed = prev.Distance(c) * t.config.FPS / 100.0
}

func (t *Tracker) add(c Point) {
	id := "trk_" + uuid.NewString()
	t.tracks[id] = &Track{
		ID:        id,
		Centroid:  c,
		Positions: []Point{c},
	}
	t.order = append(t.order, id)
}

func (t *Tracker) prune() {
	kept := t.order[:0]
	for _, id := range t.order {
		if t.tracks[id].Disappeared > t.config.MaxDisappeared {
			delete(t.tracks, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}
