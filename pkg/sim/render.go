package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/anggasct/junction"
)

// TextRenderer prints the info panel: current phase, both approaches and the queue reduction.
// Output is throttled to one panel per Every of controller time, plus one on every phase change.
type TextRenderer struct {
	mutex     sync.Mutex
	w         io.Writer
	every     time.Duration
	last      time.Time
	lastPhase junction.Phase
}

// NewTextRenderer writes panels to w at most once per every
func NewTextRenderer(w io.Writer, every time.Duration) *TextRenderer {
	return &TextRenderer{w: w, every: every}
}

// Render implements Renderer
func (t *TextRenderer) Render(frame junction.Frame) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := frame.Status.PhaseStart.Add(frame.Status.Elapsed)
	if !t.last.IsZero() && frame.Status.Phase == t.lastPhase && now.Sub(t.last) < t.every {
		return nil
	}
	t.last = now
	t.lastPhase = frame.Status.Phase

	_, err := io.WriteString(t.w, Panel(frame))
	return err
}

// Panel formats a frame as the multi-line info panel
func Panel(frame junction.Frame) string {
	var b strings.Builder
	active := frame.Status.Phase.Approach()

	b.WriteString("Traffic Control Status\n")
	fmt.Fprintf(&b, "Current: %s GREEN  %.1fs left of %.1fs\n",
		active.Label(), frame.Status.TimeRemaining.Seconds(), frame.Status.GreenDuration.Seconds())
	for _, a := range []junction.Approach{junction.ApproachA, junction.ApproachB} {
		s := frame.Pair().For(a)
		fmt.Fprintf(&b, "%s: Queue=%d, Vehicles=%d, Speed=%.1f\n", a.Label(), s.QueueLength, s.VehicleCount, s.AvgSpeed)
	}
	fmt.Fprintf(&b, "Traffic Reduced: %.1f%%\n", frame.Reduction)
	return b.String()
}
