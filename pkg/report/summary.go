package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/anggasct/junction"
)

// ApproachSummary holds per-approach statistics
type ApproachSummary struct {
	Approach    junction.Approach
	Greens      int
	MeanGreen   time.Duration
	StdDevGreen time.Duration
	MinGreen    time.Duration
	MaxGreen    time.Duration
	MeanServed  time.Duration
	MeanQueue   float64
	MaxQueue    int
}

// Summary describes a whole run
type Summary struct {
	Duration time.Duration
	Switches int
	Early    int
	Timed    int
	NS       ApproachSummary
	SN       ApproachSummary
}

// Summarize builds a Summary from recorded changes and samples
func Summarize(changes []junction.PhaseChange, points []Point, duration time.Duration) Summary {
	s := Summary{
		Duration: duration,
		Switches: len(changes),
		NS:       ApproachSummary{Approach: junction.ApproachA},
		SN:       ApproachSummary{Approach: junction.ApproachB},
	}

	greens := map[junction.Approach][]float64{}
	served := map[junction.Approach][]float64{}
	for _, ch := range changes {
		switch ch.Reason {
		case junction.ReasonEarly:
			s.Early++
		case junction.ReasonTimed:
			s.Timed++
		}
		to := ch.To.Approach()
		greens[to] = append(greens[to], ch.GreenDuration.Seconds())
		from := ch.From.Approach()
		served[from] = append(served[from], ch.Served.Seconds())
	}

	queues := map[junction.Approach][]float64{}
	for _, p := range points {
		queues[junction.ApproachA] = append(queues[junction.ApproachA], float64(p.NSQueue))
		queues[junction.ApproachB] = append(queues[junction.ApproachB], float64(p.SNQueue))
	}

	for _, a := range []*ApproachSummary{&s.NS, &s.SN} {
		g := greens[a.Approach]
		a.Greens = len(g)
		if len(g) > 0 {
			mean, std := stat.MeanStdDev(g, nil)
			if len(g) == 1 {
				std = 0
			}
			a.MeanGreen = junction.Seconds(mean)
			a.StdDevGreen = junction.Seconds(std)
			a.MinGreen = junction.Seconds(slices.Min(g))
			a.MaxGreen = junction.Seconds(slices.Max(g))
		}
		if sv := served[a.Approach]; len(sv) > 0 {
			a.MeanServed = junction.Seconds(stat.Mean(sv, nil))
		}
		if q := queues[a.Approach]; len(q) > 0 {
			a.MeanQueue = stat.Mean(q, nil)
			a.MaxQueue = int(slices.Max(q))
		}
	}
	return s
}

// WriteText prints the summary as a short plain-text table
func (s Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "duration %s, %d switches (%d early, %d timed)\n",
		s.Duration.Round(time.Second), s.Switches, s.Early, s.Timed)
	if err != nil {
		return err
	}
	for _, a := range []ApproachSummary{s.NS, s.SN} {
		_, err := fmt.Fprintf(w, "%-4s greens=%d mean=%.1fs sd=%.1fs min=%.1fs max=%.1fs served=%.1fs queue mean=%.1f max=%d\n",
			a.Approach.Label(), a.Greens,
			a.MeanGreen.Seconds(), a.StdDevGreen.Seconds(), a.MinGreen.Seconds(), a.MaxGreen.Seconds(),
			a.MeanServed.Seconds(), a.MeanQueue, a.MaxQueue)
		if err != nil {
			return err
		}
	}
	return nil
}
