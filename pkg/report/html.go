package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLOptions tunes the chart page
type HTMLOptions struct {
	Title string
	// AssetsHost overrides the echarts CDN, e.g. for offline viewing
	AssetsHost string
}

// WriteHTML renders the queue timeline and the green time per switch as an echarts page
func (c *Collector) WriteHTML(w io.Writer, options HTMLOptions) error {
	if options.Title == "" {
		options.Title = "Junction timing"
	}
	points := c.Points()
	changes := c.Changes()
	summary := Summarize(changes, points, c.Duration())

	x := make([]string, 0, len(points))
	ns := make([]opts.LineData, 0, len(points))
	sn := make([]opts.LineData, 0, len(points))
	remaining := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, strconv.FormatFloat(p.Offset.Seconds(), 'f', 1, 64))
		ns = append(ns, opts.LineData{Value: p.NSQueue})
		sn = append(sn, opts.LineData{Value: p.SNQueue})
		remaining = append(remaining, opts.LineData{Value: p.Remaining.Seconds()})
	}

	queue := charts.NewLine()
	queue.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: options.Title, Width: "100%", Height: "480px", AssetsHost: options.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Queue length", Subtitle: fmt.Sprintf("duration=%s switches=%d", summary.Duration, summary.Switches)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "vehicles"}),
	)
	queue.SetXAxis(x).
		AddSeries("N→S queue", ns).
		AddSeries("S→N queue", sn).
		AddSeries("green remaining (s)", remaining)

	labels := make([]string, 0, len(changes))
	greens := make([]opts.BarData, 0, len(changes))
	served := make([]opts.BarData, 0, len(changes))
	for _, ch := range changes {
		labels = append(labels, fmt.Sprintf("#%d %s", ch.Tick, ch.To.Approach().Label()))
		greens = append(greens, opts.BarData{Value: ch.GreenDuration.Seconds()})
		served = append(served, opts.BarData{Value: ch.Served.Seconds()})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: options.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Green time per switch", Subtitle: fmt.Sprintf("early=%d timed=%d", summary.Early, summary.Timed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("assigned (s)", greens).
		AddSeries("served by previous (s)", served)

	page := components.NewPage()
	page.PageTitle = options.Title
	if options.AssetsHost != "" {
		page.SetAssetsHost(options.AssetsHost)
	}
	page.AddCharts(queue, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
