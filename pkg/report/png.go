package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	nsColor     = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	snColor     = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	switchColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// Plot builds a gonum plot of both queue lengths over time with switch markers
func (c *Collector) Plot() (*plot.Plot, error) {
	points := c.Points()
	changes := c.Changes()

	p := plot.New()
	p.Title.Text = "Junction queue length"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Vehicles"

	nsPts := make(plotter.XYs, 0, len(points))
	snPts := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		nsPts = append(nsPts, plotter.XY{X: pt.Offset.Seconds(), Y: float64(pt.NSQueue)})
		snPts = append(snPts, plotter.XY{X: pt.Offset.Seconds(), Y: float64(pt.SNQueue)})
	}

	if len(nsPts) > 0 {
		nsLine, err := plotter.NewLine(nsPts)
		if err != nil {
			return nil, err
		}
		nsLine.Color = nsColor
		nsLine.Width = vg.Points(1)
		p.Add(nsLine)
		p.Legend.Add("N→S", nsLine)

		snLine, err := plotter.NewLine(snPts)
		if err != nil {
			return nil, err
		}
		snLine.Color = snColor
		snLine.Width = vg.Points(1)
		p.Add(snLine)
		p.Legend.Add("S→N", snLine)
	}

	// switching ticks are always sampled
	offsets := make(map[uint64]float64, len(points))
	for _, pt := range points {
		offsets[pt.Tick] = pt.Offset.Seconds()
	}
	marks := make(plotter.XYs, 0, len(changes))
	for _, ch := range changes {
		if x, ok := offsets[ch.Tick]; ok {
			marks = append(marks, plotter.XY{X: x, Y: 0})
		}
	}
	if len(marks) > 0 {
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return nil, err
		}
		scatter.Color = switchColor
		scatter.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add("switch", scatter)
	}
	return p, nil
}

// WritePNG renders the plot as a PNG image
func (c *Collector) WritePNG(w io.Writer) error {
	p, err := c.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the plot to a file
func (c *Collector) SavePNG(path string) error {
	p, err := c.Plot()
	if err != nil {
		return err
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
