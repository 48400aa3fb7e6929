// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.13
//

// Package report draws the RMS position error of a run against the epoch.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/mkhts/proximum"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoStats = errors.New("no stats to draw")

// series is one RMS sequence with its display name and color
type series struct {
	name   string
	values []float64
	color  color.RGBA
	hex    string
}

func seriesOf(st *proximum.Stats) ([]series, error) {
	if st.Len() == 0 {
		return nil, ErrNoStats
	}
	if len(st.LSRMSError) != st.Len() || len(st.AssertedRMSError) != st.Len() {
		return nil, fmt.Errorf("inconsistent stats lengths: kf=%d ls=%d asserted=%d",
			st.Len(), len(st.LSRMSError), len(st.AssertedRMSError))
	}
	return []series{
		{"Kalman filter", st.KFRMSError, color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, "#1f77b4"},
		{"Least squares", st.LSRMSError, color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}, "#d62728"},
		{"Asserted", st.AssertedRMSError, color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}, "#7f7f7f"},
	}, nil
}

// WritePNG saves a line chart of the three RMS sequences to path.
func WritePNG(st proximum.Stats, path string) error {
	ss, err := seriesOf(&st)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("RMS position error (%d epochs)", st.Len()-1)
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "RMS error (km)"
	p.Add(plotter.NewGrid())

	for _, s := range ss {
		pts := make(plotter.XYs, len(s.values))
		for i, v := range s.values {
			pts[i] = plotter.XY{X: float64(i), Y: v / 1000}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteHTML renders an interactive line chart of the three RMS sequences to w.
func WriteHTML(st proximum.Stats, w io.Writer) error {
	ss, err := seriesOf(&st)
	if err != nil {
		return err
	}

	epochs := make([]int, st.Len())
	for i := range epochs {
		epochs[i] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Proximum RMS error", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "RMS position error", Subtitle: fmt.Sprintf("epochs=%d", st.Len()-1)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Epoch", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RMS error (km)", NameLocation: "middle", NameGap: 50}),
	)
	line.SetXAxis(epochs)
	for _, s := range ss {
		data := make([]opts.LineData, len(s.values))
		for i, v := range s.values {
			data[i] = opts.LineData{Value: v / 1000}
		}
		line.AddSeries(s.name, data, charts.WithItemStyleOpts(opts.ItemStyle{Color: s.hex}))
	}
	return line.Render(w)
}
