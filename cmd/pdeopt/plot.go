package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pdekit/pdeopt/optimize"
)

// writeHistoryPlot renders the stationarity norm of every outer
// iteration on a log scale.
func writeHistoryPlot(path string, history []optimize.IterRecord) error {

	pts := make(plotter.XYs, 0, len(history))
	for i, rec := range history {
		if rec.GradientNorm > 0 {
			pts = append(pts, plotter.XY{X: float64(i), Y: rec.GradientNorm})
		}
	}

	p := plot.New()
	p.Title.Text = "Convergence history"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "|proj g|"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line, plotter.NewGrid())

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
