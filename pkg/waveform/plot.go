// Package waveform renders analysis results to image files.
package waveform

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderTransient plots the named traces of a transient result against
// TIME and saves to path (format from the extension: .png, .svg,
// .pdf). An empty name list plots every node voltage.
func RenderTransient(results map[string][]float64, names []string, title, path string) error {
	times, ok := results["TIME"]
	if !ok {
		return fmt.Errorf("waveform: no TIME axis in results")
	}

	if len(names) == 0 {
		names = defaultTraces(results, "V(")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Legend.Top = true

	for _, name := range names {
		values, ok := results[name]
		if !ok {
			return fmt.Errorf("waveform: no trace %s in results", name)
		}
		line, err := plotter.NewLine(xyPoints(times, values))
		if err != nil {
			return fmt.Errorf("waveform: %v", err)
		}
		p.Add(line)
		p.Legend.Add(name, line)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// RenderAC plots magnitude traces against FREQ on a log axis.
func RenderAC(results map[string][]float64, names []string, title, path string) error {
	freqs, ok := results["FREQ"]
	if !ok {
		return fmt.Errorf("waveform: no FREQ axis in results")
	}

	if len(names) == 0 {
		for name := range results {
			if strings.HasPrefix(name, "V(") && strings.HasSuffix(name, "_MAG") {
				names = append(names, name)
			}
		}
		sort.Strings(names)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "frequency (Hz)"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Legend.Top = true

	for _, name := range names {
		values, ok := results[name]
		if !ok {
			return fmt.Errorf("waveform: no trace %s in results", name)
		}
		line, err := plotter.NewLine(xyPoints(freqs, values))
		if err != nil {
			return fmt.Errorf("waveform: %v", err)
		}
		p.Add(line)
		p.Legend.Add(name, line)
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func defaultTraces(results map[string][]float64, prefix string) []string {
	var names []string
	for name := range results {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func xyPoints(xs, ys []float64) plotter.XYs {
	n := min(len(xs), len(ys))
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return pts
}
