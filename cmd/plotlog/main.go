// plotlog renders a recorded "x :: y" session log to an image.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/recorder"
)

func main() {
	out := flag.String("o", "recording.png", "output image (format from extension)")
	title := flag.String("title", "PPG recording", "plot title")
	from := flag.Float64("from", 0, "first second to draw")
	to := flag.Float64("to", 0, "last second to draw (0 draws to the end)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: plotlog [-o out.png] [-from s] [-to s] <recording>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *out, *title, *from, *to); err != nil {
		log.Fatalf("plotlog: %v\n", err)
	}
}

func run(in, out, title string, from, to float64) error {
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("could not open [%s]: %w", in, err)
	}
	defer f.Close()

	points, err := recorder.ReadPoints(f)
	if err != nil {
		return err
	}
	xys := toXYs(points, from, to)
	if len(xys) == 0 {
		return fmt.Errorf("no points in [%s] between %vs and %vs", in, from, to)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Intensity"
	p.Add(plotter.NewGrid())

	if err := plotutil.AddLines(p, "signal", xys); err != nil {
		return fmt.Errorf("error adding lines: %w", err)
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, out)
}

func toXYs(points []chart.Point, from, to float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		if pt.X < from || (to > 0 && pt.X > to) {
			continue
		}
		xys = append(xys, plotter.XY{X: pt.X, Y: pt.Y})
	}
	return xys
}
