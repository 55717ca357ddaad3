package chart

import (
	"errors"
	"fmt"
	"io"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrEmptyWindow = errors.New("[chart] window has no points")

const (
	DefaultWidth  = 1000
	DefaultHeight = 400
)

type RenderOptions struct {
	Title    string
	Width    int
	Height   int
	MinYSpan float64
}

func lineStyle(col drawing.Color) gochart.Style {
	return gochart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
	}
}

// RenderPNG draws the visible window of v. The committed bounds are used as the axis ranges so
// the picture matches what Frame reports to pull-based clients.
func RenderPNG(w io.Writer, v View, opts RenderOptions) error {
	if len(v.Points) == 0 {
		return ErrEmptyWindow
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Title == "" {
		opts.Title = "PPG Signal"
	}

	frame := v.Frame(opts.MinYSpan)

	xs := make([]float64, len(v.Points))
	ys := make([]float64, len(v.Points))
	for i, p := range v.Points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	// a single point cannot make a line; repeat it so the series still validates
	if len(xs) == 1 {
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 30, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: gochart.XAxis{
			Name:  "Time [s]",
			Range: &gochart.ContinuousRange{Min: frame.XLower, Max: frame.XUpper},
		},
		YAxis: gochart.YAxis{
			Name:  "PPG signal",
			Range: &gochart.ContinuousRange{Min: frame.YLower, Max: frame.YUpper},
		},
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				Name:    "ppg",
				XValues: xs,
				YValues: ys,
				Style:   lineStyle(drawing.ColorRed),
			},
		},
	}

	if err := graph.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("[chart] render png: %w", err)
	}
	return nil
}
