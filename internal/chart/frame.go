package chart

// DefaultMinYSpan is the smallest y range a frame is drawn with. A flat or single-point
// window is widened around its value to this height.
const DefaultMinYSpan = 1.0

// Frame is the drawable range for a view. Unlike Bounds it never has a zero extent.
type Frame struct {
	XLower float64 `json:"x_lower"`
	XUpper float64 `json:"x_upper"`
	YLower float64 `json:"y_lower"`
	YUpper float64 `json:"y_upper"`
}

func (v View) Frame(minYSpan float64) Frame {
	if !(minYSpan > 0) {
		minYSpan = DefaultMinYSpan
	}

	f := Frame{
		XLower: v.Bounds.XLower,
		XUpper: v.Bounds.XUpper,
		YLower: v.Bounds.YLower,
		YUpper: v.Bounds.YUpper,
	}
	if f.YUpper < f.YLower {
		f.YLower, f.YUpper = f.YUpper, f.YLower
	}
	if span := f.YUpper - f.YLower; span < minYSpan {
		mid := f.YLower + span/2
		f.YLower = mid - minYSpan/2
		f.YUpper = mid + minYSpan/2
	}
	if !(f.XUpper > f.XLower) {
		f.XUpper = f.XLower + minYSpan
	}
	return f
}

// Project maps a point into a width x height pixel area with y growing downwards.
func (f Frame) Project(p Point, width, height float64) (px, py float64) {
	px = (p.X - f.XLower) * width / (f.XUpper - f.XLower)
	py = height - (p.Y-f.YLower)*height/(f.YUpper-f.YLower)
	return px, py
}
