package recorder

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sleepywoodpecker/ppg-scope/internal/chart"
)

// ReadPoints parses a log written with FormatPoints.
func ReadPoints(r io.Reader) ([]chart.Point, error) {
	var points []chart.Point

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		xs, ys, ok := strings.Cut(line, "::")
		if !ok {
			return nil, fmt.Errorf("[recorder] line %d: missing separator: %q", lineNo, line)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("[recorder] line %d: bad x: %w", lineNo, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("[recorder] line %d: bad y: %w", lineNo, err)
		}
		points = append(points, chart.Point{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return points, nil
}
