package chart

import (
	"fmt"
	"strings"
	"time"

	"sleepywoodpecker/ppg-scope/internal/packet"
)

// SubSampleInterval is the spacing between sub-samples of one packet, in seconds.
const SubSampleInterval = 1.0 / 120.0

type Channel int32

const (
	Red Channel = iota
	IR
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case IR:
		return "ir"
	default:
		return fmt.Sprintf("channel(%d)", int32(c))
	}
}

func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r":
		return Red, nil
	case "ir", "infrared":
		return IR, nil
	}
	return Red, fmt.Errorf("unknown channel %q (want red or ir)", s)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Transform(sample packet.Sample, capturedAt, sessionStart time.Duration, ch Channel) [packet.SubSamples]Point {
	var points [packet.SubSamples]Point
	base := (capturedAt - sessionStart).Seconds()

	values := &sample.Red
	if ch == IR {
		values = &sample.IR
	}

	for i := range points {
		points[i] = Point{
			X: base + float64(i)*SubSampleInterval,
			Y: float64(values[i]),
		}
	}
	return points
}
