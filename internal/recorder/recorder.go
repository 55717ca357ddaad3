package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/packet"
)

type Format int

const (
	// FormatPoints writes one "x :: y" line per sub-sample.
	FormatPoints Format = iota
	// FormatVerbose writes every packet field as one record.
	FormatVerbose
)

func (f Format) String() string {
	if f == FormatVerbose {
		return "verbose"
	}
	return "points"
}

type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	out    io.Writer
	writer *bufio.Writer
	format Format
	Path   string
}

// Open opens path for appending, creating it if needed. It is called once per recording session.
func Open(path string, format Format) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("[recorder] open %s: %w", path, err)
	}

	r := New(file, format)
	r.file = file
	r.Path = path
	return r, nil
}

// New wraps an already opened stream. Close flushes but leaves w open.
func New(w io.Writer, format Format) *Recorder {
	return &Recorder{
		out:    w,
		writer: bufio.NewWriter(w),
		format: format,
	}
}

// Append writes one packet and flushes it, returning how many lines reached the stream.
func (r *Recorder) Append(points []chart.Point, sample packet.Sample, capturedAt time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var message string
	var lines int
	switch r.format {
	case FormatVerbose:
		message = formatVerbose(sample, capturedAt)
		lines = strings.Count(message, "\n")
	default:
		var b strings.Builder
		for _, p := range points {
			fmt.Fprintf(&b, "%f :: %f\n", p.X, p.Y)
		}
		message = b.String()
		lines = len(points)
	}

	// a failed bufio.Writer stays failed; reset it so the next packet gets a fresh attempt
	if _, err := r.writer.WriteString(message); err != nil {
		r.writer.Reset(r.out)
		return 0, fmt.Errorf("[recorder] write: %w", err)
	}
	if err := r.writer.Flush(); err != nil {
		r.writer.Reset(r.out)
		return 0, fmt.Errorf("[recorder] flush: %w", err)
	}
	return lines, nil
}

func formatVerbose(s packet.Sample, capturedAt time.Duration) string {
	join := func(values [packet.SubSamples]uint16) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%d", v)
		}
		return strings.Join(parts, " ")
	}

	return fmt.Sprintf(
		"T1: %d\nT2: %d\nRed value: %s\nIR Value: %s\nBeat average: %d\nTime: %d\n\n",
		s.T1,
		s.T2,
		join(s.Red),
		join(s.IR),
		s.BeatAvg,
		capturedAt.Microseconds(),
	)
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Flush()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.writer.Flush()
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}
