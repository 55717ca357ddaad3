package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/packet"
)

func testSample() packet.Sample {
	var s packet.Sample
	s.T1, s.T2 = 1, 2
	for i := range s.Red {
		s.Red[i] = uint16(10 + i)
		s.IR[i] = uint16(20 + i)
	}
	s.BeatAvg = 71
	return s
}

func TestAppendPoints(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, FormatPoints)

	s := testSample()
	points := chart.Transform(s, time.Second, 0, chart.Red)
	n, err := r.Append(points[:], s, time.Second)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != packet.SubSamples {
		t.Fatalf("lines = %d", n)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != packet.SubSamples {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	if lines[0] != "1.000000 :: 10.000000" {
		t.Fatalf("first line = %q", lines[0])
	}

	back, err := ReadPoints(&out)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(back) != packet.SubSamples || back[9].Y != 19 {
		t.Fatalf("read back = %+v", back)
	}
}

func TestAppendVerbose(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, FormatVerbose)

	n, err := r.Append(nil, testSample(), 83300*time.Microsecond)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	want := "T1: 1\nT2: 2\nRed value: 10 11 12 13 14 15 16 17 18 19\nIR Value: 20 21 22 23 24 25 26 27 28 29\nBeat average: 71\nTime: 83300\n\n"
	if out.String() != want {
		t.Fatalf("got %q\nwant %q", out.String(), want)
	}
	if n != 7 {
		t.Fatalf("lines = %d", n)
	}
}

type flakyWriter struct {
	fail bool
	out  bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, errors.New("disk full")
	}
	return w.out.Write(p)
}

func TestAppendRecoversAfterWriteFailure(t *testing.T) {
	w := &flakyWriter{fail: true}
	r := New(w, FormatPoints)
	points := []chart.Point{{X: 1, Y: 2}}

	if _, err := r.Append(points, packet.Sample{}, 0); err == nil {
		t.Fatalf("expected write error")
	}

	w.fail = false
	if _, err := r.Append(points, packet.Sample{}, 0); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if w.out.String() != "1.000000 :: 2.000000\n" {
		t.Fatalf("out = %q", w.out.String())
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	if err := os.WriteFile(path, []byte("0.000000 :: 1.000000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path, FormatPoints)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := r.Append([]chart.Point{{X: 1, Y: 2}}, packet.Sample{}, 0); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0.000000 :: 1.000000\n1.000000 :: 2.000000\n" {
		t.Fatalf("file = %q", data)
	}
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), FormatPoints)
	if err == nil {
		t.Fatalf("expected open error")
	}
}

func TestReadPointsMalformed(t *testing.T) {
	cases := []string{
		"1.0 2.0\n",
		"abc :: 2\n",
		"1 :: xyz\n",
	}
	for _, in := range cases {
		if _, err := ReadPoints(strings.NewReader(in)); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}
