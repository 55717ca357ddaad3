package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"sleepywoodpecker/ppg-scope/internal/chart"
)

func TestToXYsRange(t *testing.T) {
	points := []chart.Point{{X: 0, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 3}, {X: 3, Y: 4}}

	if got := toXYs(points, 0, 0); len(got) != 4 {
		t.Fatalf("full range = %d points", len(got))
	}
	got := toXYs(points, 1, 2)
	if len(got) != 2 || got[0].X != 1 || got[1].Y != 3 {
		t.Fatalf("window = %v", got)
	}
}

func TestRunWritesPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rec.txt")
	body := "0.000000 :: 2000.000000\n0.008333 :: 2100.000000\n0.016667 :: 2050.000000\n"
	if err := os.WriteFile(in, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "rec.png")
	if err := run(in, out, "test", 0, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("output is not a png")
	}

	if err := run(in, out, "test", 5, 6); err == nil {
		t.Fatalf("expected error for empty range")
	}
}
