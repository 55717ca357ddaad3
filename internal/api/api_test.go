package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/device"
	"sleepywoodpecker/ppg-scope/internal/pipeline"
	"sleepywoodpecker/ppg-scope/internal/recorder"
)

func newTestServer(t *testing.T, recordPath string) *httptest.Server {
	t.Helper()
	opts := pipeline.Options{
		Loop: pipeline.LoopConfig{
			ServiceID:        device.SimulatedServiceID,
			CharacteristicID: device.SimulatedCharacteristicID,
			PollInterval:     time.Millisecond,
		},
		Interval:     10,
		YUpper:       5000,
		RecordPath:   recordPath,
		RecordFormat: recorder.FormatPoints,
	}
	logger := zaptest.NewLogger(t)
	manager := pipeline.NewManager(device.NewSimulator(72), opts, logger)
	ts := httptest.NewServer(NewServer(manager, chart.DefaultMinYSpan, time.Second, logger).NewRouter())
	t.Cleanup(func() {
		ts.Close()
		_ = manager.Stop(context.Background())
	})
	return ts
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "rec.txt"))
	if resp := do(t, "GET", ts.URL+"/health"); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNoSessionYet(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "rec.txt"))

	if resp := do(t, "GET", ts.URL+"/session"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("session status = %d", resp.StatusCode)
	}
	resp := do(t, "GET", ts.URL+"/window")
	window := decode[map[string]any](t, resp)
	if window["state"] != "empty" {
		t.Fatalf("window = %v", window)
	}
	if resp := do(t, "GET", ts.URL+"/window.png"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("png status = %d", resp.StatusCode)
	}
}

func TestPlotRecordAndStop(t *testing.T) {
	recordPath := filepath.Join(t.TempDir(), "rec.txt")
	ts := newTestServer(t, recordPath)

	resp := do(t, "POST", ts.URL+"/session/plot")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plot status = %d", resp.StatusCode)
	}
	status := decode[pipeline.Status](t, resp)
	if !status.Plotting || status.State != "running" {
		t.Fatalf("status = %+v", status)
	}

	resp = do(t, "POST", ts.URL+"/session/record")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record status = %d", resp.StatusCode)
	}
	if again := decode[pipeline.Status](t, resp); again.ID != status.ID || !again.Recording {
		t.Fatalf("record status = %+v", again)
	}

	deadline := time.Now().Add(5 * time.Second)
	var window WindowResponse
	for len(window.Points) < 20 {
		if time.Now().After(deadline) {
			t.Fatalf("window never filled: %+v", window)
		}
		time.Sleep(20 * time.Millisecond)
		window = decode[WindowResponse](t, do(t, "GET", ts.URL+"/window"))
	}
	if window.State != "filling" || window.Bounds.XUpper != 10 {
		t.Fatalf("window = %+v", window)
	}
	if !(window.Frame.YUpper > window.Frame.YLower) {
		t.Fatalf("frame = %+v", window.Frame)
	}

	resp = do(t, "GET", ts.URL+"/window.png?width=320&height=200")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("png status = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = do(t, "POST", ts.URL+"/session/stop")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	stopped := decode[pipeline.Status](t, resp)
	if stopped.State != "stopped" || stopped.Counters.Released != stopped.Counters.Packets {
		t.Fatalf("stopped = %+v", stopped)
	}

	data, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(bytes.Count(data, []byte("\n"))) != stopped.Counters.LinesRecorded {
		t.Fatalf("file has %d lines, counters say %d", bytes.Count(data, []byte("\n")), stopped.Counters.LinesRecorded)
	}

	resp = do(t, "POST", ts.URL+"/session/plot")
	if next := decode[pipeline.Status](t, resp); next.ID == status.ID {
		t.Fatalf("expected a new session after stop")
	}
}

func TestRecordRefused(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "missing", "rec.txt"))

	resp := do(t, "POST", ts.URL+"/session/record")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	session := decode[pipeline.Status](t, do(t, "GET", ts.URL+"/session"))
	if session.State != "idle" || session.Recording {
		t.Fatalf("session = %+v", session)
	}
}

func TestSetChannel(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "rec.txt"))

	if resp := do(t, "PUT", ts.URL+"/session/channel/ir"); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp := do(t, "PUT", ts.URL+"/session/channel/green"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	status := decode[pipeline.Status](t, do(t, "POST", ts.URL+"/session/plot"))
	if status.Channel != "ir" {
		t.Fatalf("channel = %s", status.Channel)
	}
}

func TestWindowPNGRejectsBadSize(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "rec.txt"))
	do(t, "POST", ts.URL+"/session/plot")

	if resp := do(t, "GET", ts.URL+"/window.png?width=-1"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
