package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_InFlightAndPeak(t *testing.T) {
	c := New()

	c.ProbeStarted()
	c.ProbeStarted()
	c.ProbeStarted()
	if c.ActiveProbes() != 3 {
		t.Errorf("active = %d, want 3", c.ActiveProbes())
	}

	c.ProbeDone()
	c.ProbeDone()
	c.ProbeStarted()
	if c.ActiveProbes() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveProbes())
	}
	if c.PeakProbes() != 3 {
		t.Errorf("peak should remain 3, got %d", c.PeakProbes())
	}
	if got := testutil.ToFloat64(c.promActive); got != 2 {
		t.Errorf("prometheus in_flight = %v, want 2", got)
	}
}

func TestCollector_PeakConcurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ProbeStarted()
			c.ProbeDone()
		}()
	}
	wg.Wait()

	if c.ActiveProbes() != 0 {
		t.Errorf("active = %d, want 0", c.ActiveProbes())
	}
	if p := c.PeakProbes(); p < 1 || p > 50 {
		t.Errorf("peak = %d, want 1..50", p)
	}
}

func TestCollector_Results(t *testing.T) {
	c := New()

	c.RecordResult("TCP", "open", true, 2*time.Millisecond)
	c.RecordResult("TCP", "closed", false, time.Millisecond)
	c.RecordResult("UDP", "timeout", false, time.Second)

	if c.TotalProbes() != 3 {
		t.Errorf("total = %d, want 3", c.TotalProbes())
	}
	if got := testutil.ToFloat64(c.promProbes.WithLabelValues("TCP", "open")); got != 1 {
		t.Errorf("TCP/open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.promProbes.WithLabelValues("UDP", "timeout")); got != 1 {
		t.Errorf("UDP/timeout = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.promDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCollector_Anomalies(t *testing.T) {
	c := New()

	c.RecordAnomaly("UDP", "first")
	c.RecordAnomaly("UDP", "second")

	if c.AnomalyCount() != 2 {
		t.Errorf("anomalies = %d, want 2", c.AnomalyCount())
	}
	if got := testutil.ToFloat64(c.promAnomalies.WithLabelValues("UDP")); got != 2 {
		t.Errorf("prometheus anomalies = %v, want 2", got)
	}
	if msg := c.Snapshot().LastErrorMessage; msg != "second" {
		t.Errorf("last error = %q, want %q", msg, "second")
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.ProbeStarted()
	c.RecordResult("TCP", "open", true, time.Millisecond)
	c.RecordResult("UDP", "closed", false, time.Millisecond)

	snap := c.Snapshot()
	if snap.ProbesActive != 1 {
		t.Errorf("snap active = %d", snap.ProbesActive)
	}
	if snap.ProbesTotal != 2 {
		t.Errorf("snap total = %d", snap.ProbesTotal)
	}
	if snap.Reachable != 1 {
		t.Errorf("snap reachable = %d", snap.Reachable)
	}
	if snap.LastError != "" {
		t.Errorf("snap last error = %q, want empty", snap.LastError)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.ProbeStarted()
	c.RecordAnomaly("TCP", "socket: too many open files")

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.ProbesPeak != 1 {
		t.Errorf("JSON peak = %d", snap.ProbesPeak)
	}
	if snap.Anomalies != 1 {
		t.Errorf("JSON anomalies = %d", snap.Anomalies)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.RecordResult("TCP", "open", true, time.Millisecond)
	c.RecordAnomaly("UDP", "boom")

	path := filepath.Join(t.TempDir(), "pscan.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{
		`pscan_probe_total{protocol="TCP",status="open"} 1`,
		`pscan_probe_anomalies_total{protocol="UDP"} 1`,
		"pscan_probe_in_flight 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("textfile missing %q:\n%s", want, body)
		}
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.ProbeStarted()
	c.ProbeDone()
	c.RecordResult("TCP", "open", true, time.Millisecond)
	c.RecordAnomaly("TCP", "test")

	if c.ActiveProbes() != 0 || c.PeakProbes() != 0 || c.TotalProbes() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.AnomalyCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("nil WriteTextfile: %v", err)
	}

	snap := c.Snapshot()
	if snap.ProbesTotal != 0 {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
