package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func startTestServer(t *testing.T, reg *prometheus.Registry) *Server {
	t.Helper()
	var s *Server
	if reg != nil {
		s = NewServerWithRegistry(":0", reg)
	} else {
		s = NewServer(":0")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServerBindsEphemeralPort(t *testing.T) {
	s := startTestServer(t, nil)
	if addr := s.Addr(); strings.HasSuffix(addr, ":0") || !strings.Contains(addr, ":") {
		t.Errorf("Addr() = %q, want a resolved host:port", addr)
	}
}

func TestServerServesPauseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPauseMetricsWithRegistry(reg)
	m.RecordPause(4, 1, 16*1024*1024)

	s := startTestServer(t, reg)

	status, body := get(t, "http://"+s.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	for _, metric := range []string{
		"regia_pause_pauses_total",
		"regia_pause_regions_freed_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	s := startTestServer(t, prometheus.NewRegistry())
	if status, _ := get(t, "http://"+s.Addr()+"/healthz"); status != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", status, http.StatusOK)
	}
}

func TestServerCloseStopsServing(t *testing.T) {
	s := startTestServer(t, nil)
	addr := s.Addr()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/metrics"); err == nil {
		t.Error("expected connection error after Close")
	}
}

func TestServerCloseWithoutStart(t *testing.T) {
	if err := NewServer(":0").Close(); err != nil {
		t.Errorf("Close on unstarted server: %v", err)
	}
}
