package supervise

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// probeTarget runs a local HTTP server whose response status can be flipped
// at runtime, and reports the port it listens on.
func probeTarget(t *testing.T) (port int, code *atomic.Int64) {
	t.Helper()
	code = &atomic.Int64{}
	code.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port, code
}

// healthRecorder collects health transitions.
type healthRecorder struct {
	transitions chan HealthStatus
}

func newHealthRecorder() *healthRecorder {
	return &healthRecorder{transitions: make(chan HealthStatus, 16)}
}

func (r *healthRecorder) OnHealthChange(status HealthStatus) {
	r.transitions <- status
}

func (r *healthRecorder) next(t *testing.T) HealthStatus {
	t.Helper()
	select {
	case s := <-r.transitions:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for health transition")
	}
	return ""
}

func (r *healthRecorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case s := <-r.transitions:
		t.Fatalf("unexpected health transition to %s", s)
	case <-time.After(d):
	}
}

func TestHealthCheckURL(t *testing.T) {
	tests := []struct {
		path string
		port int
		want string
	}{
		{"/healthz", 3000, "http://127.0.0.1:3000/healthz"},
		{"healthz", 3000, "http://127.0.0.1:3000/healthz"},
		{"/", 8080, "http://127.0.0.1:8080/"},
	}
	for _, tt := range tests {
		hc := HealthCheck{Path: tt.path, Port: tt.port}
		if got := hc.URL(); got != tt.want {
			t.Errorf("URL(%q, %d) = %q, want %q", tt.path, tt.port, got, tt.want)
		}
	}
}

func TestHealthTransitionFiresOncePerFlip(t *testing.T) {
	port, _ := probeTarget(t)

	rec := newStopRecorder()
	health := newHealthRecorder()
	hc := &HealthCheck{
		Interval: 50 * time.Millisecond,
		Timeout:  time.Second,
		Retries:  1,
		Path:     "/",
		Port:     port,
	}
	s := New(startCmd(t, "sleep", "10"), rec, hc, health, testLogger())

	// Reachable endpoint: exactly one transition to Healthy, then silence
	// even though probing continues.
	if got := health.next(t); got != Healthy {
		t.Errorf("first transition = %s, want healthy", got)
	}
	health.none(t, 300*time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	// Probing halts after stop.
	health.none(t, 300*time.Millisecond)
}

func TestHealthFlipsToUnhealthyOnFailure(t *testing.T) {
	port, code := probeTarget(t)

	rec := newStopRecorder()
	health := newHealthRecorder()
	hc := &HealthCheck{
		Interval: 50 * time.Millisecond,
		Timeout:  time.Second,
		Retries:  1,
		Path:     "/",
		Port:     port,
	}
	s := New(startCmd(t, "sleep", "10"), rec, hc, health, testLogger())
	defer func() {
		_ = s.Stop()
		_ = s.Wait()
	}()

	if got := health.next(t); got != Healthy {
		t.Fatalf("first transition = %s, want healthy", got)
	}

	code.Store(http.StatusInternalServerError)
	if got := health.next(t); got != Unhealthy {
		t.Errorf("second transition = %s, want unhealthy", got)
	}
}

func TestHealthRetriesDelayUnhealthy(t *testing.T) {
	port, code := probeTarget(t)

	rec := newStopRecorder()
	health := newHealthRecorder()
	hc := &HealthCheck{
		Interval: 100 * time.Millisecond,
		Timeout:  time.Second,
		Retries:  5,
		Path:     "/",
		Port:     port,
	}
	s := New(startCmd(t, "sleep", "10"), rec, hc, health, testLogger())
	defer func() {
		_ = s.Stop()
		_ = s.Wait()
	}()

	if got := health.next(t); got != Healthy {
		t.Fatalf("first transition = %s, want healthy", got)
	}

	// The first failing probes are below the retry threshold: the earliest
	// legal flip is five intervals after the last success, so this window
	// must stay silent.
	code.Store(http.StatusInternalServerError)
	health.none(t, 250*time.Millisecond)

	if got := health.next(t); got != Unhealthy {
		t.Errorf("transition = %s, want unhealthy after retries exhausted", got)
	}
}

func TestProbingEndsOnNaturalExit(t *testing.T) {
	port, _ := probeTarget(t)

	rec := newStopRecorder()
	health := newHealthRecorder()
	hc := &HealthCheck{
		Interval: 50 * time.Millisecond,
		Timeout:  time.Second,
		Retries:  1,
		Path:     "/",
		Port:     port,
	}
	s := New(startCmd(t, "sh", "-c", "exit 0"), rec, hc, health, testLogger())

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	// Without an explicit Stop, Wait must still return once the process ends.
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after natural exit")
	}
}

func TestUnreachableEndpointStaysUnhealthy(t *testing.T) {
	rec := newStopRecorder()
	health := newHealthRecorder()
	hc := &HealthCheck{
		Interval: 50 * time.Millisecond,
		Timeout:  200 * time.Millisecond,
		Retries:  1,
		Path:     "/",
		Port:     1, // nothing listens here
	}
	s := New(startCmd(t, "sleep", "10"), rec, hc, health, testLogger())
	defer func() {
		_ = s.Stop()
		_ = s.Wait()
	}()

	// Initial assumption is already Unhealthy: no transition may fire.
	health.none(t, 300*time.Millisecond)
}
