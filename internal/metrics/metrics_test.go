package metrics

import (
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kennel/internal/events"
)

func TestHandlerNonNil(t *testing.T) {
	if Handler() == nil {
		t.Error("expected non-nil handler")
	}
}

func TestRegisterEventHandlerUpdatesMetrics(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	emitter := events.NewEmitter(logger)
	RegisterEventHandler(emitter)

	emitter.Emit(events.Event{Type: events.ServiceAdded, Service: "m1"})
	if got := testutil.ToFloat64(ServiceState.WithLabelValues("m1", "created")); got != 1 {
		t.Errorf("created gauge = %v, want 1", got)
	}

	emitter.Emit(events.Event{Type: events.ServiceStarted, Service: "m1"})
	if got := testutil.ToFloat64(ServiceState.WithLabelValues("m1", "running")); got != 1 {
		t.Errorf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ServiceState.WithLabelValues("m1", "created")); got != 0 {
		t.Errorf("created gauge = %v, want 0 after start", got)
	}
	if got := testutil.ToFloat64(ServiceStartsTotal.WithLabelValues("m1")); got != 1 {
		t.Errorf("starts counter = %v, want 1", got)
	}

	emitter.Emit(events.Event{Type: events.ServiceHealthy, Service: "m1"})
	if got := testutil.ToFloat64(ServiceHealthy.WithLabelValues("m1")); got != 1 {
		t.Errorf("healthy gauge = %v, want 1", got)
	}

	emitter.Emit(events.Event{Type: events.ServiceStopped, Service: "m1"})
	if got := testutil.ToFloat64(ServiceState.WithLabelValues("m1", "exited")); got != 1 {
		t.Errorf("exited gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ServiceHealthy.WithLabelValues("m1")); got != 0 {
		t.Errorf("healthy gauge = %v, want 0 after stop", got)
	}
}
