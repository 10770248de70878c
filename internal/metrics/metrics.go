package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kennel/internal/events"
)

var (
	ServiceState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kennel_service_state",
		Help: "1 if the service is in the given state",
	}, []string{"service", "state"})

	ServiceHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kennel_service_healthy",
		Help: "1 if the service's health probe currently passes",
	}, []string{"service"})

	ServiceStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kennel_service_starts_total",
		Help: "Process starts per service",
	}, []string{"service"})

	ServiceStopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kennel_service_stops_total",
		Help: "Process terminations per service",
	}, []string{"service"})

	HealthTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kennel_health_transitions_total",
		Help: "Health classification flips per service",
	}, []string{"service", "to"})

	StreamSubscribersActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kennel_stream_subscribers_active",
		Help: "Active output stream subscribers per service and stream",
	}, []string{"service", "stream"})
)

func init() {
	prometheus.MustRegister(
		ServiceState,
		ServiceHealthy,
		ServiceStartsTotal,
		ServiceStopsTotal,
		HealthTransitionsTotal,
		StreamSubscribersActive,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

var allStates = []string{"created", "running", "exited"}

func setServiceState(service, state string) {
	for _, s := range allStates {
		v := float64(0)
		if s == state {
			v = 1
		}
		ServiceState.WithLabelValues(service, s).Set(v)
	}
}

// RegisterEventHandler wires metric updates to the event emitter.
func RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		switch ev.Type {
		case events.ServiceAdded:
			setServiceState(ev.Service, "created")
		case events.ServiceStarted:
			setServiceState(ev.Service, "running")
			ServiceStartsTotal.WithLabelValues(ev.Service).Inc()
		case events.ServiceStopped:
			setServiceState(ev.Service, "exited")
			ServiceHealthy.WithLabelValues(ev.Service).Set(0)
			ServiceStopsTotal.WithLabelValues(ev.Service).Inc()
		case events.ServiceHealthy:
			ServiceHealthy.WithLabelValues(ev.Service).Set(1)
			HealthTransitionsTotal.WithLabelValues(ev.Service, "healthy").Inc()
		case events.ServiceUnhealthy:
			ServiceHealthy.WithLabelValues(ev.Service).Set(0)
			HealthTransitionsTotal.WithLabelValues(ev.Service, "unhealthy").Inc()
		}
	})
}
