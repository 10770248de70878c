package supervise

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthStatus classifies the result of probing a service's health endpoint.
// It is independent of process liveness.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthListener is notified whenever the probed classification changes.
type HealthListener interface {
	OnHealthChange(status HealthStatus)
}

// HealthFunc adapts a function to the HealthListener interface.
type HealthFunc func(HealthStatus)

func (f HealthFunc) OnHealthChange(status HealthStatus) { f(status) }

// HealthCheck configures periodic probing of a local HTTP endpoint.
type HealthCheck struct {
	// Interval between probes.
	Interval time.Duration
	// Timeout for a single probe request; exceeding it counts as a failure.
	Timeout time.Duration
	// Retries is the number of consecutive failures required before the
	// classification flips to Unhealthy. Minimum 1.
	Retries int
	// Path of the endpoint, with or without a leading slash.
	Path string
	// Port the service listens on; probes target 127.0.0.1.
	Port int
}

// URL returns the probe target.
func (hc HealthCheck) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/%s", hc.Port, strings.TrimPrefix(hc.Path, "/"))
}

// probeLoop probes the endpoint on its own timer until the stop signal
// arrives. The initial assumption is Unhealthy; the listener fires only
// when the classification changes, never once per probe.
func (s *Supervisor) probeLoop(hc HealthCheck, onHealth HealthListener) error {
	if hc.Retries < 1 {
		hc.Retries = 1
	}
	client := &http.Client{Timeout: hc.Timeout}
	url := hc.URL()

	status := Unhealthy
	failures := 0

	ticker := time.NewTicker(hc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("stop requested, ending health checks")
			return nil

		case <-s.exitedCh:
			s.logger.Info("process ended, ending health checks")
			return nil

		case <-ticker.C:
			next := status
			if probe(client, url) {
				failures = 0
				next = Healthy
			} else {
				failures++
				if failures >= hc.Retries {
					next = Unhealthy
				}
			}

			if next != status {
				status = next
				s.logger.Info("health changed", "status", string(status), "url", url)
				if onHealth != nil {
					onHealth.OnHealthChange(status)
				}
			}
		}
	}
}

// probe reports whether the endpoint answered with a 2xx or 3xx status
// within the client timeout. Network failures and timeouts count as
// unhealthy, not as hard errors.
func probe(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
