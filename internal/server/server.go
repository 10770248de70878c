// Package server is the HTTP boundary over the service registry: JSON
// inspection and lifecycle control, plus WebSocket output streaming.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"kennel/internal/config"
	"kennel/internal/events"
	"kennel/internal/metrics"
	"kennel/internal/service"
)

// Server exposes the service registry over HTTP.
type Server struct {
	registry *service.Registry
	emitter  *events.Emitter
	defaults config.Defaults
	logger   *slog.Logger
}

// New creates a server around the given registry.
func New(registry *service.Registry, emitter *events.Emitter, defaults config.Defaults, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		emitter:  emitter,
		defaults: defaults,
		logger:   logger.With("component", "server"),
	}
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /services", s.handleList)
	mux.HandleFunc("POST /services", s.handleCreate)
	mux.HandleFunc("POST /services/{id}/start", s.handleStart)
	mux.HandleFunc("POST /services/{id}/stop", s.handleStop)
	mux.HandleFunc("DELETE /services/{id}", s.handleRemove)
	mux.HandleFunc("GET /services/{id}/stdout", s.handleStdout)
	mux.HandleFunc("GET /services/{id}/stderr", s.handleStderr)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// CreateServiceRequest is the JSON body for POST /services.
type CreateServiceRequest struct {
	Name        string             `json:"name"`
	Cmd         string             `json:"cmd,omitempty"`
	Args        []string           `json:"args,omitempty"`
	Env         map[string]string  `json:"env,omitempty"`
	Port        int                `json:"port,omitempty"`
	Echo        bool               `json:"echo,omitempty"`
	HealthCheck *HealthCheckParams `json:"health_check,omitempty"`
}

// Duration decodes either a duration string ("5s", "250ms") or an integer
// nanosecond count, so API clients are not forced into nanosecond math.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or nanoseconds")
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// HealthCheckParams configures probing for a dynamically created service.
type HealthCheckParams struct {
	Interval Duration `json:"interval,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
	Retries  int      `json:"retries,omitempty"`
	Path     string   `json:"path,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.HealthCheck != nil && req.Port == 0 {
		writeError(w, http.StatusBadRequest, "health check requires a port")
		return
	}

	desc := service.Description{
		Name: req.Name,
		Cmd:  req.Cmd,
		Args: req.Args,
		Env:  req.Env,
		Port: req.Port,
		Echo: req.Echo,
	}
	if desc.Cmd == "" {
		desc.Cmd = desc.Name
	}
	if hc := req.HealthCheck; hc != nil {
		desc.HealthCheck = s.healthCheckConfig(hc)
	}

	svc := service.New(desc, s.emitter, s.logger)
	id := s.registry.Insert(svc)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

// healthCheckConfig fills missing probe parameters from the daemon defaults.
func (s *Server) healthCheckConfig(hc *HealthCheckParams) *config.HealthCheck {
	out := &config.HealthCheck{
		Interval: time.Duration(hc.Interval),
		Timeout:  time.Duration(hc.Timeout),
		Retries:  hc.Retries,
		Path:     hc.Path,
	}
	if out.Interval == 0 {
		out.Interval = s.defaults.HealthCheckInterval
	}
	if out.Timeout == 0 {
		out.Timeout = s.defaults.HealthCheckTimeout
	}
	if out.Retries < 1 {
		out.Retries = 1
	}
	if out.Path == "" {
		out.Path = "/"
	}
	return out
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := svc.Start(); err != nil {
		if errors.Is(err, service.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to start service", "service", svc.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Info())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := svc.Stop(); err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to stop service", "service", svc.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Info())
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	svc, found := s.registry.Fetch(id)
	if !found {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}
	if svc.Status() == service.StatusRunning {
		writeError(w, http.StatusConflict, "service is running, stop it first")
		return
	}
	svc.Close()
	s.registry.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the {id} path segment to a service, writing the error
// response itself when the id is malformed or unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*service.Service, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	svc, found := s.registry.Fetch(id)
	if !found {
		writeError(w, http.StatusNotFound, "service not found")
		return nil, false
	}
	return svc, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return uuid.UUID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
