// Package service composes the per-process building blocks: one immutable
// description, two output broadcasters that live for the whole service
// lifetime, and a fresh supervisor per run.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"kennel/internal/config"
	"kennel/internal/events"
	"kennel/internal/stream"
	"kennel/internal/supervise"
)

// Status describes the lifecycle state of a service.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

var (
	// ErrNotRunning is returned by Stop when no process is active.
	ErrNotRunning = errors.New("service not running")
	// ErrAlreadyRunning is returned by Start when a process is active.
	ErrAlreadyRunning = errors.New("service already running")
)

// Description is the immutable configuration of a service.
type Description struct {
	Name        string
	Cmd         string
	Args        []string
	Env         map[string]string
	Port        int
	Echo        bool
	HealthCheck *config.HealthCheck
}

// DescriptionFromConfig builds a Description; the command defaults to the
// service name.
func DescriptionFromConfig(sc config.Service) Description {
	cmd := sc.Cmd
	if cmd == "" {
		cmd = sc.Name
	}
	return Description{
		Name:        sc.Name,
		Cmd:         cmd,
		Args:        sc.Args,
		Env:         sc.Env,
		Port:        sc.Port,
		Echo:        sc.Echo,
		HealthCheck: sc.HealthCheck,
	}
}

// Info is a JSON-ready snapshot of a service's state.
type Info struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Health   string `json:"health"`
	Port     int    `json:"port,omitempty"`
	PID      int    `json:"pid,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// Service is one supervised process with replayed stdout/stderr fan-out.
// The broadcasters persist across runs, so output history accumulates for
// the whole service lifetime; the supervisor is replaced on every Start.
type Service struct {
	desc    Description
	emitter *events.Emitter
	logger  *slog.Logger

	stdout *stream.Broadcaster
	stderr *stream.Broadcaster

	mu       sync.Mutex
	status   Status
	health   supervise.HealthStatus
	sup      *supervise.Supervisor
	pid      int
	exitCode *int
}

// New creates a service in the created state. No process is spawned.
func New(desc Description, emitter *events.Emitter, logger *slog.Logger) *Service {
	logger = logger.With("service", desc.Name)

	var outOpts, errOpts []stream.Option
	if desc.Echo {
		outOpts = append(outOpts, stream.WithMirror(os.Stdout))
		errOpts = append(errOpts, stream.WithMirror(os.Stderr))
	}

	return &Service{
		desc:    desc,
		emitter: emitter,
		logger:  logger,
		stdout:  stream.NewBroadcaster(logger.With("stream", "stdout"), outOpts...),
		stderr:  stream.NewBroadcaster(logger.With("stream", "stderr"), errOpts...),
		status:  StatusCreated,
		health:  supervise.Unhealthy,
	}
}

// Description returns the immutable service description.
func (s *Service) Description() Description {
	return s.desc
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.desc.Name
}

// Stdout returns the stdout broadcaster.
func (s *Service) Stdout() *stream.Broadcaster {
	return s.stdout
}

// Stderr returns the stderr broadcaster.
func (s *Service) Stderr() *stream.Broadcaster {
	return s.stderr
}

// Status returns the current lifecycle status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Health returns the last probed health classification.
func (s *Service) Health() supervise.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Info returns a snapshot for external inspection.
func (s *Service) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Name:   s.desc.Name,
		Status: s.status,
		Health: string(s.health),
		Port:   s.desc.Port,
	}
	if s.status == StatusRunning {
		info.PID = s.pid
	}
	info.ExitCode = s.exitCode
	return info
}

// Start spawns the configured command with piped stdout/stderr, re-points
// both broadcasters at the new pipes, and supervises the child. A spawn
// failure leaves the service in its prior state.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusRunning {
		return fmt.Errorf("start service %q: %w", s.desc.Name, ErrAlreadyRunning)
	}

	cmd := exec.Command(s.desc.Cmd, s.desc.Args...)
	cmd.Env = os.Environ()
	for k, v := range s.desc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// The pipes are owned here, not by exec: cmd.Wait (run by the
	// supervisor) closes pipes created via StdoutPipe/StderrPipe as soon as
	// the child exits, which would cut off the readers before they drain a
	// fast-exiting child's buffered output.
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("start service %q: stdout pipe: %w", s.desc.Name, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return fmt.Errorf("start service %q: stderr pipe: %w", s.desc.Name, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return fmt.Errorf("start service %q: %w", s.desc.Name, err)
	}

	// The child holds its own copies of the write ends; closing ours means
	// the readers see EOF exactly when the child's output is exhausted.
	outW.Close()
	errW.Close()

	s.stdout.Watch(outR)
	s.stderr.Watch(errR)

	var hc *supervise.HealthCheck
	if c := s.desc.HealthCheck; c != nil {
		hc = &supervise.HealthCheck{
			Interval: c.Interval,
			Timeout:  c.Timeout,
			Retries:  c.Retries,
			Path:     c.Path,
			Port:     s.desc.Port,
		}
	}

	s.sup = supervise.New(cmd, supervise.StopFunc(s.onStop), hc, supervise.HealthFunc(s.onHealthChange), s.logger)
	s.status = StatusRunning
	s.health = supervise.Unhealthy
	s.pid = cmd.Process.Pid
	s.exitCode = nil

	s.logger.Info("service started", "pid", s.pid, "cmd", s.desc.Cmd)
	s.emitter.Emit(events.Event{
		Type:    events.ServiceStarted,
		Service: s.desc.Name,
		Fields:  map[string]string{"pid": strconv.Itoa(s.pid)},
	})
	return nil
}

// Stop requests termination of the current run. Safe to call when nothing
// is running; that case reports ErrNotRunning instead of panicking.
func (s *Service) Stop() error {
	s.mu.Lock()
	sup := s.sup
	running := s.status == StatusRunning
	s.mu.Unlock()

	if sup == nil || !running {
		return fmt.Errorf("stop service %q: %w", s.desc.Name, ErrNotRunning)
	}
	if err := sup.Stop(); err != nil && !errors.Is(err, supervise.ErrAlreadyStopped) {
		return fmt.Errorf("stop service %q: %w", s.desc.Name, err)
	}
	return nil
}

// Wait blocks until the current run's supervisor tasks have terminated.
// Waiting on a service that never started returns nil.
func (s *Service) Wait() error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()

	if sup == nil {
		return nil
	}
	return sup.Wait()
}

// Close shuts down both broadcasters. Call after the last run has ended.
func (s *Service) Close() {
	s.stdout.Close()
	s.stderr.Close()
}

// onStop runs on the supervisor's monitor goroutine, exactly once per run.
func (s *Service) onStop(status supervise.ExitStatus) {
	s.mu.Lock()
	s.status = StatusExited
	s.health = supervise.Unhealthy
	code := status.Code
	s.exitCode = &code
	s.mu.Unlock()

	s.emitter.Emit(events.Event{
		Type:    events.ServiceStopped,
		Service: s.desc.Name,
		Fields: map[string]string{
			"exit_code": strconv.Itoa(status.Code),
			"killed":    strconv.FormatBool(status.Killed),
		},
	})
}

// onHealthChange runs on the supervisor's health goroutine, only when the
// probed classification flips.
func (s *Service) onHealthChange(h supervise.HealthStatus) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()

	evType := events.ServiceUnhealthy
	if h == supervise.Healthy {
		evType = events.ServiceHealthy
	}
	s.emitter.Emit(events.Event{Type: evType, Service: s.desc.Name})
}
