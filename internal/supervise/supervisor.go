// Package supervise owns the lifecycle of a spawned child process: it
// watches for natural exit, honors external stop requests, optionally
// probes an HTTP health endpoint, and delivers exactly one terminal
// notification per run.
package supervise

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStopped is returned by Stop when a stop was already requested.
var ErrAlreadyStopped = errors.New("supervisor already stopped")

// ExitStatus describes how a supervised process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was terminated by a
	// signal.
	Code int
	// Killed reports whether the process ended by signal rather than by
	// exiting on its own.
	Killed bool
}

// StopListener is notified exactly once when the supervised process ends,
// whether it exited on its own or was stopped.
type StopListener interface {
	OnStop(status ExitStatus)
}

// StopFunc adapts a function to the StopListener interface.
type StopFunc func(ExitStatus)

func (f StopFunc) OnStop(status ExitStatus) { f(status) }

// Supervisor coordinates a monitor goroutine and an optional health-check
// goroutine around one running child process. It is valid for a single run;
// each new process gets a new Supervisor.
type Supervisor struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	// exitedCh is closed by the monitor once the process has ended, so the
	// health goroutine winds down even when Stop is never called.
	exitedCh chan struct{}
	tasks    *errgroup.Group
}

// New creates a supervisor around an already-started command. onStop is
// invoked exactly once with the process's exit status. If hc is non-nil a
// health-check goroutine probes the configured endpoint and notifies
// onHealth whenever the classification flips; onHealth may be nil to probe
// without notification.
func New(cmd *exec.Cmd, onStop StopListener, hc *HealthCheck, onHealth HealthListener, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		cmd:      cmd,
		logger:   logger.With("component", "supervisor"),
		stopCh:   make(chan struct{}),
		exitedCh: make(chan struct{}),
		tasks:    &errgroup.Group{},
	}

	// The blocking Wait syscall lives on its own goroutine; it finishes as
	// soon as the child ends, whether naturally or after a kill.
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	s.tasks.Go(func() error {
		return s.monitor(onStop, waitCh)
	})
	if hc != nil {
		s.tasks.Go(func() error {
			return s.probeLoop(*hc, onHealth)
		})
	}
	return s
}

// monitor resolves the race between an external stop request and a natural
// exit; the two outcomes are mutually exclusive and the listener fires once
// either way.
func (s *Supervisor) monitor(onStop StopListener, waitCh <-chan error) error {
	defer close(s.exitedCh)

	select {
	case err := <-waitCh:
		status := s.exitStatus(err)
		s.logger.Info("process exited", "code", status.Code, "killed", status.Killed)
		onStop.OnStop(status)
		return nil

	case <-s.stopCh:
		var killErr error
		if err := s.cmd.Process.Kill(); err != nil {
			// Best effort: the process may have raced us to exit.
			killErr = fmt.Errorf("kill process: %w", err)
			s.logger.Warn("failed to kill process", "error", err)
		}
		err := <-waitCh
		status := s.exitStatus(err)
		status.Killed = true
		s.logger.Info("process stopped", "code", status.Code)
		onStop.OnStop(status)
		return killErr
	}
}

// exitStatus derives an ExitStatus from the Wait result. I/O errors from
// Wait are logged and folded into a best-effort status.
func (s *Supervisor) exitStatus(waitErr error) ExitStatus {
	state := s.cmd.ProcessState
	if state == nil {
		if waitErr != nil {
			s.logger.Warn("wait failed without process state", "error", waitErr)
		}
		return ExitStatus{Code: -1, Killed: true}
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			s.logger.Warn("wait failed", "error", waitErr)
		}
	}
	return ExitStatus{
		Code:   state.ExitCode(),
		Killed: !state.Exited(),
	}
}

// Stop requests termination of the supervised process. The first call sends
// the stop signal to the monitor and health goroutines; subsequent calls
// return ErrAlreadyStopped.
func (s *Supervisor) Stop() error {
	stopped := false
	s.stopOnce.Do(func() {
		close(s.stopCh)
		stopped = true
	})
	if !stopped {
		return ErrAlreadyStopped
	}
	return nil
}

// Wait blocks until the monitor and health-check goroutines have fully
// terminated, returning the first task error, if any.
func (s *Supervisor) Wait() error {
	return s.tasks.Wait()
}
