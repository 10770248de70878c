package service

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"kennel/internal/events"
)

// Registry holds the set of known services, keyed by generated identifier.
type Registry struct {
	mu       sync.RWMutex
	services map[uuid.UUID]*Service
	emitter  *events.Emitter
	logger   *slog.Logger
}

// Entry pairs a service snapshot with its registry identifier.
type Entry struct {
	ID uuid.UUID `json:"id"`
	Info
}

// NewRegistry creates an empty registry.
func NewRegistry(emitter *events.Emitter, logger *slog.Logger) *Registry {
	return &Registry{
		services: make(map[uuid.UUID]*Service),
		emitter:  emitter,
		logger:   logger.With("component", "service-registry"),
	}
}

// Insert adds a service and returns its generated identifier.
func (r *Registry) Insert(svc *Service) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.services[id] = svc
	r.logger.Info("service registered", "id", id, "service", svc.Name())
	r.emitter.Emit(events.Event{Type: events.ServiceAdded, Service: svc.Name()})
	return id
}

// Fetch returns the service for the given identifier.
func (r *Registry) Fetch(id uuid.UUID) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	return svc, ok
}

// Remove drops a service from the registry. The caller is responsible for
// stopping it first; removal does not terminate a running process.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.services[id]; ok {
		delete(r.services, id)
		r.logger.Info("service removed", "id", id, "service", svc.Name())
		r.emitter.Emit(events.Event{Type: events.ServiceRemoved, Service: svc.Name()})
	}
}

// List returns a snapshot of all registered services.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.services))
	for id, svc := range r.services {
		result = append(result, Entry{ID: id, Info: svc.Info()})
	}
	return result
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// StopAll stops every running service and waits for its supervisor to wind
// down. Services that are not running are skipped.
func (r *Registry) StopAll() {
	r.mu.RLock()
	services := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, svc)
	}
	r.mu.RUnlock()

	for _, svc := range services {
		if err := svc.Stop(); err != nil {
			if !errors.Is(err, ErrNotRunning) {
				r.logger.Warn("failed to stop service", "service", svc.Name(), "error", err)
			}
			continue
		}
		if err := svc.Wait(); err != nil {
			r.logger.Warn("service supervisor ended with error", "service", svc.Name(), "error", err)
		}
	}
}
