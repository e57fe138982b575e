package system

import (
	"context"
	"fmt"
	"sync"
)

// Manager starts registered services in registration order and stops them in
// reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a service. Fails on duplicate names or after Start.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	for _, existing := range m.services {
		if existing.Name() == svc.Name() {
			return fmt.Errorf("service %s already registered", svc.Name())
		}
	}
	m.services = append(m.services, svc)
	return nil
}

// Start starts all services. On failure, already-started services are stopped
// in reverse order before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("manager already started")
	}

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.services[j].Stop(ctx)
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	m.started = true
	return nil
}

// Stop stops all services in reverse registration order, returning the first
// error encountered after attempting every stop.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}

	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", m.services[i].Name(), err)
		}
	}
	m.started = false
	return firstErr
}

// NoopService satisfies Service for components without lifecycle needs.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                    { return n.ServiceName }
func (n NoopService) Start(ctx context.Context) error { return nil }
func (n NoopService) Stop(ctx context.Context) error  { return nil }
