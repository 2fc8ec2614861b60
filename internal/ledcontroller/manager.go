package ledcontroller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// Manager owns the controllers of one multi-module endpoint.
//
// Registrations are spaced by a fixed delay so a burst of modules does not
// flood the shared connection.
//
// Thread Safety: All methods are safe for concurrent use. AddController
// calls are serialised.
type Manager struct {
	handler driver.Handler
	delay   time.Duration

	// addMu serialises registrations, including the pause.
	addMu   sync.Mutex
	lastAdd time.Time

	mu          sync.RWMutex
	controllers []Controller
	logger      Logger
}

// NewManager creates a manager over h.
//
// Parameters:
//   - h: Shared handler for the endpoint
//   - delay: Pause between successive registrations
func NewManager(h driver.Handler, delay time.Duration) *Manager {
	return &Manager{
		handler: h,
		delay:   delay,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

func (m *Manager) getLogger() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Handler returns the shared handler.
func (m *Manager) Handler() driver.Handler {
	return m.handler
}

// Connect connects the handler once. See EnsureConnected.
func (m *Manager) Connect(ctx context.Context, timeout time.Duration) error {
	return EnsureConnected(ctx, m.handler, timeout)
}

// AddController registers a controller for id and reads it once.
//
// The controller is kept even when the first read fails, so the caller can
// expose it with an unknown state. In that case both the controller and the
// update error are returned.
//
// Returns:
//   - Controller: The registered controller
//   - error: ErrControllerExists, ErrUnknownType, ctx.Err() during the
//     pause, or the first Update's *Error
func (m *Manager) AddController(ctx context.Context, family driver.Family, id int) (Controller, error) {
	m.addMu.Lock()
	defer m.addMu.Unlock()

	if _, ok := m.Controller(id); ok {
		return nil, fmt.Errorf("%w: id %d", ErrControllerExists, id)
	}

	if err := m.pause(ctx); err != nil {
		return nil, err
	}

	c, err := NewController(family, m.handler, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.controllers = append(m.controllers, c)
	m.mu.Unlock()

	m.getLogger().Debug("controller registered", "endpoint", m.handler.Endpoint().String(), "type", string(family), "id", id)

	err = c.Update(ctx)
	m.lastAdd = time.Now()
	if err != nil {
		return c, err
	}
	return c, nil
}

// pause waits until delay has passed since the previous registration
// finished its first read.
func (m *Manager) pause(ctx context.Context) error {
	if m.lastAdd.IsZero() || m.delay <= 0 {
		return nil
	}
	wait := m.delay - time.Since(m.lastAdd)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controllers returns the registered controllers in registration order.
func (m *Manager) Controllers() []Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Controller, len(m.controllers))
	copy(out, m.controllers)
	return out
}

// Controller returns the controller registered for id.
func (m *Manager) Controller(id int) (Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.controllers {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}
