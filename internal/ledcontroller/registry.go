package ledcontroller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry keeps at most one handler per endpoint.
//
// The application owns a single Registry and passes it to every integration
// that needs a handler. Handlers are created lazily by the factory and are
// closed only by Close.
//
// Thread Safety: All methods are safe for concurrent use. ResolveOrCreate
// checks and inserts under one lock.
type Registry struct {
	factory driver.Factory

	mu       sync.RWMutex
	handlers map[driver.Endpoint]driver.Handler
	order    []driver.Endpoint
	closed   bool

	logger Logger
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - factory: Builds a handler for an endpoint. It must not dial.
func NewRegistry(factory driver.Factory) *Registry {
	return &Registry{
		factory:  factory,
		handlers: make(map[driver.Endpoint]driver.Handler),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// ResolveOrCreate returns the handler for ep, creating it on first use.
// Two calls with equal endpoints return the same handler.
//
// Returns:
//   - driver.Handler: Shared handler for ep, not necessarily connected
//   - error: driver.ErrInvalidEndpoint or ErrRegistryClosed
func (r *Registry) ResolveOrCreate(ep driver.Endpoint) (driver.Handler, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	h, ok := r.handlers[ep]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRegistryClosed
	}
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	// Re-check: another setup may have created it between the locks.
	if h, ok := r.handlers[ep]; ok {
		return h, nil
	}

	h = r.factory(ep)
	r.handlers[ep] = h
	r.order = append(r.order, ep)
	r.logger.Debug("created connection handler", "endpoint", ep.String(), "handlers", len(r.handlers))
	return h, nil
}

// Get returns the existing handler for ep.
//
// A KindLookup error means setup did not call ResolveOrCreate first.
// Callers should not retry it.
func (r *Registry) Get(ep driver.Endpoint) (driver.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handlers) == 0 {
		return nil, &Error{Kind: KindLookup, Op: "get handler", Endpoint: ep,
			Err: fmt.Errorf("%w: registry is empty", ErrHandlerNotFound)}
	}
	h, ok := r.handlers[ep]
	if !ok {
		return nil, &Error{Kind: KindLookup, Op: "get handler", Endpoint: ep, Err: ErrHandlerNotFound}
	}
	return h, nil
}

// Handlers returns every handler in creation order.
func (r *Registry) Handlers() []driver.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]driver.Handler, 0, len(r.order))
	for _, ep := range r.order {
		out = append(out, r.handlers[ep])
	}
	return out
}

// Len returns the number of handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Close closes every handler. The registry refuses new handlers afterwards.
// Safe to call multiple times.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handlers := make([]driver.Handler, 0, len(r.order))
	for _, ep := range r.order {
		handlers = append(handlers, r.handlers[ep])
	}
	logger := r.logger
	r.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Info("connection handlers closed", "count", len(handlers))
	return errors.Join(errs...)
}
