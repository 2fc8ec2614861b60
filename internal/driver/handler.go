package driver

import (
	"context"
	"time"
)

// Handler owns the connection to one Endpoint and multiplexes reads and
// writes for every Target behind it.
//
// Implementations serialise exchanges: concurrent callers are handled one
// request/response pair at a time, in lock acquisition order.
type Handler interface {
	// Endpoint returns the endpoint this handler talks to.
	Endpoint() Endpoint

	// Connect dials the endpoint once. It is a no-op when already connected.
	Connect(ctx context.Context) error

	// Connected reports whether a connection is currently held.
	Connected() bool

	// Write sets the brightness of t.
	Write(ctx context.Context, t Target, u Unit, value int) error

	// Read returns the brightness t reports, 0..255.
	Read(ctx context.Context, t Target) (uint8, error)

	// Targets returns every target this handler has exchanged with, in
	// first-use order.
	Targets() []Target

	// Stats returns operational counters.
	Stats() Stats

	// Close drops the connection. Further calls return ErrClosed.
	Close() error
}

// Factory builds a handler for an endpoint. It must not dial.
type Factory func(Endpoint) Handler

// Stats holds handler counters.
type Stats struct {
	Endpoint     string    `json:"endpoint"`
	Connected    bool      `json:"connected"`
	Writes       uint64    `json:"writes"`
	Reads        uint64    `json:"reads"`
	Errors       uint64    `json:"errors"`
	Reconnects   uint64    `json:"reconnects"`
	Targets      int       `json:"targets"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
