package ledcontroller

import (
	"context"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// EnsureConnected connects h exactly once.
//
// A Connect error, or a Connect that returns nil while h.Connected() is
// still false, yields a KindNotReady *Error naming the endpoint. Already
// connected handlers are left alone.
//
// Parameters:
//   - ctx: Cancellation for the attempt
//   - h: Handler to connect
//   - timeout: Upper bound for the attempt; zero means ctx alone bounds it
func EnsureConnected(ctx context.Context, h driver.Handler, timeout time.Duration) error {
	if h.Connected() {
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ep := h.Endpoint()
	if err := h.Connect(ctx); err != nil {
		return &Error{Kind: KindNotReady, Op: "connect", Endpoint: ep, Err: err}
	}
	if !h.Connected() {
		return &Error{Kind: KindNotReady, Op: "connect", Endpoint: ep, Err: ErrNotConnected}
	}
	return nil
}

// SetupHandler resolves the shared handler for ep and connects it.
//
// Returns the handler even when connecting fails, so callers can log its
// stats; the error is then KindNotReady.
func SetupHandler(ctx context.Context, r *Registry, ep driver.Endpoint, timeout time.Duration) (driver.Handler, error) {
	if _, err := r.ResolveOrCreate(ep); err != nil {
		return nil, &Error{Kind: KindNotReady, Op: "resolve handler", Endpoint: ep, Err: err}
	}
	h, err := r.Get(ep)
	if err != nil {
		return nil, err
	}
	return h, EnsureConnected(ctx, h, timeout)
}
