package ledcontroller

import (
	"context"
	"fmt"
	"sync"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// fakeHandler is an in-memory driver.Handler with scriptable failures.
type fakeHandler struct {
	ep driver.Endpoint

	mu         sync.Mutex
	connected  bool
	closed     bool
	connects   int
	connectErr []error // consumed one per Connect call
	silentDown bool    // Connect returns nil but stays disconnected
	blockDial  bool    // Connect waits for ctx

	values   map[driver.Target]uint8
	writeErr error
	readErr  error
	maxValue uint8 // clamp written values when non-zero
	calls    []string
}

func newFakeHandler(ep driver.Endpoint) *fakeHandler {
	return &fakeHandler{ep: ep, values: make(map[driver.Target]uint8)}
}

func connectedFake(ep driver.Endpoint) *fakeHandler {
	h := newFakeHandler(ep)
	h.connected = true
	return h
}

func (h *fakeHandler) Endpoint() driver.Endpoint { return h.ep }

func (h *fakeHandler) Connect(ctx context.Context) error {
	h.mu.Lock()
	h.connects++
	block := h.blockDial
	var err error
	if len(h.connectErr) > 0 {
		err, h.connectErr = h.connectErr[0], h.connectErr[1:]
	}
	h.mu.Unlock()

	if block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", driver.ErrConnectionFailed, ctx.Err())
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.silentDown {
		h.connected = true
	}
	return nil
}

func (h *fakeHandler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandler) Write(_ context.Context, t driver.Target, u driver.Unit, value int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, fmt.Sprintf("write %s %s %d", t, u, value))
	if h.writeErr != nil {
		return h.writeErr
	}
	if value < 0 || value > u.Max() {
		return driver.ErrInvalidValue
	}
	if u == driver.UnitPercent {
		value = (value*255 + 50) / 100
	}
	v := uint8(value)
	if h.maxValue != 0 && v > h.maxValue {
		v = h.maxValue
	}
	h.values[t] = v
	return nil
}

func (h *fakeHandler) Read(_ context.Context, t driver.Target) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, fmt.Sprintf("read %s", t))
	if h.readErr != nil {
		return 0, h.readErr
	}
	v, ok := h.values[t]
	if !ok {
		return 0, driver.ErrNoData
	}
	return v, nil
}

func (h *fakeHandler) Targets() []driver.Target { return nil }

func (h *fakeHandler) Stats() driver.Stats {
	return driver.Stats{Endpoint: h.ep.String(), Connected: h.Connected()}
}

func (h *fakeHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.connected = false
	return nil
}

func (h *fakeHandler) set(t driver.Target, v uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[t] = v
}

func (h *fakeHandler) setReadErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErr = err
}

func (h *fakeHandler) history() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

func (h *fakeHandler) connectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects
}

func (h *fakeHandler) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeFactory records every handler it builds.
type fakeFactory struct {
	mu    sync.Mutex
	built []*fakeHandler
}

func (f *fakeFactory) build(ep driver.Endpoint) driver.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := newFakeHandler(ep)
	f.built = append(f.built, h)
	return h
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}
