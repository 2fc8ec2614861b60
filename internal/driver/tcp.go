package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for controller communication.
const (
	// defaultDialTimeout bounds a single dial when the caller's context has no
	// earlier deadline.
	defaultDialTimeout = 10 * time.Second

	// defaultIOTimeout bounds one request/response exchange.
	defaultIOTimeout = 5 * time.Second

	// maxResponseLine caps a response line.
	maxResponseLine = 256
)

// TCPOptions configures a TCPHandler. Zero values select defaults.
type TCPOptions struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration
	Codec       Codec
	Logger      Logger

	// Dial replaces net.Dialer.DialContext. Tests use it to inject failures.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPFactory returns a Factory building TCPHandlers with opts.
func TCPFactory(opts TCPOptions) Factory {
	return func(ep Endpoint) Handler {
		return NewTCPHandler(ep, opts)
	}
}

// TCPHandler is a Handler over a single TCP connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - ioMu serialises exchanges so request/response pairs never interleave.
type TCPHandler struct {
	ep    Endpoint
	opts  TCPOptions
	codec Codec

	// ioMu is held for a whole exchange, including a re-dial.
	ioMu sync.Mutex

	connMu    sync.RWMutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	everUp    bool

	closed atomic.Bool

	targetsMu sync.Mutex
	targets   []Target

	logger   Logger
	loggerMu sync.RWMutex

	writes       atomic.Uint64
	reads        atomic.Uint64
	errorsTotal  atomic.Uint64
	reconnects   atomic.Uint64
	lastActivity atomic.Int64
}

var _ Handler = (*TCPHandler)(nil)

// NewTCPHandler creates a handler for ep. It does not dial; call Connect.
func NewTCPHandler(ep Endpoint, opts TCPOptions) *TCPHandler {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaultIOTimeout
	}
	if opts.Codec == nil {
		opts.Codec = LineCodec{}
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}

	h := &TCPHandler{
		ep:     ep,
		opts:   opts,
		codec:  opts.Codec,
		logger: noopLogger{},
	}
	if opts.Logger != nil {
		h.logger = opts.Logger
	}
	return h
}

// Endpoint implements Handler.
func (h *TCPHandler) Endpoint() Endpoint {
	return h.ep
}

// Connect dials the controller once.
//
// Parameters:
//   - ctx: Bounds the dial together with DialTimeout
//
// Returns:
//   - error: ErrConnectionFailed wrapping the dial error, ErrInvalidEndpoint,
//     or ErrClosed
func (h *TCPHandler) Connect(ctx context.Context) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := h.ep.Validate(); err != nil {
		return err
	}

	h.ioMu.Lock()
	defer h.ioMu.Unlock()

	if h.Connected() {
		return nil
	}
	return h.dial(ctx)
}

// dial must be called with ioMu held.
func (h *TCPHandler) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, h.opts.DialTimeout)
	defer cancel()

	conn, err := h.opts.Dial(dialCtx, "tcp", h.ep.Address())
	if err != nil {
		h.errorsTotal.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, h.ep, err)
	}

	h.connMu.Lock()
	// Close may have run while the dial was in flight.
	if h.closed.Load() {
		h.connMu.Unlock()
		conn.Close() //nolint:errcheck // Never handed out
		return ErrClosed
	}
	if h.everUp {
		h.reconnects.Add(1)
	}
	h.conn = conn
	h.reader = bufio.NewReaderSize(conn, maxResponseLine)
	h.connected = true
	h.everUp = true
	h.connMu.Unlock()

	h.lastActivity.Store(time.Now().UnixNano())
	h.getLogger().Info("connected to LED controller", "endpoint", h.ep.String())
	return nil
}

// Connected implements Handler.
func (h *TCPHandler) Connected() bool {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.connected
}

// Write sends a brightness write for t and waits for the acknowledgement.
func (h *TCPHandler) Write(ctx context.Context, t Target, u Unit, value int) error {
	if value < 0 || value > u.Max() {
		return fmt.Errorf("%w: %d (%s)", ErrInvalidValue, value, u)
	}

	line, err := h.exchange(ctx, t, h.codec.EncodeWrite(t, u, value))
	if err != nil {
		return err
	}
	if err := h.codec.DecodeAck(line); err != nil {
		h.errorsTotal.Add(1)
		return err
	}
	h.writes.Add(1)
	return nil
}

// Read asks t for its brightness.
func (h *TCPHandler) Read(ctx context.Context, t Target) (uint8, error) {
	line, err := h.exchange(ctx, t, h.codec.EncodeRead(t))
	if err != nil {
		return 0, err
	}
	v, err := h.codec.DecodeBrightness(line)
	if err != nil {
		h.errorsTotal.Add(1)
		return 0, err
	}
	h.reads.Add(1)
	return v, nil
}

// exchange writes req and returns the single response line.
func (h *TCPHandler) exchange(ctx context.Context, t Target, req []byte) (string, error) {
	if h.closed.Load() {
		return "", ErrClosed
	}

	h.ioMu.Lock()
	defer h.ioMu.Unlock()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrIO, ctx.Err())
	default:
	}

	if !h.Connected() {
		h.connMu.RLock()
		everUp := h.everUp
		h.connMu.RUnlock()
		if !everUp {
			return "", ErrNotConnected
		}
		// One re-dial after a drop.
		if err := h.dial(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}

	h.remember(t)

	h.connMu.RLock()
	conn, reader := h.conn, h.reader
	h.connMu.RUnlock()
	if conn == nil {
		// Close does not take ioMu, so it can clear the connection here.
		if h.closed.Load() {
			return "", ErrClosed
		}
		return "", ErrNotConnected
	}

	deadline := time.Now().Add(h.opts.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		h.dropConnection(err)
		return "", fmt.Errorf("%w: set deadline: %w", ErrIO, err)
	}

	if _, err := conn.Write(req); err != nil {
		h.dropConnection(err)
		return "", fmt.Errorf("%w: write %s: %w", ErrIO, t, err)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		h.dropConnection(err)
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("%w: response exceeds %d bytes", ErrMalformedResponse, maxResponseLine)
		}
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, t, err)
	}

	h.lastActivity.Store(time.Now().UnixNano())
	return strings.TrimRight(line, "\r\n"), nil
}

// dropConnection closes the connection after an I/O failure. The response
// stream can no longer be trusted to line up with requests.
func (h *TCPHandler) dropConnection(cause error) {
	h.errorsTotal.Add(1)

	h.connMu.Lock()
	if h.conn != nil {
		h.conn.Close() //nolint:errcheck // Best effort, already failing
	}
	h.conn = nil
	h.reader = nil
	wasConnected := h.connected
	h.connected = false
	h.connMu.Unlock()

	if wasConnected {
		h.getLogger().Warn("connection to LED controller lost", "endpoint", h.ep.String(), "error", cause)
	}
}

func (h *TCPHandler) remember(t Target) {
	h.targetsMu.Lock()
	defer h.targetsMu.Unlock()
	for _, known := range h.targets {
		if known == t {
			return
		}
	}
	h.targets = append(h.targets, t)
}

// Targets implements Handler.
func (h *TCPHandler) Targets() []Target {
	h.targetsMu.Lock()
	defer h.targetsMu.Unlock()
	out := make([]Target, len(h.targets))
	copy(out, h.targets)
	return out
}

// Stats implements Handler.
func (h *TCPHandler) Stats() Stats {
	s := Stats{
		Endpoint:   h.ep.String(),
		Connected:  h.Connected(),
		Writes:     h.writes.Load(),
		Reads:      h.reads.Load(),
		Errors:     h.errorsTotal.Load(),
		Reconnects: h.reconnects.Load(),
		Targets:    len(h.Targets()),
	}
	if ns := h.lastActivity.Load(); ns != 0 {
		s.LastActivity = time.Unix(0, ns)
	}
	return s
}

// Close drops the connection. Safe to call multiple times.
func (h *TCPHandler) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.reader = nil
	h.connected = false
	h.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", h.ep, err)
		}
	}
	return nil
}

// SetLogger sets the logger for this handler.
func (h *TCPHandler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *TCPHandler) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}
