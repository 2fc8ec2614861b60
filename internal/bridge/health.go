package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the service version reported in every message.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Topic receives the retained health messages.
	Topic string

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Snapshot returns the counters for a message. Optional.
	Snapshot func() HealthMessage
}

// HealthReporter manages periodic health status reporting.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	topic     string
	publisher HealthPublisher
	snapshot  func() HealthMessage

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	snapshot := cfg.Snapshot
	if snapshot == nil {
		snapshot = func() HealthMessage { return HealthMessage{} }
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		topic:     cfg.Topic,
		publisher: cfg.Publisher,
		snapshot:  snapshot,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	msg := h.snapshot()
	status, reason := determineStatus(h.publisher, msg)
	return h.publish(msg, status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func determineStatus(pub HealthPublisher, msg HealthMessage) (HealthStatus, string) {
	if pub == nil || !pub.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if down := msg.Handlers - msg.Connected; down > 0 {
		return HealthDegraded, fmt.Sprintf("%d of %d controller connections down", down, msg.Handlers)
	}
	if missing := msg.Lights - msg.Available; missing > 0 {
		return HealthDegraded, fmt.Sprintf("%d of %d lights unavailable", missing, msg.Lights)
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	return h.publish(h.snapshot(), status, reason)
}

func (h *HealthReporter) publish(msg HealthMessage, status HealthStatus, reason string) error {
	if h.publisher == nil || h.topic == "" {
		return nil
	}

	msg.Timestamp = time.Now().UTC()
	msg.Status = status
	msg.Version = h.version
	msg.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
