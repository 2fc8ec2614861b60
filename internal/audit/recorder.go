package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

const (
	defaultBufferSize = 256
	flushTimeout      = 2 * time.Second
	writeTimeout      = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
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

// Recorder turns host events into activity records. Listen never blocks:
// records are queued and written by Run. When the queue is full the record
// is dropped and counted.
//
// Thread Safety: Listen may be called from any goroutine. Run must be
// called once.
type Recorder struct {
	repo    Repository
	queue   chan AuditLog
	logger  Logger
	dropped atomic.Int64
}

// NewRecorder creates a recorder writing to repo. A bufferSize of zero or
// less uses the default.
func NewRecorder(repo Repository, bufferSize int, logger Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan AuditLog, bufferSize),
		logger: logger,
	}
}

// Listen is a platform.Listener. Only commands and entry transitions are
// recorded; state snapshots already go to the light history.
func (r *Recorder) Listen(ev platform.Event) {
	log, ok := fromEvent(ev)
	if !ok {
		return
	}
	select {
	case r.queue <- log:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("activity log queue full, dropping records")
		}
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued records until ctx is cancelled, then flushes whatever
// is still queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case log := <-r.queue:
			r.write(ctx, log)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case log := <-r.queue:
			r.write(ctx, log)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, log AuditLog) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.repo.Create(wctx, &log); err != nil {
		r.logger.Error("failed to write activity record", "action", log.Action, "entity", log.EntityID, "error", err)
	}
}

func fromEvent(ev platform.Event) (AuditLog, bool) {
	switch {
	case ev.Type == platform.EventCommand && ev.Command != nil:
		c := ev.Command
		log := AuditLog{
			Action:     ActionCommand,
			EntityType: EntityLight,
			EntityID:   c.UniqueID,
			Source:     ev.Source,
			Details: map[string]any{
				"action":      c.Action,
				"duration_ms": c.Duration.Milliseconds(),
			},
			CreatedAt: ev.Time.UTC(),
		}
		if c.Error != "" {
			log.Action = ActionCommandFailed
			log.Details["error"] = c.Error
		}
		return log, true

	case ev.Type == platform.EventEntryChanged && ev.Entry != nil:
		e := ev.Entry
		details := map[string]any{
			"domain": e.Domain,
			"title":  e.Title,
			"state":  string(e.State),
		}
		if e.Reason != "" {
			details["reason"] = e.Reason
		}
		return AuditLog{
			Action:     ActionEntryState,
			EntityType: EntityEntry,
			EntityID:   e.ID,
			Source:     "host",
			Details:    details,
			CreatedAt:  ev.Time.UTC(),
		}, true
	}
	return AuditLog{}, false
}
