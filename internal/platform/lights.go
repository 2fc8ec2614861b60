package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// pollConcurrency bounds lights refreshed in parallel per poll. Lights on
// one endpoint still serialise on their shared handler.
const pollConcurrency = 8

// States returns snapshots of every loaded light, ordered by unique ID.
func (h *Host) States() []LightState {
	h.mu.RLock()
	out := make([]LightState, 0, len(h.lights))
	for _, lr := range h.lights {
		out = append(out, lr.state)
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b LightState) int { return strings.Compare(a.UniqueID, b.UniqueID) })
	return out
}

// State returns the snapshot of one light.
func (h *Host) State(uniqueID string) (LightState, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	lr, ok := h.lights[uniqueID]
	if !ok {
		return LightState{}, fmt.Errorf("%w: %s", ErrEntityNotFound, uniqueID)
	}
	return lr.state, nil
}

// TurnOn turns a light on at brightness (full when nil).
//
// A failed read-back after a successful write is recorded on the snapshot
// as update_failed and does not fail the call.
//
// Returns:
//   - error: ErrEntityNotFound or ErrCommandFailed
func (h *Host) TurnOn(ctx context.Context, uniqueID string, brightness *uint8) error {
	lr, err := h.light(uniqueID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = lr.light.TurnOn(ctx, brightness)
	return h.afterCommand(lr, "turn_on", time.Since(start), err)
}

// TurnOff turns a light off.
func (h *Host) TurnOff(ctx context.Context, uniqueID string) error {
	lr, err := h.light(uniqueID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = lr.light.TurnOff(ctx)
	return h.afterCommand(lr, "turn_off", time.Since(start), err)
}

func (h *Host) afterCommand(lr *lightRuntime, action string, d time.Duration, err error) error {
	uid := lr.light.UniqueID()
	result := CommandResult{UniqueID: uid, Action: action, Duration: d}
	if err != nil {
		result.Error = err.Error()
	}
	h.emit(Event{Type: EventCommand, Source: SourceCommand, Command: &result})

	if errors.Is(err, ErrCommandFailed) {
		h.logger.Warn("light command failed", "light", uid, "action", action, "error", err)
		return err
	}
	if err != nil {
		h.logger.Warn("light read-back failed", "light", uid, "action", action, "error", err)
	}
	h.observe(lr, err, SourceCommand)
	return nil
}

// Refresh reads one light now.
//
// Returns:
//   - error: ErrEntityNotFound or ErrUpdateFailed
func (h *Host) Refresh(ctx context.Context, uniqueID string) error {
	lr, err := h.light(uniqueID)
	if err != nil {
		return err
	}
	return h.refresh(ctx, lr, SourceRefresh)
}

// PollOnce refreshes every loaded light.
func (h *Host) PollOnce(ctx context.Context) {
	h.mu.RLock()
	lights := make([]*lightRuntime, 0, len(h.lights))
	for _, lr := range h.lights {
		lights = append(lights, lr)
	}
	h.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(pollConcurrency)
	for _, lr := range lights {
		g.Go(func() error {
			h.refresh(ctx, lr, SourcePoll) //nolint:errcheck // recorded on the snapshot
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never fail
}

// History returns recorded state changes for a light, newest first.
func (h *Host) History(ctx context.Context, uniqueID string, limit int) ([]HistoryRecord, error) {
	if h.opts.History == nil {
		return []HistoryRecord{}, nil
	}
	return h.opts.History.List(ctx, uniqueID, limit)
}

func (h *Host) refresh(ctx context.Context, lr *lightRuntime, source string) error {
	err := lr.light.Update(ctx)
	if err != nil {
		h.logger.Debug("light update failed", "light", lr.light.UniqueID(), "error", err)
	}
	h.observe(lr, err, source)
	return err
}

func (h *Host) light(uniqueID string) (*lightRuntime, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	lr, ok := h.lights[uniqueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, uniqueID)
	}
	return lr, nil
}

// snapshot reads lr's light into a LightState.
//
// A failed update keeps the last known brightness and flags update_failed.
// The light stays available unless it has never been read.
func (h *Host) snapshot(lr *lightRuntime, updErr error) LightState {
	s := StateOf(lr.light)
	s.EntryID = lr.entryID
	s.Domain = lr.domain
	s.LastUpdated = time.Now()
	if updErr != nil {
		s.UpdateFailed = true
		s.LastError = updErr.Error()
	}
	return s
}

// addLight registers a light for rt. Duplicate unique IDs are skipped.
func (h *Host) addLight(rt *entryRuntime, l Light, updErr error) {
	uid := l.UniqueID()

	h.mu.Lock()
	if _, dup := h.lights[uid]; dup {
		h.mu.Unlock()
		h.logger.Warn("light unique id already registered, skipping", "light", uid, "entry", rt.entry.ID)
		return
	}
	lr := &lightRuntime{light: l, entryID: rt.entry.ID, domain: rt.entry.Domain}
	lr.state = h.snapshot(lr, updErr)
	h.lights[uid] = lr
	rt.lights = append(rt.lights, uid)
	state := lr.state
	h.mu.Unlock()

	h.publish(state, SourceSetup)
}

// observe records a new snapshot and publishes it if the reading changed.
func (h *Host) observe(lr *lightRuntime, updErr error, source string) {
	next := h.snapshot(lr, updErr)

	h.mu.Lock()
	current, ok := h.lights[next.UniqueID]
	if !ok || current != lr {
		// Unloaded meanwhile.
		h.mu.Unlock()
		return
	}
	prev := lr.state
	lr.state = next
	h.mu.Unlock()

	if !next.sameReading(prev) {
		h.publish(next, source)
	}
}

func (h *Host) publish(s LightState, source string) {
	if h.opts.History != nil {
		ctx, cancel := context.WithTimeout(h.runCtx, 5*time.Second)
		if err := h.opts.History.Record(ctx, s, source); err != nil {
			h.logger.Warn("recording light state history failed", "light", s.UniqueID, "error", err)
		}
		cancel()
	}
	h.emit(Event{Type: EventStateChanged, Source: source, State: &s})
}

func (h *Host) pollLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.runCtx.Done():
			return
		case <-ticker.C:
			h.PollOnce(h.runCtx)
		}
	}
}

func (h *Host) pruneLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.runCtx.Done():
			return
		case <-ticker.C:
			n, err := h.opts.History.Prune(h.runCtx, h.opts.HistoryRetention)
			if err != nil {
				h.logger.Warn("pruning light state history failed", "error", err)
				continue
			}
			if n > 0 {
				h.logger.Debug("pruned light state history", "rows", n)
			}
		}
	}
}
