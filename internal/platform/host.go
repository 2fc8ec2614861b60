package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 30 * time.Second

	// setupConcurrency bounds entries set up in parallel at Start.
	setupConcurrency = 4

	pruneInterval = time.Hour
)

// Logger defines the logging interface used by the host.
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

// RetryPolicy controls host-side setup retries for not-ready entries.
// Zero fields select backoff defaults; zero MaxElapsed retries forever.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()
	return b
}

// Options configures a Host.
type Options struct {
	// Entries persists config entries. Required.
	Entries EntryRepository

	// History records state changes. Optional.
	History HistoryRepository

	// HistoryRetention prunes older history hourly. Zero keeps everything.
	HistoryRetention time.Duration

	// PollInterval is the refresh period for loaded lights.
	PollInterval time.Duration

	SetupRetry RetryPolicy
	Logger     Logger
}

// Host runs integrations: it owns config entries, sets them up with retry,
// keeps light snapshots current by polling, and fans out events.
//
// Thread Safety: All methods are safe for concurrent use. Setup and unload
// of the same entry are serialised.
type Host struct {
	opts   Options
	logger Logger

	// createMu serialises the duplicate check and insert of CreateEntry.
	createMu sync.Mutex

	mu           sync.RWMutex
	integrations map[string]Integration
	entries      map[string]*entryRuntime
	lights       map[string]*lightRuntime
	started      bool
	stopped      bool

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

type entryRuntime struct {
	// opMu serialises setup, retry and unload of this entry.
	opMu sync.Mutex

	// entry is guarded by Host.mu.
	entry       Entry
	lights      []string
	cancelRetry context.CancelFunc
}

type lightRuntime struct {
	light   Light
	entryID string
	domain  string
	state   LightState // guarded by Host.mu
}

// NewHost creates a host. Register integrations, then call Start.
func NewHost(opts Options) *Host {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		opts:         opts,
		logger:       logger,
		integrations: make(map[string]Integration),
		entries:      make(map[string]*entryRuntime),
		lights:       make(map[string]*lightRuntime),
		listeners:    make(map[uint64]Listener),
		runCtx:       ctx,
		runCancel:    cancel,
	}
}

// RegisterIntegration makes an integration available to entries.
func (h *Host) RegisterIntegration(i Integration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.integrations[i.Domain()]; ok {
		return fmt.Errorf("%w: %s", ErrIntegrationExists, i.Domain())
	}
	h.integrations[i.Domain()] = i
	return nil
}

// Domains returns registered integration domains, sorted.
func (h *Host) Domains() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.integrations))
	for d := range h.integrations {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Start loads persisted entries, sets them up concurrently and starts polling.
// Setup failures are reflected in entry state, not returned.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrHostStopped
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	entries, err := h.opts.Entries.List(ctx)
	if err != nil {
		return fmt.Errorf("loading config entries: %w", err)
	}

	h.mu.Lock()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := h.entries[e.ID]; ok {
			continue
		}
		e.State = EntryNotLoaded
		h.entries[e.ID] = &entryRuntime{entry: e}
		ids = append(ids, e.ID)
	}
	h.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(setupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := h.SetupEntry(ctx, id); err != nil {
				h.logger.Debug("entry setup deferred", "entry", id, "error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-entry errors are reflected in entry state

	h.wg.Add(1)
	go h.pollLoop()

	if h.opts.History != nil && h.opts.HistoryRetention > 0 {
		h.wg.Add(1)
		go h.pruneLoop()
	}

	h.logger.Info("host started", "entries", len(ids), "lights", len(h.States()))
	return nil
}

// Stop cancels retries and polling, then unloads every entry.
// Safe to call multiple times.
func (h *Host) Stop(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		ids := make([]string, 0, len(h.entries))
		for id := range h.entries {
			ids = append(ids, id)
		}
		h.mu.Unlock()

		h.runCancel()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for host goroutines: %w", ctx.Err())
			return
		}

		var errs []error
		for _, id := range ids {
			if uerr := h.UnloadEntry(ctx, id); uerr != nil {
				errs = append(errs, uerr)
			}
		}
		err = errors.Join(errs...)
		h.logger.Info("host stopped")
	})
	return err
}

// CreateEntry validates config flow input, persists a new entry and sets
// it up. Setup failures are reflected in the returned entry's State.
// Input whose lights are already configured is refused with
// FieldErrors{"base": ReasonAlreadyConfigured} and nothing is persisted.
//
// Returns:
//   - Entry: The entry after its first setup attempt
//   - error: ErrIntegrationNotFound, FieldErrors, or a persistence error
func (h *Host) CreateEntry(ctx context.Context, domain string, input map[string]any) (Entry, error) {
	h.mu.RLock()
	integ, ok := h.integrations[domain]
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return Entry{}, ErrHostStopped
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, domain)
	}

	title, data, err := integ.ValidateInput(input)
	if err != nil {
		return Entry{}, err
	}

	now := time.Now().UTC()
	e := Entry{
		ID:        uuid.NewString(),
		Domain:    domain,
		Title:     title,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
		State:     EntryNotLoaded,
	}

	h.createMu.Lock()
	if uid, taken := h.configuredLight(integ, &e); taken {
		h.createMu.Unlock()
		h.logger.Info("config entry rejected, light already configured", "domain", domain, "light", uid)
		return Entry{}, FieldErrors{"base": ReasonAlreadyConfigured}
	}
	if err := h.opts.Entries.Create(ctx, &e); err != nil {
		h.createMu.Unlock()
		return Entry{}, fmt.Errorf("persisting entry: %w", err)
	}
	h.mu.Lock()
	h.entries[e.ID] = &entryRuntime{entry: e}
	h.mu.Unlock()
	h.createMu.Unlock()
	h.logger.Info("config entry created", "entry", e.ID, "domain", domain, "title", title)

	if err := h.SetupEntry(ctx, e.ID); err != nil {
		h.logger.Warn("config entry setup failed", "entry", e.ID, "error", err)
	}
	return h.Entry(e.ID)
}

// configuredLight reports the first light of e that is already loaded or
// claimed by an existing entry. Integrations that do not implement
// LightIDer are never refused here; addLight still skips duplicates.
func (h *Host) configuredLight(integ Integration, e *Entry) (string, bool) {
	ider, ok := integ.(LightIDer)
	if !ok {
		return "", false
	}
	want, err := ider.LightIDs(e)
	if err != nil || len(want) == 0 {
		return "", false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	claimed := make(map[string]struct{}, len(h.lights))
	for uid := range h.lights {
		claimed[uid] = struct{}{}
	}
	for _, rt := range h.entries {
		other, ok := h.integrations[rt.entry.Domain].(LightIDer)
		if !ok {
			continue
		}
		ids, err := other.LightIDs(&rt.entry)
		if err != nil {
			continue
		}
		for _, uid := range ids {
			claimed[uid] = struct{}{}
		}
	}
	for _, uid := range want {
		if _, taken := claimed[uid]; taken {
			return uid, true
		}
	}
	return "", false
}

// SetupEntry sets up a not-loaded entry. A not-ready failure schedules a
// retry with exponential backoff; other failures leave it in setup_error.
func (h *Host) SetupEntry(ctx context.Context, id string) error {
	rt, integ, err := h.entryAndIntegration(id)
	if errors.Is(err, ErrIntegrationNotFound) {
		h.setEntryState(rt, EntrySetupError, err.Error())
		return err
	}
	if err != nil {
		return err
	}

	rt.opMu.Lock()
	defer rt.opMu.Unlock()

	h.mu.RLock()
	state, stopped := rt.entry.State, h.stopped
	h.mu.RUnlock()
	if stopped {
		return ErrHostStopped
	}
	if state == EntryLoaded {
		return nil
	}

	h.stopRetry(rt)
	err = h.setup(ctx, rt, integ)
	if errors.Is(err, ErrNotReady) {
		h.scheduleRetry(rt, integ)
	}
	return err
}

// setup must be called with rt.opMu held.
func (h *Host) setup(ctx context.Context, rt *entryRuntime, integ Integration) error {
	h.setEntryState(rt, EntrySetupInProgress, "")

	h.mu.RLock()
	entry := rt.entry.clone()
	h.mu.RUnlock()

	type pending struct {
		light        Light
		updateBefore bool
	}
	var added []pending
	add := func(lights []Light, updateBeforeAdd bool) {
		for _, l := range lights {
			added = append(added, pending{l, updateBeforeAdd})
		}
	}

	if err := integ.SetupEntry(ctx, &entry, add); err != nil {
		state := EntrySetupError
		if errors.Is(err, ErrNotReady) {
			state = EntrySetupRetry
		}
		h.setEntryState(rt, state, err.Error())
		h.logger.Warn("config entry setup failed", "entry", entry.ID, "domain", entry.Domain,
			"state", string(state), "error", err)
		return err
	}

	h.mu.Lock()
	rt.entry.RuntimeData = entry.RuntimeData
	h.mu.Unlock()

	for _, p := range added {
		var updErr error
		if p.updateBefore {
			updErr = p.light.Update(ctx)
		}
		h.addLight(rt, p.light, updErr)
	}

	h.setEntryState(rt, EntryLoaded, "")
	h.logger.Info("config entry loaded", "entry", entry.ID, "domain", entry.Domain, "lights", len(added))
	return nil
}

// scheduleRetry must be called with rt.opMu held.
func (h *Host) scheduleRetry(rt *entryRuntime, integ Integration) {
	ctx, cancel := context.WithCancel(h.runCtx)
	h.mu.Lock()
	rt.cancelRetry = cancel
	h.mu.Unlock()

	h.mu.RLock()
	id := rt.entry.ID
	h.mu.RUnlock()

	h.wg.Add(1)
	go h.retryLoop(ctx, id, rt, integ, h.opts.SetupRetry.newBackOff())
}

func (h *Host) retryLoop(ctx context.Context, id string, rt *entryRuntime, integ Integration, b backoff.BackOff) {
	defer h.wg.Done()

	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			rt.opMu.Lock()
			if ctx.Err() == nil {
				h.mu.RLock()
				reason := rt.entry.Reason
				h.mu.RUnlock()
				h.setEntryState(rt, EntrySetupError, "giving up: "+reason)
			}
			rt.opMu.Unlock()
			return
		}

		h.logger.Debug("entry setup retry scheduled", "entry", id, "in", wait.String())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		rt.opMu.Lock()
		if ctx.Err() != nil {
			rt.opMu.Unlock()
			return
		}
		err := h.setup(ctx, rt, integ)
		rt.opMu.Unlock()

		if !errors.Is(err, ErrNotReady) {
			return
		}
	}
}

// stopRetry must be called with rt.opMu held.
func (h *Host) stopRetry(rt *entryRuntime) {
	h.mu.Lock()
	cancel := rt.cancelRetry
	rt.cancelRetry = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// UnloadEntry removes an entry's lights and stops its retries. The entry
// stays configured and can be set up again.
func (h *Host) UnloadEntry(ctx context.Context, id string) error {
	rt, integ, err := h.entryAndIntegration(id)
	if err != nil && !errors.Is(err, ErrIntegrationNotFound) {
		return err
	}

	rt.opMu.Lock()
	defer rt.opMu.Unlock()

	h.stopRetry(rt)

	h.mu.Lock()
	wasLoaded := rt.entry.State == EntryLoaded
	entry := rt.entry
	removed := rt.lights
	rt.lights = nil
	for _, uid := range removed {
		delete(h.lights, uid)
	}
	h.mu.Unlock()

	for _, uid := range removed {
		h.emit(Event{Type: EventLightRemoved, State: &LightState{UniqueID: uid, EntryID: id}})
	}

	var unloadErr error
	if wasLoaded && integ != nil {
		unloadErr = integ.UnloadEntry(ctx, &entry)
	}

	h.mu.Lock()
	rt.entry.RuntimeData = nil
	h.mu.Unlock()
	h.setEntryState(rt, EntryNotLoaded, "")

	if unloadErr != nil {
		return fmt.Errorf("unloading entry %s: %w", id, unloadErr)
	}
	return nil
}

// ReloadEntry unloads and sets up an entry again.
func (h *Host) ReloadEntry(ctx context.Context, id string) error {
	if err := h.UnloadEntry(ctx, id); err != nil {
		return err
	}
	return h.SetupEntry(ctx, id)
}

// RemoveEntry unloads an entry and deletes it from storage.
func (h *Host) RemoveEntry(ctx context.Context, id string) error {
	if err := h.UnloadEntry(ctx, id); err != nil && !errors.Is(err, ErrEntryNotFound) {
		return err
	}
	if err := h.opts.Entries.Delete(ctx, id); err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.entries, id)
	h.mu.Unlock()
	h.logger.Info("config entry removed", "entry", id)
	return nil
}

// Entries returns all entries ordered by creation time.
func (h *Host) Entries() []Entry {
	h.mu.RLock()
	out := make([]Entry, 0, len(h.entries))
	for _, rt := range h.entries {
		out = append(out, rt.entry.clone())
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Entry returns one entry.
func (h *Host) Entry(id string) (Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rt, ok := h.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return rt.entry.clone(), nil
}

func (h *Host) entryAndIntegration(id string) (*entryRuntime, Integration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rt, ok := h.entries[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	integ, ok := h.integrations[rt.entry.Domain]
	if !ok {
		return rt, nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, rt.entry.Domain)
	}
	return rt, integ, nil
}

func (h *Host) setEntryState(rt *entryRuntime, state EntryState, reason string) {
	h.mu.Lock()
	rt.entry.State = state
	rt.entry.Reason = reason
	snapshot := rt.entry.clone()
	h.mu.Unlock()

	h.emit(Event{Type: EventEntryChanged, Entry: &snapshot})
}
