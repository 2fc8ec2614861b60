package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/mqtt"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// Bridge operation constants.
const (
	// defaultCommandTimeout bounds one command including its read-back.
	defaultCommandTimeout = 10 * time.Second

	// eventBuffer is how many host events may queue before new ones are
	// dropped. Retained state is republished on the next change.
	eventBuffer = 256

	// commandBuffer is how many commands may wait per light before new
	// ones are refused.
	commandBuffer = 16

	defaultQoS = 1
)

// Publisher is the subset of the MQTT client the bridge uses.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// LightHost is the subset of the platform host the bridge drives.
// *platform.Host satisfies it.
type LightHost interface {
	States() []platform.LightState
	TurnOn(ctx context.Context, uniqueID string, brightness *uint8) error
	TurnOff(ctx context.Context, uniqueID string) error
}

// HandlerSource lists controller connections for health reports.
// *ledcontroller.Registry satisfies it.
type HandlerSource interface {
	Handlers() []driver.Handler
}

// Logger defines the logging interface used by the bridge.
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

// Options holds configuration for creating a bridge.
type Options struct {
	// Publisher is the MQTT client. Required.
	Publisher Publisher

	// Host receives commands and provides light snapshots. Required.
	Host LightHost

	// Handlers is optional; without it health reports omit connection counts.
	Handlers HandlerSource

	// Topics is the topic tree. Zero value uses the defaults with discovery on.
	Topics mqtt.Topics

	QoS            byte
	HealthInterval time.Duration
	CommandTimeout time.Duration
	Version        string
	Logger         Logger
}

// Bridge exposes host lights over MQTT.
//
// It handles:
//   - Home Assistant discovery configs for every loaded light
//   - Commands from {prefix}/light/{id}/set, applied per light in arrival order
//   - Retained state and availability topics, republished on change
//   - Periodic health reports
//
// Host events are queued and published from a single goroutine so the
// host never waits on the broker. Commands are queued per light and run
// on that light's worker so the MQTT client never waits on a controller.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	pub      Publisher
	host     LightHost
	handlers HandlerSource
	topics   mqtt.Topics
	qos      byte
	timeout  time.Duration
	health   *HealthReporter
	logger   Logger

	// known maps topic ids to unique ids of announced lights.
	mu           sync.Mutex
	known        map[string]string
	availability map[string]string

	// workers holds the command queue of each light that received one.
	workersMu sync.Mutex
	workers   map[string]chan CommandMessage

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64

	events    chan platform.Event
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("MQTT publisher is required")
	}
	if opts.Host == nil {
		return nil, fmt.Errorf("light host is required")
	}

	topics := opts.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("", mqtt.DefaultDiscoveryPrefix)
	}
	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		pub:          opts.Publisher,
		host:         opts.Host,
		handlers:     opts.Handlers,
		topics:       topics,
		qos:          qos,
		timeout:      timeout,
		logger:       logger,
		known:        make(map[string]string),
		availability: make(map[string]string),
		workers:      make(map[string]chan CommandMessage),
		events:       make(chan platform.Event, eventBuffer),
		done:         make(chan struct{}),
		ctx:          ctx,
		ctxCancel:    cancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Topic:     topics.Health(),
		Publisher: opts.Publisher,
		Snapshot:  b.healthSnapshot,
	})
	b.health.SetLogger(logger)
	return b, nil
}

// Start subscribes to light commands, announces every loaded light and
// starts health reporting. Register HandleEvent with the host before
// calling Start so no change is missed.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		if perr := b.health.PublishStarting(); perr != nil {
			b.logger.Warn("failed to publish starting status", "error", perr)
		}

		topic := b.topics.AllLightCommands()
		if err = b.pub.Subscribe(topic, b.qos, b.handleCommand); err != nil {
			err = fmt.Errorf("subscribe to commands: %w", err)
			return
		}
		b.logger.Info("subscribed to light commands", "topic", topic)

		for _, s := range b.host.States() {
			b.publishState(s)
		}

		b.wg.Add(1)
		go b.eventLoop()

		b.health.Start(ctx)
		b.logger.Info("mqtt bridge started", "lights", b.knownCount())
	})
	return err
}

// Stop marks every announced light offline and stops health reporting.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.workersMu.Lock()
		close(b.done)
		b.workersMu.Unlock()
		b.ctxCancel()
		b.wg.Wait()

		b.mu.Lock()
		uids := make([]string, 0, len(b.known))
		for _, uid := range b.known {
			uids = append(uids, uid)
		}
		b.mu.Unlock()
		for _, uid := range uids {
			b.publishAvailability(uid, mqtt.PayloadOffline)
		}

		b.health.Stop()
		b.logger.Info("mqtt bridge stopped")
	})
}

// HandleEvent queues a host event for publishing. It never blocks; events
// arriving while the queue is full are dropped.
func (b *Bridge) HandleEvent(ev platform.Event) {
	if ev.Type != platform.EventStateChanged && ev.Type != platform.EventLightRemoved {
		return
	}
	select {
	case <-b.done:
	case b.events <- ev:
	default:
		b.logger.Warn("mqtt bridge event queue full, dropping event", "event", string(ev.Type))
	}
}

func (b *Bridge) eventLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.events:
			b.process(ev)
		}
	}
}

func (b *Bridge) process(ev platform.Event) {
	if ev.State == nil {
		return
	}
	switch ev.Type {
	case platform.EventStateChanged:
		b.publishState(*ev.State)
	case platform.EventLightRemoved:
		b.retract(ev.State.UniqueID)
	}
}

// handleCommand runs on the MQTT client's ordered delivery goroutine. It
// only validates and queues; the light's worker applies the command.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	id, action, ok := b.topics.ParseLightTopic(topic)
	if !ok || action != "set" {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	b.commandsReceived.Add(1)

	uid, ok := b.resolve(id)
	if !ok {
		b.commandsFailed.Add(1)
		return fmt.Errorf("%w: %s", ErrUnknownLight, id)
	}
	cmd, err := ParseCommand(payload)
	if err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	if err := b.dispatch(uid, cmd); err != nil {
		b.commandsFailed.Add(1)
		return fmt.Errorf("light %s: %w", uid, err)
	}
	return nil
}

// resolve maps a topic id back to a unique id. Lights loaded since the
// last announcement are looked up on the host.
func (b *Bridge) resolve(id string) (string, bool) {
	b.mu.Lock()
	uid, ok := b.known[id]
	b.mu.Unlock()
	if ok {
		return uid, true
	}
	for _, s := range b.host.States() {
		if mqtt.TopicID(s.UniqueID) == id {
			return s.UniqueID, true
		}
	}
	return "", false
}

// publishState announces s's light if new, then publishes its state and
// availability.
func (b *Bridge) publishState(s platform.LightState) {
	id := mqtt.TopicID(s.UniqueID)
	b.mu.Lock()
	_, announced := b.known[id]
	b.known[id] = s.UniqueID
	b.mu.Unlock()

	if !announced {
		b.publishDiscovery(s)
	}

	payload, err := json.Marshal(NewStateMessage(s))
	if err != nil {
		b.logger.Error("marshalling light state", "light", s.UniqueID, "error", err)
		return
	}
	if err := b.pub.Publish(b.topics.LightState(s.UniqueID), payload, b.qos, true); err != nil {
		b.logger.Warn("failed to publish light state", "light", s.UniqueID, "error", err)
	} else {
		b.statesPublished.Add(1)
	}

	avail := mqtt.PayloadOffline
	if s.Available {
		avail = mqtt.PayloadOnline
	}
	b.publishAvailability(s.UniqueID, avail)
}

// publishAvailability publishes payload if it differs from the last one.
func (b *Bridge) publishAvailability(uid, payload string) {
	b.mu.Lock()
	if b.availability[uid] == payload {
		b.mu.Unlock()
		return
	}
	b.availability[uid] = payload
	b.mu.Unlock()

	if err := b.pub.Publish(b.topics.LightAvailability(uid), []byte(payload), b.qos, true); err != nil {
		b.logger.Warn("failed to publish light availability", "light", uid, "error", err)
	}
}

func (b *Bridge) publishDiscovery(s platform.LightState) {
	topic := b.topics.LightDiscovery(s.UniqueID)
	if topic == "" {
		return
	}
	payload, err := json.Marshal(b.discoveryConfig(s))
	if err != nil {
		b.logger.Error("marshalling discovery config", "light", s.UniqueID, "error", err)
		return
	}
	if err := b.pub.Publish(topic, payload, b.qos, true); err != nil {
		b.logger.Warn("failed to publish discovery config", "light", s.UniqueID, "error", err)
	}
}

func (b *Bridge) discoveryConfig(s platform.LightState) DiscoveryConfig {
	identifier := s.Device.Identifier
	if identifier == "" {
		identifier = s.UniqueID
	}
	return DiscoveryConfig{
		Name:         s.Name,
		UniqueID:     s.UniqueID,
		Schema:       "json",
		CommandTopic: b.topics.LightCommand(s.UniqueID),
		StateTopic:   b.topics.LightState(s.UniqueID),
		Availability: []DiscoveryAvailability{
			{Topic: b.topics.Status()},
			{Topic: b.topics.LightAvailability(s.UniqueID)},
		},
		AvailabilityMode:    "all",
		Brightness:          true,
		BrightnessScale:     255,
		SupportedColorModes: []string{"brightness"},
		Icon:                "mdi:led-outline",
		Device: DiscoveryDevice{
			Identifiers:  []string{identifier},
			Name:         s.Device.Name,
			Manufacturer: s.Device.Manufacturer,
			Model:        s.Device.Model,
			SWVersion:    s.Device.SWVersion,
		},
	}
}

// retract marks a removed light offline and clears its discovery config.
func (b *Bridge) retract(uid string) {
	b.publishAvailability(uid, mqtt.PayloadOffline)

	b.mu.Lock()
	delete(b.known, mqtt.TopicID(uid))
	delete(b.availability, uid)
	b.mu.Unlock()
	b.stopWorker(uid)

	if topic := b.topics.LightDiscovery(uid); topic != "" {
		// An empty retained payload deletes the entity in Home Assistant.
		if err := b.pub.Publish(topic, []byte{}, b.qos, true); err != nil {
			b.logger.Warn("failed to clear discovery config", "light", uid, "error", err)
		}
	}
}

func (b *Bridge) knownCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.known)
}

// healthSnapshot fills the counters of a health message.
func (b *Bridge) healthSnapshot() HealthMessage {
	msg := HealthMessage{
		Statistics: &BridgeStatistics{
			CommandsReceived: b.commandsReceived.Load(),
			CommandsFailed:   b.commandsFailed.Load(),
			StatesPublished:  b.statesPublished.Load(),
		},
	}
	for _, s := range b.host.States() {
		msg.Lights++
		if s.Available {
			msg.Available++
		}
	}
	if b.handlers != nil {
		for _, h := range b.handlers.Handlers() {
			msg.Handlers++
			if h.Connected() {
				msg.Connected++
			}
		}
	}
	return msg
}
