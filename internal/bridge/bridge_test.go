package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/mqtt"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakePublisher records publishes and keeps subscription handlers.
type fakePublisher struct {
	mu        sync.Mutex
	messages  []published
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (p *fakePublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, string(payload), retained})
	return nil
}

func (p *fakePublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// deliver simulates a broker message on topic.
func (p *fakePublisher) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	p.mu.Lock()
	h := p.handlers["ledcontroller/light/+/set"]
	p.mu.Unlock()
	if h == nil {
		t.Fatal("no command subscription")
	}
	return h(topic, []byte(payload))
}

// last returns the newest payload published on topic.
func (p *fakePublisher) last(topic string) (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].topic == topic {
			return p.messages[i], true
		}
	}
	return published{}, false
}

func (p *fakePublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.topic == topic {
			n++
		}
	}
	return n
}

// fakeHost records commands. A light with a gate holds its commands until
// the gate is closed or the command context ends.
type fakeHost struct {
	mu     sync.Mutex
	states []platform.LightState
	calls  []string
	err    error
	gates  map[string]chan struct{}
}

func (h *fakeHost) wait(ctx context.Context, uid string) {
	h.mu.Lock()
	gate := h.gates[uid]
	h.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (h *fakeHost) hold(uid string) (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	if h.gates == nil {
		h.gates = make(map[string]chan struct{})
	}
	h.gates[uid] = gate
	h.mu.Unlock()
	return func() { close(gate) }
}

func (h *fakeHost) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *fakeHost) States() []platform.LightState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]platform.LightState(nil), h.states...)
}

func (h *fakeHost) TurnOn(ctx context.Context, uid string, brightness *uint8) error {
	h.wait(ctx, uid)
	h.mu.Lock()
	defer h.mu.Unlock()
	if brightness == nil {
		h.calls = append(h.calls, "on "+uid)
	} else {
		h.calls = append(h.calls, fmt.Sprintf("on %s %d", uid, *brightness))
	}
	return h.err
}

func (h *fakeHost) TurnOff(ctx context.Context, uid string) error {
	h.wait(ctx, uid)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "off "+uid)
	return h.err
}

func (h *fakeHost) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

const testUID = "led_controller_light_3_10.0.0.5:4010"

const (
	discoveryTopic    = "homeassistant/light/led_controller_light_3_10_0_0_5_4010/config"
	stateTopic        = "ledcontroller/light/led_controller_light_3_10_0_0_5_4010/state"
	availabilityTopic = "ledcontroller/light/led_controller_light_3_10_0_0_5_4010/availability"
	commandTopic      = "ledcontroller/light/led_controller_light_3_10_0_0_5_4010/set"
)

func testState(brightness *uint8) platform.LightState {
	s := platform.LightState{
		UniqueID: testUID,
		Name:     "Module #3",
		Device: platform.DeviceInfo{
			Identifier:   testUID,
			Name:         "Multivision LED Controller",
			Manufacturer: "Multivision",
			Model:        "TCP LED Controller",
			SWVersion:    "1.0",
		},
		LastUpdated: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if brightness != nil {
		on := *brightness > 0
		s.Brightness = brightness
		s.IsOn = &on
		s.Available = true
	}
	return s
}

func u8(v uint8) *uint8 { return &v }

func startBridge(t *testing.T, host *fakeHost) (*Bridge, *fakePublisher) {
	t.Helper()
	pub := newFakePublisher()
	b, err := New(Options{Publisher: pub, Host: host, HealthInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, pub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{Host: &fakeHost{}}); err == nil {
		t.Error("New() without publisher expected error")
	}
	if _, err := New(Options{Publisher: newFakePublisher()}); err == nil {
		t.Error("New() without host expected error")
	}
}

func TestStart_AnnouncesLoadedLights(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(u8(128))}}
	_, pub := startBridge(t, host)

	msg, ok := pub.last(discoveryTopic)
	if !ok || !msg.retained {
		t.Fatalf("discovery = %+v, %v, want retained", msg, ok)
	}
	var cfg DiscoveryConfig
	if err := json.Unmarshal([]byte(msg.payload), &cfg); err != nil {
		t.Fatal(err)
	}
	want := DiscoveryConfig{
		Name:         "Module #3",
		UniqueID:     testUID,
		Schema:       "json",
		CommandTopic: commandTopic,
		StateTopic:   stateTopic,
		Availability: []DiscoveryAvailability{
			{Topic: "ledcontroller/status"},
			{Topic: availabilityTopic},
		},
		AvailabilityMode:    "all",
		Brightness:          true,
		BrightnessScale:     255,
		SupportedColorModes: []string{"brightness"},
		Icon:                "mdi:led-outline",
		Device: DiscoveryDevice{
			Identifiers:  []string{testUID},
			Name:         "Multivision LED Controller",
			Manufacturer: "Multivision",
			Model:        "TCP LED Controller",
			SWVersion:    "1.0",
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("discovery mismatch (-want +got):\n%s", diff)
	}

	state, ok := pub.last(stateTopic)
	if !ok || !state.retained {
		t.Fatalf("state = %+v, %v, want retained", state, ok)
	}
	var sm StateMessage
	if err := json.Unmarshal([]byte(state.payload), &sm); err != nil {
		t.Fatal(err)
	}
	if sm.State == nil || *sm.State != StateOn || sm.Brightness == nil || *sm.Brightness != 128 {
		t.Errorf("state message = %+v", sm)
	}

	if avail, _ := pub.last(availabilityTopic); avail.payload != mqtt.PayloadOnline {
		t.Errorf("availability = %q, want online", avail.payload)
	}
	if _, ok := pub.last("ledcontroller/health"); !ok {
		t.Error("no health message published")
	}
}

func TestStart_UnknownStatePublishesNulls(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(nil)}}
	_, pub := startBridge(t, host)

	state, _ := pub.last(stateTopic)
	var raw map[string]any
	if err := json.Unmarshal([]byte(state.payload), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["state"] != nil || raw["brightness"] != nil {
		t.Errorf("state payload = %s, want null state and brightness", state.payload)
	}
	if avail, _ := pub.last(availabilityTopic); avail.payload != mqtt.PayloadOffline {
		t.Errorf("availability = %q, want offline", avail.payload)
	}
}

func TestHandleCommand(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(u8(10))}}
	_, pub := startBridge(t, host)

	payloads := []string{
		`{"state":"ON","brightness":128}`,
		`{"state":"ON"}`,
		`{"state":"off"}`,
		`{"brightness":0}`,
		`{"brightness":64}`,
	}
	for _, p := range payloads {
		if err := pub.deliver(t, commandTopic, p); err != nil {
			t.Fatalf("command %s error = %v", p, err)
		}
	}

	want := []string{
		"on " + testUID + " 128",
		"on " + testUID,
		"off " + testUID,
		"off " + testUID,
		"on " + testUID + " 64",
	}
	waitFor(t, "commands applied", func() bool { return len(host.recorded()) == len(want) })
	if diff := cmp.Diff(want, host.recorded()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCommand_Errors(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(u8(10))}}
	b, pub := startBridge(t, host)

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"bad json", commandTopic, `{`, ErrInvalidCommand},
		{"unknown state", commandTopic, `{"state":"TOGGLE"}`, ErrInvalidCommand},
		{"brightness out of range", commandTopic, `{"state":"ON","brightness":300}`, ErrInvalidCommand},
		{"unknown light", "ledcontroller/light/nope/set", `{"state":"ON"}`, ErrUnknownLight},
		{"not a set topic", "ledcontroller/light/x/state", `{}`, ErrInvalidTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pub.deliver(t, tt.topic, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A controller failure surfaces in the counters, not to the MQTT client.
	host.setErr(platform.CommandFailed("write refused"))
	if err := pub.deliver(t, commandTopic, `{"state":"OFF"}`); err != nil {
		t.Errorf("queued command error = %v", err)
	}
	waitFor(t, "failed command counted", func() bool {
		return b.healthSnapshot().Statistics.CommandsFailed == 5
	})
}

func TestHandleCommand_DoesNotWaitForController(t *testing.T) {
	other := testState(u8(10))
	other.UniqueID = "other_light"
	host := &fakeHost{states: []platform.LightState{testState(u8(10)), other}}
	_, pub := startBridge(t, host)
	release := host.hold(testUID)

	delivered := make(chan error, 1)
	go func() {
		var err error
		for _, p := range []string{`{"brightness":10}`, `{"brightness":20}`, `{"state":"OFF"}`} {
			if err = pub.deliver(t, commandTopic, p); err != nil {
				break
			}
		}
		delivered <- err
	}()
	select {
	case err := <-delivered:
		if err != nil {
			t.Fatalf("deliver() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("delivery blocked on a held light")
	}

	// Another light is not stuck behind the held one.
	if err := pub.deliver(t, "ledcontroller/light/other_light/set", `{"state":"OFF"}`); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "other light command", func() bool { return len(host.recorded()) == 1 })

	release()
	want := []string{
		"off other_light",
		"on " + testUID + " 10",
		"on " + testUID + " 20",
		"off " + testUID,
	}
	waitFor(t, "held commands applied", func() bool { return len(host.recorded()) == len(want) })
	if diff := cmp.Diff(want, host.recorded()); diff != "" {
		t.Errorf("host calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCommand_RefusesWhenQueueFull(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(u8(10))}}
	b, pub := startBridge(t, host)
	host.hold(testUID)

	var full int
	for i := 0; i < commandBuffer+2; i++ {
		err := pub.deliver(t, commandTopic, `{"state":"ON"}`)
		switch {
		case err == nil:
		case errors.Is(err, ErrCommandQueueFull):
			full++
		default:
			t.Fatalf("deliver() error = %v", err)
		}
	}
	if full == 0 {
		t.Error("no command refused with a full queue")
	}
	if got := b.healthSnapshot().Statistics.CommandsFailed; got != uint64(full) {
		t.Errorf("CommandsFailed = %d, want %d", got, full)
	}

	// Stop cancels the held command and the worker exits.
	b.Stop()
	if err := pub.deliver(t, commandTopic, `{"state":"ON"}`); !errors.Is(err, ErrStopped) {
		t.Errorf("deliver() after Stop error = %v, want ErrStopped", err)
	}
}

func TestHandleEvent_PublishesChanges(t *testing.T) {
	host := &fakeHost{}
	b, pub := startBridge(t, host)

	s := testState(u8(200))
	b.HandleEvent(platform.Event{Type: platform.EventStateChanged, State: &s})
	waitFor(t, "state publish", func() bool { return pub.count(stateTopic) == 1 })
	if pub.count(discoveryTopic) != 1 {
		t.Errorf("discovery published %d times, want 1", pub.count(discoveryTopic))
	}

	// A later change republishes state but not discovery or unchanged availability.
	s2 := testState(u8(50))
	b.HandleEvent(platform.Event{Type: platform.EventStateChanged, State: &s2})
	waitFor(t, "second state publish", func() bool { return pub.count(stateTopic) == 2 })
	if pub.count(discoveryTopic) != 1 || pub.count(availabilityTopic) != 1 {
		t.Errorf("discovery %d, availability %d, want 1 each",
			pub.count(discoveryTopic), pub.count(availabilityTopic))
	}

	// Commands reach lights announced by events.
	if err := pub.deliver(t, commandTopic, `{"state":"OFF"}`); err != nil {
		t.Errorf("command after event error = %v", err)
	}

	// Other event types are ignored.
	b.HandleEvent(platform.Event{Type: platform.EventCommand, Command: &platform.CommandResult{}})

	b.HandleEvent(platform.Event{Type: platform.EventLightRemoved, State: &platform.LightState{UniqueID: testUID}})
	waitFor(t, "retraction", func() bool {
		m, _ := pub.last(discoveryTopic)
		return m.payload == ""
	})
	if avail, _ := pub.last(availabilityTopic); avail.payload != mqtt.PayloadOffline {
		t.Errorf("availability after removal = %q, want offline", avail.payload)
	}
}

func TestStop_MarksLightsOffline(t *testing.T) {
	host := &fakeHost{states: []platform.LightState{testState(u8(1))}}
	b, pub := startBridge(t, host)

	b.Stop()
	b.Stop()

	if avail, _ := pub.last(availabilityTopic); avail.payload != mqtt.PayloadOffline {
		t.Errorf("availability after Stop = %q, want offline", avail.payload)
	}
	health, _ := pub.last("ledcontroller/health")
	var msg HealthMessage
	if err := json.Unmarshal([]byte(health.payload), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != HealthStopping {
		t.Errorf("final health status = %q, want stopping", msg.Status)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload        string
		wantState      string
		wantBrightness *int
		wantErr        bool
	}{
		{`{"state":"ON"}`, StateOn, nil, false},
		{`{"state":" on "}`, StateOn, nil, false},
		{`{"state":"OFF","brightness":12}`, StateOff, intPtr(12), false},
		{`{"brightness":255}`, StateOn, intPtr(255), false},
		{`{}`, "", nil, true},
		{`{"brightness":-1}`, "", nil, true},
		{`[]`, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.State != tt.wantState {
				t.Errorf("State = %q, want %q", got.State, tt.wantState)
			}
			if diff := cmp.Diff(tt.wantBrightness, got.Brightness); diff != "" {
				t.Errorf("Brightness mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

func TestDetermineStatus(t *testing.T) {
	connected := newFakePublisher()
	disconnected := newFakePublisher()
	disconnected.connected = false

	tests := []struct {
		name       string
		pub        HealthPublisher
		msg        HealthMessage
		wantStatus HealthStatus
		wantReason string
	}{
		{"healthy", connected, HealthMessage{Lights: 2, Available: 2, Handlers: 1, Connected: 1}, HealthHealthy, ""},
		{"mqtt down", disconnected, HealthMessage{}, HealthDegraded, "MQTT disconnected"},
		{"handler down", connected, HealthMessage{Handlers: 2, Connected: 1}, HealthDegraded, "1 of 2 controller connections down"},
		{"light unavailable", connected, HealthMessage{Lights: 3, Available: 1}, HealthDegraded, "2 of 3 lights unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := determineStatus(tt.pub, tt.msg)
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("determineStatus() = %q, %q, want %q, %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}
