package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/audit"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/config"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/database"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/logging"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/migrations"
)

// ─── Fakes ─────────────────────────────────────────────────────────

// fakeLight is an in-memory dimmable light.
type fakeLight struct {
	mu       sync.Mutex
	uid      string
	value    int // -1 until read
	failNext bool
}

func (l *fakeLight) UniqueID() string { return l.uid }
func (l *fakeLight) Name() string     { return "Fake " + l.uid }
func (l *fakeLight) DeviceInfo() platform.DeviceInfo {
	return platform.DeviceInfo{Identifier: l.uid, Name: "Fake Controller", Manufacturer: "Test"}
}

func (l *fakeLight) Brightness() (uint8, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value < 0 {
		return 0, false
	}
	return uint8(l.value), true
}

func (l *fakeLight) IsOn() (bool, bool) {
	b, ok := l.Brightness()
	return b > 0, ok
}

func (l *fakeLight) TurnOn(_ context.Context, brightness *uint8) error {
	v := 255
	if brightness != nil {
		v = int(*brightness)
	}
	return l.set(v)
}

func (l *fakeLight) TurnOff(context.Context) error { return l.set(0) }

func (l *fakeLight) Update(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.value < 0 {
		l.value = 100
	}
	return nil
}

func (l *fakeLight) set(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return platform.CommandFailed("controller refused write")
	}
	l.value = v
	return nil
}

// fakeIntegration creates one light per entry, named after the "name" input.
type fakeIntegration struct {
	mu     sync.Mutex
	lights map[string]*fakeLight
}

func (f *fakeIntegration) Domain() string { return "fake" }

func (f *fakeIntegration) ValidateInput(input map[string]any) (string, map[string]any, error) {
	name, _ := input["name"].(string)
	if name == "" {
		return "", nil, platform.FieldErrors{"name": "required"}
	}
	return "Fake " + name, map[string]any{"name": name}, nil
}

func (f *fakeIntegration) SetupEntry(_ context.Context, e *platform.Entry, add platform.AddLightsFunc) error {
	l := &fakeLight{uid: "fake_" + e.String("name"), value: -1}
	f.mu.Lock()
	f.lights[l.uid] = l
	f.mu.Unlock()
	add([]platform.Light{l}, true)
	return nil
}

func (f *fakeIntegration) UnloadEntry(context.Context, *platform.Entry) error { return nil }

func (f *fakeIntegration) light(uid string) *fakeLight {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lights[uid]
}

type fakeHandlers []driver.Handler

func (f fakeHandlers) Handlers() []driver.Handler { return f }

// ─── Fixture ───────────────────────────────────────────────────────

type fixture struct {
	srv      *Server
	host     *platform.Host
	integ    *fakeIntegration
	activity *audit.SQLiteRepository
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server over a started host backed by in-memory SQLite.
func testServer(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	host := platform.NewHost(platform.Options{
		Entries:      platform.NewSQLiteEntryRepository(db.DB),
		History:      platform.NewSQLiteHistoryRepository(db.DB),
		PollInterval: time.Hour,
		SetupRetry:   platform.RetryPolicy{InitialInterval: time.Hour},
	})
	integ := &fakeIntegration{lights: make(map[string]*fakeLight)}
	if err := host.RegisterIntegration(integ); err != nil {
		t.Fatal(err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("host.Start() error = %v", err)
	}
	t.Cleanup(func() { host.Stop(context.Background()) }) //nolint:errcheck // Test cleanup

	handler := driver.NewTCPHandler(driver.Endpoint{Host: "10.0.0.5", Port: 4010}, driver.TCPOptions{})
	t.Cleanup(func() { handler.Close() }) //nolint:errcheck // Test cleanup

	activity := audit.NewSQLiteRepository(db.DB)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:     config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}},
		},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   testLogger(),
		Host:     host,
		Handlers: fakeHandlers{handler},
		Activity: activity,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{srv: srv, host: host, integ: integ, activity: activity}
}

// do sends a request through the router and decodes a JSON object response.
func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.buildRouter().ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

// createEntry creates a fake entry and returns its ID.
func (f *fixture) createEntry(t *testing.T, name string) string {
	t.Helper()
	w, resp := f.do(t, http.MethodPost, "/api/v1/entries/fake", `{"name":"`+name+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create entry status = %d, body %s", w.Code, w.Body.String())
	}
	return resp["id"].(string)
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := testServer(t)
	f.createEntry(t, "desk")

	w, resp := f.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if resp["entries"] != float64(1) || resp["lights"] != float64(1) || resp["lights_available"] != float64(1) {
		t.Errorf("health counts = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	f := testServer(t)
	router := f.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestCORS(t *testing.T) {
	f := testServer(t)
	router := f.srv.buildRouter()

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/lights", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

// ─── Entries ───────────────────────────────────────────────────────

func TestCreateEntry(t *testing.T) {
	f := testServer(t)

	w, resp := f.do(t, http.MethodPost, "/api/v1/entries/fake", `{"name":"desk"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if resp["title"] != "Fake desk" || resp["state"] != string(platform.EntryLoaded) {
		t.Errorf("entry = %v", resp)
	}

	w, resp = f.do(t, http.MethodGet, "/api/v1/entries", "")
	if w.Code != http.StatusOK || resp["count"] != float64(1) {
		t.Errorf("list = %d %v", w.Code, resp)
	}
}

func TestCreateEntry_Errors(t *testing.T) {
	f := testServer(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing field", "/api/v1/entries/fake", `{}`, http.StatusBadRequest, ErrCodeValidation},
		{"empty body", "/api/v1/entries/fake", "", http.StatusBadRequest, ErrCodeValidation},
		{"invalid json", "/api/v1/entries/fake", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown domain", "/api/v1/entries/nope", `{"name":"x"}`, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", resp["code"], tt.wantCode)
			}
		})
	}

	_, resp := f.do(t, http.MethodPost, "/api/v1/entries/fake", `{}`)
	fields, _ := resp["fields"].(map[string]any)
	if fields["name"] != "required" {
		t.Errorf("fields = %v, want name: required", resp["fields"])
	}
}

func TestReloadAndDeleteEntry(t *testing.T) {
	f := testServer(t)
	id := f.createEntry(t, "desk")

	w, resp := f.do(t, http.MethodGet, "/api/v1/entries/"+id, "")
	if w.Code != http.StatusOK || resp["id"] != id {
		t.Fatalf("get entry = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/entries/"+id+"/reload", "")
	if w.Code != http.StatusOK || resp["state"] != string(platform.EntryLoaded) {
		t.Errorf("reload = %d %v", w.Code, resp)
	}

	w, _ = f.do(t, http.MethodDelete, "/api/v1/entries/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}

	if w, _ = f.do(t, http.MethodDelete, "/api/v1/entries/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if w, _ = f.do(t, http.MethodPost, "/api/v1/entries/"+id+"/reload", ""); w.Code != http.StatusNotFound {
		t.Errorf("reload removed entry status = %d, want 404", w.Code)
	}
	if w, _ = f.do(t, http.MethodGet, "/api/v1/lights/fake_desk", ""); w.Code != http.StatusNotFound {
		t.Errorf("light of removed entry status = %d, want 404", w.Code)
	}
}

// ─── Lights ────────────────────────────────────────────────────────

func TestLights(t *testing.T) {
	f := testServer(t)
	f.createEntry(t, "desk")

	w, resp := f.do(t, http.MethodGet, "/api/v1/lights", "")
	if w.Code != http.StatusOK || resp["count"] != float64(1) {
		t.Fatalf("list = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodGet, "/api/v1/lights/fake_desk", "")
	if w.Code != http.StatusOK || resp["brightness"] != float64(100) || resp["is_on"] != true {
		t.Errorf("get = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/lights/fake_desk/turn_on", `{"brightness":128}`)
	if w.Code != http.StatusOK || resp["brightness"] != float64(128) {
		t.Errorf("turn_on(128) = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/lights/fake_desk/turn_on", "")
	if w.Code != http.StatusOK || resp["brightness"] != float64(255) {
		t.Errorf("turn_on() = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/lights/fake_desk/turn_off", "")
	if w.Code != http.StatusOK || resp["is_on"] != false {
		t.Errorf("turn_off = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/lights/fake_desk/refresh", "")
	if w.Code != http.StatusOK || resp["available"] != true {
		t.Errorf("refresh = %d %v", w.Code, resp)
	}

	w, resp = f.do(t, http.MethodGet, "/api/v1/lights/fake_desk/history?limit=2", "")
	if w.Code != http.StatusOK || resp["count"] != float64(2) {
		t.Errorf("history = %d %v", w.Code, resp)
	}
}

func TestLights_Errors(t *testing.T) {
	f := testServer(t)
	f.createEntry(t, "desk")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown light", http.MethodGet, "/api/v1/lights/nope", "", http.StatusNotFound},
		{"turn_on unknown", http.MethodPost, "/api/v1/lights/nope/turn_on", "", http.StatusNotFound},
		{"brightness out of range", http.MethodPost, "/api/v1/lights/fake_desk/turn_on", `{"brightness":300}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/v1/lights/fake_desk/turn_on", `nope`, http.StatusBadRequest},
		{"bad history limit", http.MethodGet, "/api/v1/lights/fake_desk/history?limit=x", "", http.StatusBadRequest},
		{"history unknown", http.MethodGet, "/api/v1/lights/nope/history", "", http.StatusNotFound},
		{"refresh unknown", http.MethodPost, "/api/v1/lights/nope/refresh", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w, _ := f.do(t, tt.method, tt.path, tt.body); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	f.integ.light("fake_desk").mu.Lock()
	f.integ.light("fake_desk").failNext = true
	f.integ.light("fake_desk").mu.Unlock()

	w, resp := f.do(t, http.MethodPost, "/api/v1/lights/fake_desk/turn_off", "")
	if w.Code != http.StatusBadGateway || resp["code"] != ErrCodeController {
		t.Errorf("failed command = %d %v, want 502 controller_error", w.Code, resp)
	}
}

func TestListHandlers(t *testing.T) {
	f := testServer(t)

	w, resp := f.do(t, http.MethodGet, "/api/v1/handlers", "")
	if w.Code != http.StatusOK || resp["count"] != float64(1) {
		t.Fatalf("handlers = %d %v", w.Code, resp)
	}
	h := resp["handlers"].([]any)[0].(map[string]any)
	if h["endpoint"] != "tcp://10.0.0.5:4010" || h["connected"] != false {
		t.Errorf("handler stats = %v", h)
	}
}

func TestWriteHostError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{platform.FieldErrors{"host": "required"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", platform.ErrEntityNotFound), http.StatusNotFound},
		{platform.CommandFailed("x"), http.StatusBadGateway},
		{platform.ErrHostStopped, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			writeHostError(w, tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// ─── Hub & WebSocket ───────────────────────────────────────────────

func newTestClient(hub *Hub, channels, lights []string) *WSClient {
	c := &WSClient{
		hub:      hub,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		lights:   make(map[string]struct{}),
	}
	c.subscribe(WSSubscribePayload{Channels: channels, Lights: lights})
	return c
}

// receive returns the next queued frame, or fails after a second.
func receive(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return WSMessage{}
}

func assertNoFrame(t *testing.T, c *WSClient) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	states := newTestClient(hub, []string{"light.state_changed", "entry.state_changed"}, nil)
	commands := newTestClient(hub, []string{"light.command"}, nil)
	deskOnly := newTestClient(hub, []string{"light.state_changed", "entry.state_changed"}, []string{"desk"})
	for _, c := range []*WSClient{states, commands, deskOnly} {
		hub.Register(c)
	}

	hub.Broadcast("light.state_changed", "wall", map[string]any{"unique_id": "wall"})
	if msg := receive(t, states); msg.Type != WSTypeEvent || msg.Event != "light.state_changed" {
		t.Errorf("frame = %+v, want light.state_changed event", msg)
	}
	assertNoFrame(t, commands)
	assertNoFrame(t, deskOnly)

	hub.Broadcast("light.state_changed", "desk", map[string]any{"unique_id": "desk"})
	receive(t, states)
	if msg := receive(t, deskOnly); msg.Event != "light.state_changed" {
		t.Errorf("filtered client frame = %+v", msg)
	}

	// Entry events are not tied to a light and pass the light filter.
	hub.Broadcast("entry.state_changed", "", map[string]any{"id": "entry-1"})
	receive(t, states)
	receive(t, deskOnly)
	assertNoFrame(t, commands)

	hub.Unregister(states)
	hub.Unregister(states)
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after Run = %d, want 0", hub.ClientCount())
	}
}

func TestWSClient_Messages(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newTestClient(hub, nil, nil)
	b := uint8(80)
	c.states = func() []platform.LightState {
		return []platform.LightState{{UniqueID: "wall", Brightness: &b}, {UniqueID: "desk"}}
	}

	c.handle([]byte(`{"type":"ping","id":"p1"}`))
	if msg := receive(t, c); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	c.handle([]byte(`{"type":"subscribe","id":"s1","payload":{"channels":["light.state_changed"],"lights":["wall"]}}`))
	if msg := receive(t, c); msg.Type != WSTypeResponse || msg.ID != "s1" {
		t.Errorf("subscribe reply = %+v", msg)
	}
	snap := receive(t, c)
	if snap.Type != WSTypeSnapshot {
		t.Fatalf("second frame = %+v, want snapshot", snap)
	}
	payload, _ := snap.Payload.(map[string]any)
	if payload["count"] != float64(1) {
		t.Errorf("snapshot count = %v, want 1 (only the followed light)", payload["count"])
	}
	if !c.wants("light.state_changed", "wall") || c.wants("light.state_changed", "desk") {
		t.Error("light filter not applied")
	}

	c.handle([]byte(`{"type":"unsubscribe","id":"u1","payload":{"channels":["light.state_changed"]}}`))
	if msg := receive(t, c); msg.Type != WSTypeResponse {
		t.Errorf("unsubscribe reply = %+v", msg)
	}
	if c.wants("light.state_changed", "wall") {
		t.Error("still subscribed after unsubscribe")
	}

	for _, raw := range []string{`not json`, `{"type":"subscribe","id":"s2"}`, `{"type":"dance"}`} {
		c.handle([]byte(raw))
		if msg := receive(t, c); msg.Type != WSTypeError {
			t.Errorf("%s: reply = %+v, want error", raw, msg)
		}
	}
}

func TestServer_StartWebSocketAndClose(t *testing.T) {
	f := testServer(t)
	f.createEntry(t, "desk")

	if err := f.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := f.srv.Addr()
	if err := f.srv.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}
	if err := f.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?channels=light.state_changed", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	// A ping round trip guarantees the client is registered.
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil || msg.Type != WSTypePong {
		t.Fatalf("ping reply = %+v, %v", msg, err)
	}

	httpResp, err := http.Post("http://"+addr+"/api/v1/lights/fake_desk/turn_on", "application/json",
		strings.NewReader(`{"brightness":42}`))
	if err != nil {
		t.Fatal(err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("turn_on status = %d", httpResp.StatusCode)
	}

	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.Event != string(platform.EventStateChanged) {
		t.Errorf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["unique_id"] != "fake_desk" || payload["brightness"] != float64(42) {
		t.Errorf("event payload = %v", msg.Payload)
	}

	if err := f.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := f.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close expected error")
	}
	if err := f.srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestListActivity(t *testing.T) {
	f := testServer(t)
	ctx := context.Background()
	for _, log := range []*audit.AuditLog{
		{Action: audit.ActionCommand, EntityType: audit.EntityLight, EntityID: "fake_a", Source: "command"},
		{Action: audit.ActionCommandFailed, EntityType: audit.EntityLight, EntityID: "fake_a", Source: "command"},
		{Action: audit.ActionEntryState, EntityType: audit.EntityEntry, EntityID: "entry-1", Source: "host"},
	} {
		if err := f.activity.Create(ctx, log); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		query  string
		status int
		logs   int
		total  float64
	}{
		{"all", "", http.StatusOK, 3, 3},
		{"lights", "?entity_type=light", http.StatusOK, 2, 2},
		{"failed commands", "?action=command_failed", http.StatusOK, 1, 1},
		{"paged", "?limit=1&offset=2", http.StatusOK, 1, 3},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodGet, "/api/v1/activity"+tt.query, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			logs, _ := resp["logs"].([]any)
			if len(logs) != tt.logs || resp["total"] != tt.total {
				t.Errorf("logs = %d total = %v, want %d / %v", len(logs), resp["total"], tt.logs, tt.total)
			}
		})
	}
}

func TestListActivity_Disabled(t *testing.T) {
	f := testServer(t)
	f.srv.activity = nil

	w, _ := f.do(t, http.MethodGet, "/api/v1/activity", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
