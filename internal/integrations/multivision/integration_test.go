package multivision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver/drivertest"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/database"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/integrations/multivision"
	core "github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/ledcontroller"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/migrations"
)

// newHost returns a host with the multivision integration registered.
func newHost(t *testing.T) (*platform.Host, *core.Registry) {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	reg := core.NewRegistry(driver.TCPFactory(driver.TCPOptions{IOTimeout: time.Second}))
	t.Cleanup(func() { reg.Close() }) //nolint:errcheck // Test cleanup

	timing := core.DefaultTiming()
	timing.ConnectTimeout = time.Second
	timing.RefreshDelay = 0
	timing.RegistrationDelay = 10 * time.Millisecond

	host := platform.NewHost(platform.Options{
		Entries:      platform.NewSQLiteEntryRepository(db.DB),
		PollInterval: time.Hour,
		SetupRetry:   platform.RetryPolicy{InitialInterval: time.Hour},
	})
	if err := host.RegisterIntegration(multivision.New(multivision.Options{Registry: reg, Timing: timing})); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { host.Stop(context.Background()) }) //nolint:errcheck // Test cleanup
	return host, reg
}

func TestValidateInput(t *testing.T) {
	integ := multivision.New(multivision.Options{})

	title, data, err := integ.ValidateInput(map[string]any{"host": "10.0.0.6", "count": float64(4)})
	if err != nil {
		t.Fatalf("ValidateInput() error = %v", err)
	}
	if title != "Multivision LED Controller" {
		t.Errorf("title = %q", title)
	}
	want := map[string]any{"host": "10.0.0.6", "port": 4010, "count": 4}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	_, _, err = integ.ValidateInput(map[string]any{"count": 0})
	var fields platform.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("ValidateInput() error = %v, want FieldErrors", err)
	}
	if diff := cmp.Diff(platform.FieldErrors{"host": "required", "count": "must be a positive integer"}, fields); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestSetupRegistersModules(t *testing.T) {
	host, reg := newHost(t)
	srv := drivertest.NewServer(t)
	srv.SetBrightness(driver.FamilyMultivision, 1, 0)
	srv.SetBrightness(driver.FamilyMultivision, 2, 200)
	// Module 3 has never been written: it answers without data.
	ep := srv.Endpoint()

	e, err := host.CreateEntry(context.Background(), multivision.Domain,
		map[string]any{"host": ep.Host, "port": ep.Port, "count": 3})
	if err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if e.State != platform.EntryLoaded {
		t.Fatalf("State = %q (%s), want loaded", e.State, e.Reason)
	}
	if _, ok := e.RuntimeData.(*core.Manager); !ok {
		t.Errorf("RuntimeData = %T, want *Manager", e.RuntimeData)
	}

	states := host.States()
	if len(states) != 3 {
		t.Fatalf("States() len = %d, want 3", len(states))
	}
	byID := make(map[string]platform.LightState, len(states))
	for _, s := range states {
		byID[s.UniqueID] = s
		if s.Device.Identifier != e.ID || s.Device.Name != "Multivision LED Controller" {
			t.Errorf("%s device = %+v", s.UniqueID, s.Device)
		}
	}

	off := byID[multivision.UniqueID(1, ep)]
	if off.IsOn == nil || *off.IsOn || !off.Available {
		t.Errorf("module 1 = %+v, want available and off", off)
	}
	if off.Name != "LED Controller #1" {
		t.Errorf("module 1 name = %q", off.Name)
	}
	on := byID[multivision.UniqueID(2, ep)]
	if on.Brightness == nil || *on.Brightness != 200 {
		t.Errorf("module 2 brightness = %v, want 200", on.Brightness)
	}
	unknown := byID[multivision.UniqueID(3, ep)]
	if unknown.Available || unknown.IsOn != nil {
		t.Errorf("module 3 = %+v, want unavailable with unknown state", unknown)
	}

	// Commanding the silent module brings it online.
	level := uint8(90)
	if err := host.TurnOn(context.Background(), unknown.UniqueID, &level); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	s, _ := host.State(unknown.UniqueID)
	if !s.Available || s.Brightness == nil || *s.Brightness != 90 {
		t.Errorf("module 3 after TurnOn = %+v", s)
	}

	if reg.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", reg.Len())
	}
}

func TestSetupNotReady(t *testing.T) {
	host, _ := newHost(t)
	srv := drivertest.NewServer(t)
	ep := srv.Endpoint()
	srv.Close()

	e, err := host.CreateEntry(context.Background(), multivision.Domain,
		map[string]any{"host": ep.Host, "port": ep.Port, "count": 2})
	if err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if e.State != platform.EntrySetupRetry {
		t.Errorf("State = %q, want setup_retry", e.State)
	}
	if len(host.States()) != 0 {
		t.Error("not-ready entry exposed lights")
	}
}

func TestCreateEntryRejectsConfiguredModules(t *testing.T) {
	host, _ := newHost(t)
	srv := drivertest.NewServer(t)
	ep := srv.Endpoint()
	srv.Close()
	ctx := context.Background()

	if _, err := host.CreateEntry(ctx, multivision.Domain,
		map[string]any{"host": ep.Host, "port": ep.Port, "count": 3}); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}

	// Module 1 at the same endpoint is already claimed by the retrying entry.
	_, err := host.CreateEntry(ctx, multivision.Domain, map[string]any{"host": ep.Host, "port": ep.Port})
	var fields platform.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("CreateEntry(duplicate) error = %v, want FieldErrors", err)
	}
	if diff := cmp.Diff(platform.FieldErrors{"base": platform.ReasonAlreadyConfigured}, fields); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}
	if n := len(host.Entries()); n != 1 {
		t.Errorf("Entries() len = %d, want 1", n)
	}

	if _, err := host.CreateEntry(ctx, multivision.Domain,
		map[string]any{"host": ep.Host, "port": ep.Port + 1}); err != nil {
		t.Errorf("CreateEntry(other port) error = %v", err)
	}
}

func TestLightIDs(t *testing.T) {
	integ := multivision.New(multivision.Options{})
	ep := driver.Endpoint{Host: "10.0.0.6", Port: 4010}
	e := &platform.Entry{Data: map[string]any{"host": ep.Host, "port": float64(ep.Port), "count": float64(2)}}

	got, err := integ.LightIDs(e)
	if err != nil {
		t.Fatalf("LightIDs() error = %v", err)
	}
	want := []string{multivision.UniqueID(1, ep), multivision.UniqueID(2, ep)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LightIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnloadKeepsHandler(t *testing.T) {
	host, reg := newHost(t)
	srv := drivertest.NewServer(t)
	ep := srv.Endpoint()

	e, err := host.CreateEntry(context.Background(), multivision.Domain,
		map[string]any{"host": ep.Host, "port": ep.Port})
	if err != nil {
		t.Fatal(err)
	}
	if err := host.UnloadEntry(context.Background(), e.ID); err != nil {
		t.Fatalf("UnloadEntry() error = %v", err)
	}
	if len(host.States()) != 0 {
		t.Error("lights left after unload")
	}
	if reg.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1 after unload", reg.Len())
	}
	h, err := reg.Get(ep)
	if err != nil || !h.Connected() {
		t.Errorf("handler after unload = %v, connected %v", err, h != nil && h.Connected())
	}
}
