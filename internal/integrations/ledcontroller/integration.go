// Package ledcontroller is the generic LED controller integration
// (domain "ha-ledcontroller").
//
// Each config entry describes one controller channel: a Multivision module
// or an OnlyGlass controller at host:port. Entries pointing at the same
// endpoint share one connection handler through the Registry.
//
// Setup connects the shared handler (not ready on failure), remembers the
// endpoint as the entry's runtime data, then looks the handler up again to
// build the light, mirroring how the light platform finds its handler.
package ledcontroller

import (
	"context"
	"fmt"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/integrations/configflow"
	core "github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/ledcontroller"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// Domain is the integration key.
const Domain = "ha-ledcontroller"

// Config flow keys.
const (
	ConfHost = "host"
	ConfPort = "port"
	ConfID   = "id"
	ConfType = "type"
)

const (
	defaultID = 1
	title     = "LED Controller"
	model     = "TCP LED Controller"
	swVersion = "1.0"
)

// Options configures the integration.
type Options struct {
	// Registry is shared with every other integration in the process.
	Registry *core.Registry
	Timing   core.Timing
	Logger   core.Logger
}

// Integration implements platform.Integration.
type Integration struct {
	registry *core.Registry
	timing   core.Timing
	logger   core.Logger
}

var (
	_ platform.Integration = (*Integration)(nil)
	_ platform.LightIDer   = (*Integration)(nil)
)

// New creates the integration.
func New(opts Options) *Integration {
	i := &Integration{registry: opts.Registry, timing: opts.Timing, logger: opts.Logger}
	if i.logger == nil {
		i.logger = nopLogger{}
	}
	return i
}

// Domain implements platform.Integration.
func (i *Integration) Domain() string { return Domain }

// ValidateInput implements platform.Integration.
//
// Fields: host (required), port (default 4010), id (positive, default 1)
// and type (Multivision or OnlyGlass, default Multivision).
func (i *Integration) ValidateInput(input map[string]any) (string, map[string]any, error) {
	f := configflow.NewForm(input)
	host := f.Host(ConfHost)
	port := f.Port(ConfPort, driver.DefaultPort)
	id := f.PositiveInt(ConfID, defaultID)
	typ := f.OneOf(ConfType, string(driver.FamilyMultivision), familyNames())
	if err := f.Err(); err != nil {
		return "", nil, err
	}

	return title, map[string]any{
		ConfHost: host,
		ConfPort: port,
		ConfID:   id,
		ConfType: typ,
	}, nil
}

// SetupEntry implements platform.Integration.
func (i *Integration) SetupEntry(ctx context.Context, e *platform.Entry, add platform.AddLightsFunc) error {
	ep, family, id, err := entryConfig(e)
	if err != nil {
		return err
	}

	if _, err := core.SetupHandler(ctx, i.registry, ep, i.timing.ConnectTimeout); err != nil {
		i.logger.Warn("led controller not ready", "entry", e.ID, "endpoint", ep.String(), "error", err)
		return core.HostError(err)
	}
	e.RuntimeData = ep

	light, err := i.newLight(e, family, id)
	if err != nil {
		return err
	}
	add([]platform.Light{light}, true)
	return nil
}

// newLight looks the handler up from the entry's runtime data and binds
// the configured controller to it.
func (i *Integration) newLight(e *platform.Entry, family driver.Family, id int) (*core.Light, error) {
	ep, ok := e.RuntimeData.(driver.Endpoint)
	if !ok {
		return nil, fmt.Errorf("entry %s has no endpoint", e.ID)
	}
	h, err := i.registry.Get(ep)
	if err != nil {
		return nil, err
	}
	c, err := core.NewController(family, h, id)
	if err != nil {
		return nil, err
	}

	uid := UniqueID(family, id, ep)
	opts := i.timing.LightOptions()
	opts.UniqueID = uid
	opts.Name = lightName(family, id)
	opts.Device = platform.DeviceInfo{
		Identifier:   uid,
		Name:         string(family) + " LED Controller",
		Manufacturer: string(family),
		Model:        model,
		SWVersion:    swVersion,
	}
	opts.Logger = i.logger
	return core.NewLight(c, opts), nil
}

// UnloadEntry implements platform.Integration. The shared handler stays in
// the registry for other entries.
func (i *Integration) UnloadEntry(_ context.Context, e *platform.Entry) error {
	i.logger.Debug("led controller entry unloaded", "entry", e.ID)
	return nil
}

// LightIDs implements platform.LightIDer: one light per entry.
func (i *Integration) LightIDs(e *platform.Entry) ([]string, error) {
	ep, family, id, err := entryConfig(e)
	if err != nil {
		return nil, err
	}
	return []string{UniqueID(family, id, ep)}, nil
}

// UniqueID returns the stable light id for a channel, e.g.
// "led_controller_light_3_10.0.0.5:4010". OnlyGlass channels use id 0.
func UniqueID(family driver.Family, id int, ep driver.Endpoint) string {
	if family == driver.FamilyOnlyGlass {
		id = 0
	}
	return fmt.Sprintf("led_controller_light_%d_%s", id, ep.HostPort())
}

func lightName(family driver.Family, id int) string {
	if family == driver.FamilyOnlyGlass {
		return "Brightness"
	}
	return fmt.Sprintf("Module #%d", id)
}

// entryConfig reads a persisted entry. Entries are validated on creation,
// so failures here mean the stored data was edited by hand.
func entryConfig(e *platform.Entry) (driver.Endpoint, driver.Family, int, error) {
	ep := driver.Endpoint{Host: e.String(ConfHost)}
	port, ok := e.Int(ConfPort)
	if !ok {
		port = driver.DefaultPort
	}
	ep.Port = port
	if err := ep.Validate(); err != nil {
		return ep, "", 0, err
	}

	family, err := driver.ParseFamily(e.String(ConfType))
	if err != nil {
		return ep, "", 0, err
	}
	id, ok := e.Int(ConfID)
	if !ok {
		id = defaultID
	}
	return ep, family, id, nil
}

func familyNames() []string {
	fams := driver.Families()
	out := make([]string, 0, len(fams))
	for _, f := range fams {
		out = append(out, string(f))
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
