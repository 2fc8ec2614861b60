// Package multivision is the Multivision integration (domain
// "multivision_ha").
//
// One config entry covers a whole Multivision controller: count modules
// numbered 1..count behind one endpoint. Setup connects the endpoint's
// shared handler and registers the modules one by one through a Manager,
// which reads each module once and pauses between registrations.
package multivision

import (
	"context"
	"errors"
	"fmt"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/integrations/configflow"
	core "github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/ledcontroller"
	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// Domain is the integration key.
const Domain = "multivision_ha"

// Config flow keys.
const (
	ConfHost  = "host"
	ConfPort  = "port"
	ConfCount = "count"
)

const (
	defaultCount = 1
	title        = "Multivision LED Controller"
	deviceName   = "Multivision LED Controller"
	model        = "TCP LED Controller"
	swVersion    = "1.0"
)

// Options configures the integration.
type Options struct {
	// Registry is shared with every other integration in the process, so a
	// Multivision entry and a generic entry on one endpoint share a handler.
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
// Fields: host (required), port (default 4010) and count (positive,
// default 1).
func (i *Integration) ValidateInput(input map[string]any) (string, map[string]any, error) {
	f := configflow.NewForm(input)
	host := f.Host(ConfHost)
	port := f.Port(ConfPort, driver.DefaultPort)
	count := f.PositiveInt(ConfCount, defaultCount)
	if err := f.Err(); err != nil {
		return "", nil, err
	}
	return title, map[string]any{
		ConfHost:  host,
		ConfPort:  port,
		ConfCount: count,
	}, nil
}

// SetupEntry implements platform.Integration.
//
// A module whose first read fails is still exposed, with unknown state,
// and the host's polling picks it up once it answers.
func (i *Integration) SetupEntry(ctx context.Context, e *platform.Entry, add platform.AddLightsFunc) error {
	ep, count, err := entryConfig(e)
	if err != nil {
		return err
	}

	h, err := core.SetupHandler(ctx, i.registry, ep, i.timing.ConnectTimeout)
	if err != nil {
		i.logger.Warn("multivision controller not ready", "entry", e.ID, "endpoint", ep.String(), "error", err)
		return core.HostError(err)
	}

	m := core.NewManager(h, i.timing.RegistrationDelay)
	m.SetLogger(i.logger)

	lights := make([]platform.Light, 0, count)
	for id := 1; id <= count; id++ {
		c, err := m.AddController(ctx, driver.FamilyMultivision, id)
		if c == nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return platform.NotReady(fmt.Sprintf("registering module %d: %v", id, ctxErr))
			}
			return fmt.Errorf("registering module %d: %w", id, err)
		}
		if err != nil {
			i.logger.Warn("multivision module did not answer", "entry", e.ID, "module", id, "error", err)
		}
		lights = append(lights, i.newLight(e, c, ep))
	}

	e.RuntimeData = m
	add(lights, false)
	return nil
}

func (i *Integration) newLight(e *platform.Entry, c core.Controller, ep driver.Endpoint) *core.Light {
	opts := i.timing.LightOptions()
	opts.UniqueID = UniqueID(c.ID(), ep)
	opts.Name = fmt.Sprintf("LED Controller #%d", c.ID())
	opts.Device = platform.DeviceInfo{
		Identifier:   e.ID,
		Name:         deviceName,
		Manufacturer: string(driver.FamilyMultivision),
		Model:        model,
		SWVersion:    swVersion,
	}
	opts.Logger = i.logger
	return core.NewLight(c, opts)
}

// UnloadEntry implements platform.Integration. The manager is dropped with
// the entry; the handler stays in the registry.
func (i *Integration) UnloadEntry(_ context.Context, e *platform.Entry) error {
	if _, ok := e.RuntimeData.(*core.Manager); !ok {
		return errors.New("entry has no multivision manager")
	}
	i.logger.Debug("multivision entry unloaded", "entry", e.ID)
	return nil
}

// LightIDs implements platform.LightIDer: one light per module.
func (i *Integration) LightIDs(e *platform.Entry) ([]string, error) {
	ep, count, err := entryConfig(e)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, count)
	for id := 1; id <= count; id++ {
		ids = append(ids, UniqueID(id, ep))
	}
	return ids, nil
}

// UniqueID returns the stable light id of a module, e.g.
// "multivision_led_2_@_10.0.0.5:4010".
func UniqueID(id int, ep driver.Endpoint) string {
	return fmt.Sprintf("multivision_led_%d_@_%s", id, ep.HostPort())
}

func entryConfig(e *platform.Entry) (driver.Endpoint, int, error) {
	ep := driver.Endpoint{Host: e.String(ConfHost)}
	port, ok := e.Int(ConfPort)
	if !ok {
		port = driver.DefaultPort
	}
	ep.Port = port
	if err := ep.Validate(); err != nil {
		return ep, 0, err
	}

	count, ok := e.Int(ConfCount)
	if !ok {
		count = defaultCount
	}
	if count < 1 {
		return ep, 0, fmt.Errorf("count must be positive, got %d", count)
	}
	return ep, count, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
