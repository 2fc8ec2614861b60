package ledcontroller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/driver"
)

// Controller is one addressable LED device behind a shared handler.
//
// Writes never touch the cached brightness; only Update refreshes it.
type Controller interface {
	// Type returns the hardware family.
	Type() driver.Family

	// ID returns the module id. OnlyGlass controllers report 0.
	ID() int

	// Handler returns the shared handler. The controller does not own it.
	Handler() driver.Handler

	// SetBrightness8Bit writes v (0..255). KindCommand on failure.
	SetBrightness8Bit(ctx context.Context, v uint8) error

	// SetBrightnessPercent writes p (0..100). KindCommand on failure.
	SetBrightnessPercent(ctx context.Context, p int) error

	// Update reads the device and refreshes the cached brightness.
	// KindNoData when the device has not reported usable data, KindUpdate
	// for any other failure.
	Update(ctx context.Context) error

	// Brightness returns the cached value and whether Update ever succeeded.
	Brightness() (uint8, bool)
}

// constructors selects the binding for each supported family.
var constructors = map[driver.Family]func(h driver.Handler, id int) Controller{
	driver.FamilyMultivision: func(h driver.Handler, id int) Controller { return NewMultivision(h, id) },
	driver.FamilyOnlyGlass:   func(h driver.Handler, _ int) Controller { return NewOnlyGlass(h) },
}

// NewController builds the controller for family. id is ignored for
// families with a single channel.
func NewController(family driver.Family, h driver.Handler, id int) (Controller, error) {
	build, ok := constructors[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, family)
	}
	return build(h, id), nil
}

// binding holds what every family shares: the handler, the target address
// and the cached brightness.
type binding struct {
	handler driver.Handler
	target  driver.Target

	mu         sync.RWMutex
	brightness uint8
	known      bool
}

func (b *binding) Type() driver.Family     { return b.target.Family }
func (b *binding) ID() int                 { return b.target.Module }
func (b *binding) Handler() driver.Handler { return b.handler }

func (b *binding) SetBrightness8Bit(ctx context.Context, v uint8) error {
	return b.write(ctx, "set_brightness_8bit", driver.Unit8Bit, int(v))
}

func (b *binding) SetBrightnessPercent(ctx context.Context, p int) error {
	return b.write(ctx, "set_brightness_percent", driver.UnitPercent, p)
}

func (b *binding) write(ctx context.Context, op string, u driver.Unit, v int) error {
	if err := b.handler.Write(ctx, b.target, u, v); err != nil {
		return &Error{Kind: KindCommand, Op: op + " " + b.target.String(), Endpoint: b.handler.Endpoint(), Err: err}
	}
	return nil
}

func (b *binding) Update(ctx context.Context) error {
	v, err := b.handler.Read(ctx, b.target)
	if err != nil {
		kind := KindUpdate
		if errors.Is(err, driver.ErrNoData) || errors.Is(err, driver.ErrMalformedResponse) {
			kind = KindNoData
		}
		return &Error{Kind: kind, Op: "update " + b.target.String(), Endpoint: b.handler.Endpoint(), Err: err}
	}

	b.mu.Lock()
	b.brightness = v
	b.known = true
	b.mu.Unlock()
	return nil
}

func (b *binding) Brightness() (uint8, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.brightness, b.known
}

// Multivision is one numbered module on a multi-channel controller.
type Multivision struct {
	binding
}

var _ Controller = (*Multivision)(nil)

// NewMultivision binds module id on h.
func NewMultivision(h driver.Handler, id int) *Multivision {
	return &Multivision{binding{
		handler: h,
		target:  driver.Target{Family: driver.FamilyMultivision, Module: id},
	}}
}

// OnlyGlass is the single channel of an OnlyGlass controller.
type OnlyGlass struct {
	binding
}

var _ Controller = (*OnlyGlass)(nil)

// NewOnlyGlass binds the channel on h.
func NewOnlyGlass(h driver.Handler) *OnlyGlass {
	return &OnlyGlass{binding{
		handler: h,
		target:  driver.Target{Family: driver.FamilyOnlyGlass},
	}}
}
