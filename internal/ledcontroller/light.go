package ledcontroller

import (
	"context"
	"sync"
	"time"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/platform"
)

// DefaultBrightness is used by TurnOn when no brightness is given.
const DefaultBrightness uint8 = 255

// noDataMessage is reported while the device has not answered usefully.
const noDataMessage = "didn't receive data from the device yet (or received invalid data)"

// LightOptions configures a Light.
type LightOptions struct {
	UniqueID string
	Name     string
	Device   platform.DeviceInfo

	// RefreshDelay is waited between a command and its read-back.
	RefreshDelay time.Duration

	// CommandTimeout and UpdateTimeout bound a single write or read.
	// Zero leaves the caller's context in charge.
	CommandTimeout time.Duration
	UpdateTimeout  time.Duration

	Logger Logger
}

// Light exposes one Controller as a dimmable platform.Light.
//
// State is read from the device, never assumed from a command: every
// TurnOn and TurnOff is followed by a read-back. Until the first successful
// read, Brightness and IsOn report unknown.
//
// Thread Safety: All methods are safe for concurrent use. Command and
// refresh sequences are serialised per light.
type Light struct {
	ctrl   Controller
	opts   LightOptions
	logger Logger

	// seq is held across write, delay and read-back.
	seq sync.Mutex
}

var _ platform.Light = (*Light)(nil)

// NewLight wraps c.
func NewLight(c Controller, opts LightOptions) *Light {
	l := &Light{ctrl: c, opts: opts, logger: noopLogger{}}
	if opts.Logger != nil {
		l.logger = opts.Logger
	}
	return l
}

// UniqueID implements platform.Light.
func (l *Light) UniqueID() string { return l.opts.UniqueID }

// Name implements platform.Light.
func (l *Light) Name() string { return l.opts.Name }

// DeviceInfo implements platform.Light.
func (l *Light) DeviceInfo() platform.DeviceInfo { return l.opts.Device }

// Controller returns the bound controller.
func (l *Light) Controller() Controller { return l.ctrl }

// Brightness implements platform.Light.
func (l *Light) Brightness() (uint8, bool) {
	return l.ctrl.Brightness()
}

// IsOn implements platform.Light. A light is on when its brightness is
// above zero; unknown while the brightness is unknown.
func (l *Light) IsOn() (bool, bool) {
	b, ok := l.ctrl.Brightness()
	if !ok {
		return false, false
	}
	return b > 0, true
}

// TurnOn writes brightness (DefaultBrightness when nil) and reads it back.
//
// Returns:
//   - error: platform.ErrCommandFailed if the write failed,
//     platform.ErrUpdateFailed if the read-back failed
func (l *Light) TurnOn(ctx context.Context, brightness *uint8) error {
	v := DefaultBrightness
	if brightness != nil {
		v = *brightness
	}

	l.seq.Lock()
	defer l.seq.Unlock()

	l.logger.Debug("setting light brightness", "light", l.opts.UniqueID, "brightness", v)

	cctx, cancel := withTimeout(ctx, l.opts.CommandTimeout)
	err := l.ctrl.SetBrightness8Bit(cctx, v)
	cancel()
	if err != nil {
		return translate(err)
	}
	return l.refresh(ctx, l.opts.RefreshDelay)
}

// TurnOff writes 0 percent and reads the device back.
func (l *Light) TurnOff(ctx context.Context) error {
	l.seq.Lock()
	defer l.seq.Unlock()

	l.logger.Debug("turning off light", "light", l.opts.UniqueID)

	cctx, cancel := withTimeout(ctx, l.opts.CommandTimeout)
	err := l.ctrl.SetBrightnessPercent(cctx, 0)
	cancel()
	if err != nil {
		return translate(err)
	}
	return l.refresh(ctx, l.opts.RefreshDelay)
}

// Update reads the device.
//
// Returns:
//   - error: platform.ErrUpdateFailed carrying the cause text
func (l *Light) Update(ctx context.Context) error {
	l.seq.Lock()
	defer l.seq.Unlock()
	return l.refresh(ctx, 0)
}

// refresh must be called with seq held.
func (l *Light) refresh(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return platform.UpdateFailed(ctx.Err().Error())
		case <-timer.C:
		}
	}

	uctx, cancel := withTimeout(ctx, l.opts.UpdateTimeout)
	defer cancel()
	if err := l.ctrl.Update(uctx); err != nil {
		l.logger.Debug("light update failed", "light", l.opts.UniqueID, "error", err)
		return translate(err)
	}
	return nil
}

// translate maps a package error onto the host vocabulary. Only the cause
// text crosses the boundary.
func translate(err error) error {
	kind, _ := KindOf(err)
	switch kind {
	case KindCommand:
		return platform.CommandFailed(err.Error())
	case KindNoData:
		return platform.UpdateFailed(noDataMessage)
	case KindNotReady:
		return platform.NotReady(err.Error())
	default:
		return platform.UpdateFailed(err.Error())
	}
}

// HostError translates an error from this package for the host.
// Integrations use it on setup paths.
func HostError(err error) error {
	if err == nil {
		return nil
	}
	return translate(err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
