package ledcontroller

import "time"

// Timing groups the tunable delays and timeouts used by integrations.
//
// The controllers need time to settle after a write or a registration; the
// defaults match what the hardware has been observed to tolerate.
type Timing struct {
	// ConnectTimeout bounds the single connect attempt during setup.
	ConnectTimeout time.Duration

	// CommandTimeout and UpdateTimeout bound one write or read.
	CommandTimeout time.Duration
	UpdateTimeout  time.Duration

	// RefreshDelay is waited between a command and its read-back.
	RefreshDelay time.Duration

	// RegistrationDelay spaces Manager registrations on one endpoint.
	RegistrationDelay time.Duration
}

// DefaultTiming returns the default delays and timeouts.
func DefaultTiming() Timing {
	return Timing{
		ConnectTimeout:    10 * time.Second,
		CommandTimeout:    5 * time.Second,
		UpdateTimeout:     5 * time.Second,
		RefreshDelay:      500 * time.Millisecond,
		RegistrationDelay: 500 * time.Millisecond,
	}
}

// LightOptions returns LightOptions carrying t's command timings.
// Identity fields are left for the caller.
func (t Timing) LightOptions() LightOptions {
	return LightOptions{
		RefreshDelay:   t.RefreshDelay,
		CommandTimeout: t.CommandTimeout,
		UpdateTimeout:  t.UpdateTimeout,
	}
}
