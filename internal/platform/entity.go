package platform

import (
	"context"
	"time"
)

// DeviceInfo groups entities under one device in clients.
// Entities sharing an Identifier belong to the same device.
type DeviceInfo struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SWVersion    string `json:"sw_version"`
}

// Light is a dimmable light entity.
//
// Brightness and IsOn are tri-state: the second return value is false
// until the entity has read its device at least once.
type Light interface {
	// UniqueID is stable across restarts.
	UniqueID() string
	Name() string
	DeviceInfo() DeviceInfo

	Brightness() (uint8, bool)
	IsOn() (on bool, known bool)

	// TurnOn sets brightness (255 when nil) and refreshes from the device.
	TurnOn(ctx context.Context, brightness *uint8) error
	// TurnOff sets brightness to zero and refreshes from the device.
	TurnOff(ctx context.Context) error
	// Update reads the device. Returns ErrUpdateFailed on failure.
	Update(ctx context.Context) error
}

// LightState is the host's snapshot of a light.
type LightState struct {
	UniqueID     string     `json:"unique_id"`
	EntryID      string     `json:"entry_id"`
	Domain       string     `json:"domain"`
	Name         string     `json:"name"`
	IsOn         *bool      `json:"is_on"`
	Brightness   *uint8     `json:"brightness"`
	Available    bool       `json:"available"`
	UpdateFailed bool       `json:"update_failed"`
	LastError    string     `json:"last_error,omitempty"`
	Device       DeviceInfo `json:"device"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// sameReading reports whether two snapshots show the same observable state.
// LastUpdated and LastError are ignored.
func (s LightState) sameReading(o LightState) bool {
	return s.Available == o.Available &&
		s.UpdateFailed == o.UpdateFailed &&
		equalPtr(s.IsOn, o.IsOn) &&
		equalPtr(s.Brightness, o.Brightness)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StateOf reads a light into a snapshot. Update flags are left unset.
func StateOf(l Light) LightState {
	s := LightState{
		UniqueID: l.UniqueID(),
		Name:     l.Name(),
		Device:   l.DeviceInfo(),
	}
	if b, ok := l.Brightness(); ok {
		s.Brightness = &b
	}
	if on, ok := l.IsOn(); ok {
		s.IsOn = &on
	}
	s.Available = s.Brightness != nil
	return s
}
