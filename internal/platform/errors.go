package platform

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Host failure vocabulary. Integrations and entities translate their own
// errors into these before returning them to the host.
//
//	if errors.Is(err, platform.ErrNotReady) {
//	    // host retries setup with backoff
//	}
var (
	// ErrNotReady is returned by an integration when an entry cannot be set up
	// yet. The host retries setup on its own schedule.
	ErrNotReady = errors.New("platform: not ready")

	// ErrUpdateFailed is returned by an entity when it could not refresh its state.
	ErrUpdateFailed = errors.New("platform: update failed")

	// ErrCommandFailed is returned by an entity when a command was not applied.
	ErrCommandFailed = errors.New("platform: command failed")
)

// Host errors.
var (
	// ErrIntegrationNotFound is returned when no integration is registered for a domain.
	ErrIntegrationNotFound = errors.New("platform: integration not found")

	// ErrIntegrationExists is returned when registering a domain twice.
	ErrIntegrationExists = errors.New("platform: integration already registered")

	// ErrEntryNotFound is returned when a config entry ID does not exist.
	ErrEntryNotFound = errors.New("platform: entry not found")

	// ErrEntryExists is returned when persisting an entry whose ID is taken.
	ErrEntryExists = errors.New("platform: entry already exists")

	// ErrEntityNotFound is returned when a light unique ID is not loaded.
	ErrEntityNotFound = errors.New("platform: entity not found")

	// ErrInvalidInput is returned when config flow input fails validation.
	// The concrete error is a FieldErrors.
	ErrInvalidInput = errors.New("platform: invalid input")

	// ErrHostStopped is returned by operations after Stop.
	ErrHostStopped = errors.New("platform: host stopped")
)

// ReasonAlreadyConfigured is the FieldErrors message, under the "base"
// key, for input whose lights another entry already provides.
const ReasonAlreadyConfigured = "already_configured"

// FieldErrors maps config flow field names to a short message such as
// "required".
type FieldErrors map[string]string

// Error implements error.
func (fe FieldErrors) Error() string {
	keys := slices.Sorted(maps.Keys(fe))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, fe[k]))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, ", "))
}

// Is reports ErrInvalidInput as a match.
func (fe FieldErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// NotReady returns an ErrNotReady carrying msg.
func NotReady(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotReady, msg)
}

// UpdateFailed returns an ErrUpdateFailed carrying msg.
func UpdateFailed(msg string) error {
	return fmt.Errorf("%w: %s", ErrUpdateFailed, msg)
}

// CommandFailed returns an ErrCommandFailed carrying msg.
func CommandFailed(msg string) error {
	return fmt.Errorf("%w: %s", ErrCommandFailed, msg)
}
