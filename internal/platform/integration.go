package platform

import "context"

// AddLightsFunc hands entities to the host during setup. When
// updateBeforeAdd is true the host reads every light once before exposing it.
type AddLightsFunc func(lights []Light, updateBeforeAdd bool)

// Integration plugs a device family into the host.
type Integration interface {
	// Domain is the unique integration key, e.g. "ha-ledcontroller".
	Domain() string

	// ValidateInput applies defaults to config flow input and validates it.
	//
	// Returns:
	//   - title: Entry title
	//   - data: Normalised entry data to persist
	//   - err: FieldErrors on invalid input
	ValidateInput(input map[string]any) (title string, data map[string]any, err error)

	// SetupEntry connects the entry and registers its lights through add.
	// Return an ErrNotReady error to have the host retry later.
	SetupEntry(ctx context.Context, entry *Entry, add AddLightsFunc) error

	// UnloadEntry releases what SetupEntry acquired for this entry.
	UnloadEntry(ctx context.Context, entry *Entry) error
}

// LightIDer is implemented by integrations that can tell from an entry's
// data which light unique ids it will register. The host uses it to refuse
// a second entry for lights that are already configured.
type LightIDer interface {
	LightIDs(entry *Entry) ([]string, error)
}
