package platform

import (
	"encoding/json"
	"time"
)

// EntryState is the lifecycle state of a config entry.
type EntryState string

// Entry states.
const (
	EntryNotLoaded       EntryState = "not_loaded"
	EntrySetupInProgress EntryState = "setup_in_progress"
	EntryLoaded          EntryState = "loaded"
	EntrySetupRetry      EntryState = "setup_retry"
	EntrySetupError      EntryState = "setup_error"
)

// Entry is one configured integration instance.
//
// Domain, Title and Data are persisted. State and Reason are runtime only.
// RuntimeData belongs to the integration that set the entry up.
type Entry struct {
	ID        string         `json:"id"`
	Domain    string         `json:"domain"`
	Title     string         `json:"title"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	State  EntryState `json:"state"`
	Reason string     `json:"reason,omitempty"`

	RuntimeData any `json:"-"`
}

// String returns Data[key] as a string, or "" when absent or not a string.
func (e *Entry) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Int returns Data[key] as an int. Values that came back from JSON are
// float64 or json.Number; both are accepted when integral.
func (e *Entry) Int(key string) (int, bool) {
	return ToInt(e.Data[key])
}

// ToInt converts a config flow value to an int the same way Entry.Int does.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func (e *Entry) clone() Entry {
	c := *e
	c.Data = make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		c.Data[k] = v
	}
	return c
}
