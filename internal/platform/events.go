package platform

import (
	"time"
)

// EventType names a host event.
type EventType string

// Event types.
const (
	EventStateChanged EventType = "light.state_changed"
	EventLightRemoved EventType = "light.removed"
	EventCommand      EventType = "light.command"
	EventEntryChanged EventType = "entry.state_changed"
)

// CommandResult describes a completed turn_on / turn_off.
type CommandResult struct {
	UniqueID string        `json:"unique_id"`
	Action   string        `json:"action"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Event is delivered to listeners. Exactly one of State, Command or Entry
// is set, according to Type.
type Event struct {
	Type    EventType      `json:"type"`
	Source  string         `json:"source,omitempty"`
	State   *LightState    `json:"state,omitempty"`
	Command *CommandResult `json:"command,omitempty"`
	Entry   *Entry         `json:"entry,omitempty"`
	Time    time.Time      `json:"time"`
}

// Listener receives host events. Listeners run synchronously on the
// goroutine that produced the event and must not block.
type Listener func(Event)

// Subscribe registers l and returns a function that removes it.
func (h *Host) Subscribe(l Listener) (unsubscribe func()) {
	h.listenersMu.Lock()
	id := h.nextListener
	h.nextListener++
	h.listeners[id] = l
	h.listenersMu.Unlock()

	return func() {
		h.listenersMu.Lock()
		delete(h.listeners, id)
		h.listenersMu.Unlock()
	}
}

func (h *Host) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.listenersMu.RLock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.listenersMu.RUnlock()

	for _, l := range listeners {
		h.deliver(l, ev)
	}
}

// deliver calls l, recovering from panics so one listener cannot take the
// host down.
func (h *Host) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in event listener", "event", string(ev.Type), "panic", r)
		}
	}()
	l(ev)
}
