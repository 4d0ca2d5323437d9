package state

import "sync/atomic"

// Event is a boolean condition flag shared between pipeline stages, the Go
// rendition of a threading event without wait semantics: consumers poll it
// on their own cadence.
type Event struct {
	set atomic.Bool
}

// NewEvent returns a cleared event.
func NewEvent() *Event { return &Event{} }

// Set raises the flag.
func (e *Event) Set() { e.set.Store(true) }

// Clear lowers the flag.
func (e *Event) Clear() { e.set.Store(false) }

// IsSet reports whether the flag is raised.
func (e *Event) IsSet() bool { return e.set.Load() }
