package model

import "time"

// Event represents a single reminder entry for the current day, regardless of
// which source (backend API, Google Calendar, ICS subscription) produced it.
//
// ID must be stable across repeated fetches of the same logical event within a
// day; reminder state is keyed by it.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`

	// ScheduledTime is the event start, in the configured display timezone.
	// Immutable after creation.
	ScheduledTime time.Time `json:"scheduled_time"`

	// Triggered is latched to true once the event has been dismissed (voice
	// command, stop button) or marked done upstream. It never goes back to
	// false within a day; a new day's reload starts fresh.
	Triggered bool `json:"triggered"`
}

// Status is the derived display/alarm state of an event at a given instant.
// It is recomputed on every evaluation tick and never persisted.
type Status string

const (
	StatusUpcoming     Status = "upcoming"
	StatusStartingSoon Status = "starting_soon"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusExpired      Status = "expired"
)

// EventStatus pairs an event snapshot with its classified status for
// presentation. Event is a copy so renderers never observe a half-applied
// tick mutation.
type EventStatus struct {
	Event  Event  `json:"event"`
	Status Status `json:"status"`
}
