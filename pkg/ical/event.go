package ical

import "time"

// Event is the in-memory projection of one VEVENT (or a VTODO/VJOURNAL
// sharing the same shape) used by recurrence expansion and filter
// evaluation. It is derived from, and can be re-serialized back into, the
// stored iCalendar bytes in RawData.
type Event struct {
	UID           string
	ComponentType string // VEVENT, VTODO, or VJOURNAL
	Summary       string
	Description   string
	Location      string
	Start         time.Time
	End           time.Time
	Duration      time.Duration
	IsAllDay      bool
	IsRecurring   bool
	RRule         string
	RDates        []time.Time
	ExDates       []time.Time
	RecurrenceID  *time.Time

	RawData []byte
}
