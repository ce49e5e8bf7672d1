package ical

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Ruleset is a closed structure able to enumerate an event's recurrence
// instances between two instants, capped at maxRecurrenceInstances. RRULE,
// RDATE, and EXDATE are honoured; EXRULE is deliberately not supported
// (deprecated by RFC 5545 §3.8.5.2).
type Ruleset struct {
	event *Event
}

// RecurrenceRuleset builds the closed enumerable structure for event. It
// returns a usable (possibly non-recurring) ruleset even when event has no
// RRULE/RDATE, in which case Between yields at most the event's own start.
func RecurrenceRuleset(event *Event) *Ruleset {
	return &Ruleset{event: event}
}

// Between enumerates instance start times in [start, end), capped at
// maxRecurrenceInstances regardless of how the underlying RRULE is phrased.
func (rs *Ruleset) Between(start, end time.Time) ([]time.Time, error) {
	event := rs.event
	if !event.IsRecurring {
		if event.Start.Before(end) && !event.Start.Before(start) {
			return []time.Time{event.Start}, nil
		}
		return nil, nil
	}

	var instances []time.Time
	if event.RRule != "" {
		rruleStr := "DTSTART:" + event.Start.Format("20060102T150405Z") + "\nRRULE:" + event.RRule
		rule, err := rrule.StrToRRule(rruleStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE: %w", err)
		}
		for _, t := range rule.Between(start, end, true) {
			if t.Before(end) {
				instances = append(instances, t)
			}
		}
	}
	for _, d := range event.RDates {
		if !d.Before(start) && d.Before(end) {
			instances = append(instances, d)
		}
	}
	instances = filterExcludedDates(instances, event.ExDates)

	if len(instances) > maxRecurrenceInstances {
		instances = instances[:maxRecurrenceInstances]
	}
	return instances, nil
}

// FirstOccurrence returns the earliest instance start time, honouring
// RRULE/RDATE/EXDATE, or the event's own DTSTART if it does not recur.
func FirstOccurrence(event *Event) (time.Time, error) {
	if !event.IsRecurring {
		return event.Start, nil
	}
	instances, err := RecurrenceRuleset(event).Between(event.Start, event.Start.AddDate(100, 0, 0))
	if err != nil {
		return time.Time{}, err
	}
	if len(instances) == 0 {
		return event.Start, nil
	}
	first := instances[0]
	for _, t := range instances[1:] {
		if t.Before(first) {
			first = t
		}
	}
	return first, nil
}

// LastOccurrence returns the latest instance start time within a bounded
// 100-year lookahead, or nil when the recurrence has no discoverable end
// within that window (an unbounded RRULE with no UNTIL/COUNT).
func LastOccurrence(event *Event) (*time.Time, error) {
	if !event.IsRecurring {
		end := event.Start
		return &end, nil
	}
	if event.RRule != "" {
		rule, err := rrule.StrToRRule("DTSTART:" + event.Start.Format("20060102T150405Z") + "\nRRULE:" + event.RRule)
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE: %w", err)
		}
		if rule.OrigOptions.Count == 0 && rule.OrigOptions.Until.IsZero() {
			return nil, nil
		}
	}
	instances, err := RecurrenceRuleset(event).Between(event.Start, event.Start.AddDate(100, 0, 0))
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}
	last := instances[0]
	for _, t := range instances[1:] {
		if t.After(last) {
			last = t
		}
	}
	return &last, nil
}
