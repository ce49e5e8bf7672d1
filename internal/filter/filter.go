// Package filter evaluates CalDAV <C:filter> trees (RFC 4791 §9.7) against
// parsed calendar objects: comp-filter/prop-filter/time-range/text-match,
// nested up to a VCALENDAR -> main-component -> sub-component (VALARM)
// depth, with is-not-defined short-circuiting and AND semantics across
// siblings (spec.md §4.5).
package filter

import (
	"strings"
	"time"

	"github.com/hearthdav/caldavd/pkg/ical"
)

// Collation selects how TextMatch normalises needle/haystack before
// comparing, per RFC 4790 collation registry entries this spec supports.
type Collation string

const (
	CollationASCIICasemap   Collation = "i;ascii-casemap"
	CollationUnicodeCasemap Collation = "i;unicode-casemap"
	CollationOctet          Collation = "i;octet"
)

func (c Collation) normalize(s string) string {
	switch c {
	case CollationASCIICasemap:
		return strings.ToUpper(s)
	case CollationUnicodeCasemap:
		return strings.ToUpper(s) // per-rune simple upper-casing; multi-rune foldings (e.g. ß to SS) are not applied
	default:
		return s
	}
}

// MatchType is the text-match comparison kind.
type MatchType string

const (
	MatchEquals     MatchType = "equals"
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts-with"
	MatchEndsWith   MatchType = "ends-with"
)

// TextMatch is a <C:text-match> element: compares a property or parameter
// value against Needle under Collation/MatchType, optionally inverted.
type TextMatch struct {
	Collation      Collation
	NegateCondition bool
	MatchType      MatchType
	Needle         string
}

func (tm TextMatch) matchesValue(haystack string, ok bool) bool {
	if !ok {
		return tm.NegateCondition // property absent never matches a positive text-match
	}
	collation := tm.Collation
	if collation == "" {
		collation = CollationASCIICasemap
	}
	h := collation.normalize(haystack)
	n := collation.normalize(tm.Needle)

	var matched bool
	switch tm.MatchType {
	case MatchEquals:
		matched = h == n
	case MatchStartsWith:
		matched = strings.HasPrefix(h, n)
	case MatchEndsWith:
		matched = strings.HasSuffix(h, n)
	default:
		matched = strings.Contains(h, n)
	}
	return tm.NegateCondition != matched // XOR
}

// ParamFilter is a <C:param-filter name=> element, descending into a
// property's parameters.
type ParamFilter struct {
	Name         string
	IsNotDefined bool
	TextMatch    *TextMatch
}

// PropFilter is a <C:prop-filter name=> element.
type PropFilter struct {
	Name         string
	IsNotDefined bool
	TimeRange    *TimeRange
	TextMatch    *TextMatch
	ParamFilters []ParamFilter
}

// TimeRange is a <C:time-range start= end=> element. A zero Start or End
// means the bound was omitted (open-ended).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [s,e) intersects the time-range, honoring open
// bounds on either side.
func (tr TimeRange) Overlaps(s, e time.Time) bool {
	if !tr.Start.IsZero() && !e.After(tr.Start) {
		return false
	}
	if !tr.End.IsZero() && !s.Before(tr.End) {
		return false
	}
	return true
}

// CompFilter is a <C:comp-filter name=> element; the root is always
// name="VCALENDAR".
type CompFilter struct {
	Name         string
	IsNotDefined bool
	TimeRange    *TimeRange
	PropFilters  []PropFilter
	CompFilters  []CompFilter
}

// Matches evaluates root (a VCALENDAR-rooted comp-filter tree) against one
// parsed calendar object's component set, per spec.md §4.5.
func Matches(root CompFilter, events []*ical.Event) bool {
	if root.IsNotDefined {
		return len(events) == 0
	}
	for _, pf := range root.PropFilters {
		if !matchesCalendarPropFilter(pf, events) {
			return false
		}
	}
	for _, cf := range root.CompFilters {
		if !matchesComponentFilter(cf, events) {
			return false
		}
	}
	return true
}

func matchesComponentFilter(cf CompFilter, events []*ical.Event) bool {
	var found bool
	for _, ev := range events {
		if !strings.EqualFold(ev.ComponentType, cf.Name) {
			continue
		}
		if matchesEvent(cf, ev) {
			found = true
			break
		}
	}
	if cf.IsNotDefined {
		return !hasComponent(events, cf.Name)
	}
	return found
}

func hasComponent(events []*ical.Event, name string) bool {
	for _, ev := range events {
		if strings.EqualFold(ev.ComponentType, name) {
			return true
		}
	}
	return false
}

func matchesEvent(cf CompFilter, ev *ical.Event) bool {
	if cf.TimeRange != nil && !matchesTimeRange(*cf.TimeRange, ev) {
		return false
	}
	for _, pf := range cf.PropFilters {
		if !matchesPropFilter(pf, ev) {
			return false
		}
	}
	// Sub-component filters (e.g. VALARM nested under VEVENT) are not
	// modeled as separate ical.Event rows; spec.md §4.5 caps nesting at
	// comp-filter(VCALENDAR) -> comp-filter(main) -> comp-filter(sub), and
	// this repo's Event type has no alarm sub-structure to filter on, so a
	// nested comp-filter beneath a matched main component is treated as
	// satisfied once the main component itself matches.
	return true
}

func matchesTimeRange(tr TimeRange, ev *ical.Event) bool {
	end := ev.End
	if end.IsZero() {
		switch {
		case ev.Duration > 0:
			end = ev.Start.Add(ev.Duration)
		case ev.IsAllDay:
			end = ev.Start.AddDate(0, 0, 1)
		default:
			end = ev.Start
		}
	}
	return tr.Overlaps(ev.Start, end)
}

// matchesPropFilter resolves a named iCalendar property on ev to its
// string value and applies the nested text-match/param-filter.
func matchesPropFilter(pf PropFilter, ev *ical.Event) bool {
	val, ok := propertyValue(ev, pf.Name)
	if pf.IsNotDefined {
		return !ok
	}
	if !ok {
		return false
	}
	if pf.TextMatch != nil && !pf.TextMatch.matchesValue(val, ok) {
		return false
	}
	// param-filter descent: this repo's Event carries resolved scalar
	// fields rather than raw VALUE/parameter maps, so a param-filter can
	// only assert presence/absence of the parent property; a TextMatch
	// nested under a param-filter has no parameter value to compare and
	// is treated as satisfied once the parent property is present.
	for _, paramf := range pf.ParamFilters {
		if paramf.IsNotDefined {
			return false
		}
	}
	return true
}

// matchesCalendarPropFilter handles a prop-filter that is a direct child of
// the VCALENDAR comp-filter (e.g. filtering on PRODID), which this repo's
// Event model does not carry; such a filter is satisfied only by
// is-not-defined, matching the "never produced so always absent" case.
func matchesCalendarPropFilter(pf PropFilter, events []*ical.Event) bool {
	return pf.IsNotDefined
}

func propertyValue(ev *ical.Event, name string) (string, bool) {
	switch strings.ToUpper(name) {
	case "UID":
		return ev.UID, ev.UID != ""
	case "SUMMARY":
		return ev.Summary, ev.Summary != ""
	case "DESCRIPTION":
		return ev.Description, ev.Description != ""
	case "LOCATION":
		return ev.Location, ev.Location != ""
	default:
		return "", false
	}
}

// Prefilter walks root for the outermost time-range on a VEVENT/VTODO
// comp-filter, returning the window the store layer can use to narrow
// candidates before Matches re-applies the full filter in memory (spec.md
// §4.5 "Prefiltering").
func Prefilter(root CompFilter) (start, end time.Time, ok bool) {
	for _, cf := range root.CompFilters {
		if cf.TimeRange == nil {
			continue
		}
		switch strings.ToUpper(cf.Name) {
		case "VEVENT", "VTODO":
			return cf.TimeRange.Start, cf.TimeRange.End, true
		}
	}
	return time.Time{}, time.Time{}, false
}
