package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdav/caldavd/pkg/ical"
)

func event(uid, comp, summary string, start, end time.Time) *ical.Event {
	return &ical.Event{
		UID:           uid,
		ComponentType: comp,
		Summary:       summary,
		Start:         start,
		End:           end,
	}
}

func TestTextMatch_CaseInsensitiveContains(t *testing.T) {
	tm := TextMatch{MatchType: MatchContains, Needle: "standup"}
	assert.True(t, tm.matchesValue("Daily Standup Meeting", true))
	assert.False(t, tm.matchesValue("Retro", true))
}

func TestTextMatch_NegateCondition(t *testing.T) {
	tm := TextMatch{MatchType: MatchEquals, Needle: "cancelled", NegateCondition: true}
	assert.True(t, tm.matchesValue("scheduled", true))
	assert.False(t, tm.matchesValue("cancelled", true))
}

func TestTextMatch_AbsentPropertyOnlyMatchesWhenNegated(t *testing.T) {
	positive := TextMatch{MatchType: MatchEquals, Needle: "x"}
	negative := TextMatch{MatchType: MatchEquals, Needle: "x", NegateCondition: true}
	assert.False(t, positive.matchesValue("", false))
	assert.True(t, negative.matchesValue("", false))
}

func TestTimeRange_Overlaps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: base, End: base.Add(24 * time.Hour)}

	assert.True(t, tr.Overlaps(base.Add(-time.Hour), base.Add(time.Hour)))
	assert.False(t, tr.Overlaps(base.Add(-48*time.Hour), base.Add(-25*time.Hour)))
	assert.False(t, tr.Overlaps(base.Add(25*time.Hour), base.Add(26*time.Hour)))
}

func TestTimeRange_OpenBounds(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	openStart := TimeRange{End: base}
	assert.True(t, openStart.Overlaps(base.AddDate(-10, 0, 0), base.Add(-time.Hour)))

	openEnd := TimeRange{Start: base}
	assert.True(t, openEnd.Overlaps(base.Add(time.Hour), base.AddDate(10, 0, 0)))
}

func TestMatches_ComponentNameFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := event("1", "VEVENT", "Standup", now, now.Add(time.Hour))

	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{Name: "VEVENT"},
		},
	}
	assert.True(t, Matches(root, []*ical.Event{ev}))

	rootTodo := CompFilter{
		Name:        "VCALENDAR",
		CompFilters: []CompFilter{{Name: "VTODO"}},
	}
	assert.False(t, Matches(rootTodo, []*ical.Event{ev}))
}

func TestMatches_IsNotDefined(t *testing.T) {
	now := time.Now()
	ev := event("1", "VEVENT", "Standup", now, now.Add(time.Hour))

	root := CompFilter{
		Name:        "VCALENDAR",
		CompFilters: []CompFilter{{Name: "VTODO", IsNotDefined: true}},
	}
	assert.True(t, Matches(root, []*ical.Event{ev}))

	rootEmpty := CompFilter{IsNotDefined: true}
	assert.True(t, Matches(rootEmpty, nil))
	assert.False(t, Matches(rootEmpty, []*ical.Event{ev}))
}

func TestMatches_TimeRangeAndPropFilterCombine(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ev := event("1", "VEVENT", "Budget review", start, end)

	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{
				Name:      "VEVENT",
				TimeRange: &TimeRange{Start: start.Add(-time.Minute), End: end.Add(time.Minute)},
				PropFilters: []PropFilter{
					{Name: "SUMMARY", TextMatch: &TextMatch{MatchType: MatchContains, Needle: "budget"}},
				},
			},
		},
	}
	assert.True(t, Matches(root, []*ical.Event{ev}))

	rootOutsideWindow := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{Name: "VEVENT", TimeRange: &TimeRange{Start: end.Add(time.Hour), End: end.Add(2 * time.Hour)}},
		},
	}
	assert.False(t, Matches(rootOutsideWindow, []*ical.Event{ev}))
}

func TestMatches_PropFilterIsNotDefined(t *testing.T) {
	ev := event("1", "VTODO", "", time.Now(), time.Time{})
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{Name: "VTODO", PropFilters: []PropFilter{{Name: "SUMMARY", IsNotDefined: true}}},
		},
	}
	assert.True(t, Matches(root, []*ical.Event{ev}))
}

func TestPrefilter_FindsOutermostTimeRange(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{Name: "VEVENT", TimeRange: &TimeRange{Start: start, End: end}},
		},
	}
	gotStart, gotEnd, ok := Prefilter(root)
	require.True(t, ok)
	assert.Equal(t, start, gotStart)
	assert.Equal(t, end, gotEnd)
}

func TestPrefilter_NoTimeRangeReturnsNotOK(t *testing.T) {
	root := CompFilter{Name: "VCALENDAR", CompFilters: []CompFilter{{Name: "VEVENT"}}}
	_, _, ok := Prefilter(root)
	assert.False(t, ok)
}
