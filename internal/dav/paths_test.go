package dav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_ServiceRoot(t *testing.T) {
	p, ok := ParsePath("/caldav")
	require.True(t, ok)
	assert.True(t, p.IsServiceRoot())
	assert.Equal(t, TreeCalDAV, p.Tree)

	p2, ok2 := ParsePath("/carddav/")
	require.True(t, ok2)
	assert.True(t, p2.IsServiceRoot())
	assert.Equal(t, TreeCardDAV, p2.Tree)
}

func TestParsePath_UnknownTreeRejected(t *testing.T) {
	_, ok := ParsePath("/dav/principal/alice")
	assert.False(t, ok)
}

func TestParsePath_PrincipalOnly(t *testing.T) {
	p, ok := ParsePath("/caldav/principal/alice")
	require.True(t, ok)
	assert.True(t, p.IsPrincipal())
	assert.Equal(t, "alice", p.PrincipalID)
}

func TestParsePath_RequiresPrincipalSegment(t *testing.T) {
	_, ok := ParsePath("/caldav/other/alice")
	assert.False(t, ok)
}

func TestParsePath_CalDAVFullObjectPath(t *testing.T) {
	p, ok := ParsePath("/caldav/principal/alice/calendars/work/event1.ics")
	require.True(t, ok, "full-depth calendar object path must parse")
	assert.Equal(t, "alice", p.PrincipalID)
	assert.Equal(t, "calendars", p.Seg1)
	assert.Equal(t, "work", p.Seg2)
	assert.Equal(t, "event1.ics", p.Seg3)
}

func TestParsePath_CalDAVCollectionPath(t *testing.T) {
	p, ok := ParsePath("/caldav/principal/alice/calendars/work")
	require.True(t, ok)
	assert.Equal(t, "calendars", p.Seg1)
	assert.Equal(t, "work", p.Seg2)
	assert.Empty(t, p.Seg3)
}

func TestParsePath_CalDAVTooDeepRejected(t *testing.T) {
	_, ok := ParsePath("/caldav/principal/alice/calendars/work/event1.ics/extra")
	assert.False(t, ok)
}

func TestParsePath_CardDAVFullObjectPath(t *testing.T) {
	p, ok := ParsePath("/carddav/principal/alice/contacts/card1.vcf")
	require.True(t, ok, "full-depth address object path must parse")
	assert.Equal(t, "alice", p.PrincipalID)
	assert.Equal(t, "contacts", p.Seg1)
	assert.Equal(t, "card1.vcf", p.Seg2)
	assert.Empty(t, p.Seg3)
}

func TestParsePath_CardDAVTooDeepRejected(t *testing.T) {
	_, ok := ParsePath("/carddav/principal/alice/contacts/card1.vcf/extra")
	assert.False(t, ok)
}
