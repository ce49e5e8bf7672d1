package webdavxml

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type displayNameProp struct {
	Name        Name           `webdav:",tagname"`
	DisplayName string         `webdav:"displayname"`
	ResourceType *resourceType `webdav:"resourcetype"`
	Dead        []etree.Element `webdav:",untagged,flatten"`
}

type resourceType struct {
	Collection *struct{} `webdav:"collection"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := displayNameProp{
		DisplayName: "Home calendar",
	}
	out, err := Marshal(in, Root{Name: Name{Space: NSDAV, Local: "prop"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "displayname")
	assert.Contains(t, string(out), "Home calendar")
	assert.Contains(t, string(out), `xmlns:D="DAV:"`)

	var decoded displayNameProp
	require.NoError(t, Unmarshal(out, &decoded))
	assert.Equal(t, "Home calendar", decoded.DisplayName)
	assert.Equal(t, Name{Space: NSDAV, Local: "prop"}, decoded.Name)
}

func TestAttrAndTextFields(t *testing.T) {
	type hrefAttr struct {
		Lang string `webdav:"xml^lang,attr"`
		Text string `webdav:",text"`
	}
	in := hrefAttr{Lang: "en", Text: "/calendars/bob/"}
	out, err := Marshal(in, Root{Name: Name{Space: NSDAV, Local: "href"}})
	require.NoError(t, err)

	var decoded hrefAttr
	require.NoError(t, Unmarshal(out, &decoded))
	assert.Equal(t, "en", decoded.Lang)
	assert.Equal(t, "/calendars/bob/", decoded.Text)
}

func TestPropertyNames(t *testing.T) {
	names := PropertyNames(displayNameProp{})
	assert.Contains(t, names, Name{Local: "displayname"})
	assert.Contains(t, names, Name{Local: "resourcetype"})
	assert.True(t, HasProperty(displayNameProp{}, Name{Local: "displayname"}))
	assert.False(t, HasProperty(displayNameProp{}, Name{Local: "getetag"}))
}

func TestFlattenRepeatedElements(t *testing.T) {
	type hrefs struct {
		Href []string `webdav:"DAV:^href,flatten"`
	}
	in := hrefs{Href: []string{"/a/", "/b/", "/c/"}}
	out, err := Marshal(in, Root{Name: Name{Space: NSDAV, Local: "multistatus"}})
	require.NoError(t, err)

	var decoded hrefs
	require.NoError(t, Unmarshal(out, &decoded))
	assert.Equal(t, []string{"/a/", "/b/", "/c/"}, decoded.Href)
}

func TestDeadPropertyRoundTrip(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?><D:prop xmlns:D="DAV:" xmlns:X="http://example.com/ns"><X:custom-prop attr="1"><X:nested>value</X:nested></X:custom-prop></D:prop>`)

	var decoded displayNameProp
	require.NoError(t, Unmarshal(raw, &decoded))
	require.Len(t, decoded.Dead, 1)
	assert.Equal(t, "custom-prop", decoded.Dead[0].Tag)
}
