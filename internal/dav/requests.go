package dav

import (
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

// propNameProbe captures one requested/dead property's qualified name
// without caring about its (empty, for requests) value or namespace tag —
// the mechanism pkg/webdavxml's untagged+flatten+tagname combination gives
// for "list every child element this document contains".
type propNameProbe struct {
	Name webdavxml.Name `webdav:",tagname"`
}

// propfindRequestProp is the <D:prop> child of a PROPFIND body: a bag of
// empty elements naming the properties the client wants.
type propfindRequestProp struct {
	Names []propNameProbe `webdav:",untagged,flatten"`
}

// PropfindRequest is the decoded <D:propfind> body (spec.md §4.4.1).
type PropfindRequest struct {
	AllProp  *struct{}            `webdav:"allprop"`
	PropName *struct{}            `webdav:"propname"`
	Prop     *propfindRequestProp `webdav:"prop"`
}

// RequestedNames returns the qualified property names named in a
// PropfindRequest's <prop> block, or nil for allprop/propname requests.
func (r *PropfindRequest) RequestedNames() []webdavxml.Name {
	if r.Prop == nil {
		return nil
	}
	out := make([]webdavxml.Name, 0, len(r.Prop.Names))
	for _, p := range r.Prop.Names {
		out = append(out, p.Name)
	}
	return out
}

// propSetEntry is one property inside a <D:set> or <D:remove> block's
// <D:prop>; it records only the property's qualified name, not its value.
type propSetEntry struct {
	Name webdavxml.Name `webdav:",tagname"`
}

type propertyUpdateOp struct {
	Set    *rawPropBlock `webdav:"set"`
	Remove *rawPropBlock `webdav:"remove"`
}

type rawPropBlock struct {
	Prop rawProp `webdav:"prop"`
}

type rawProp struct {
	Entries []propSetEntry `webdav:",untagged,flatten"`
}

// PropertyUpdateRequest is the decoded <D:propertyupdate> PROPPATCH body.
// Ops preserves set/remove ordering exactly as received (spec.md §4.4.2
// "operations are parsed in order").
type PropertyUpdateRequest struct {
	Ops []propertyUpdateOp `webdav:",untagged,flatten"`
}

// MkcolRequest is the decoded Extended-MKCOL or MKCALENDAR body: the typed
// properties of its <D:set><D:prop> block.
type MkcolRequest struct {
	Set struct {
		Prop Prop `webdav:"prop"`
	} `webdav:"DAV:^set"`
}

// TimeRangeElement is the <C:time-range start= end=> attribute pair.
type TimeRangeElement struct {
	Start string `webdav:",attr"`
	End   string `webdav:",attr"`
}

// TextMatchElement is the <C:text-match> element.
type TextMatchElement struct {
	Collation       string `webdav:"collation,attr"`
	NegateCondition string `webdav:"negate-condition,attr"`
	MatchType       string `webdav:"match-type,attr"`
	Value           string `webdav:",text"`
}

type ParamFilterElement struct {
	Name         string            `webdav:"name,attr"`
	IsNotDefined *struct{}         `webdav:"urn:ietf:params:xml:ns:caldav^is-not-defined"`
	TextMatch    *TextMatchElement `webdav:"urn:ietf:params:xml:ns:caldav^text-match"`
}

type PropFilterElement struct {
	Name         string               `webdav:"name,attr"`
	IsNotDefined *struct{}            `webdav:"urn:ietf:params:xml:ns:caldav^is-not-defined"`
	TimeRange    *TimeRangeElement    `webdav:"urn:ietf:params:xml:ns:caldav^time-range"`
	TextMatch    *TextMatchElement    `webdav:"urn:ietf:params:xml:ns:caldav^text-match"`
	ParamFilter  []ParamFilterElement `webdav:"urn:ietf:params:xml:ns:caldav^param-filter,flatten"`
}

type CompFilterElement struct {
	Name         string              `webdav:"name,attr"`
	IsNotDefined *struct{}           `webdav:"urn:ietf:params:xml:ns:caldav^is-not-defined"`
	TimeRange    *TimeRangeElement   `webdav:"urn:ietf:params:xml:ns:caldav^time-range"`
	PropFilter   []PropFilterElement `webdav:"urn:ietf:params:xml:ns:caldav^prop-filter,flatten"`
	CompFilter   []CompFilterElement `webdav:"urn:ietf:params:xml:ns:caldav^comp-filter,flatten"`
}

type FilterElement struct {
	CompFilter CompFilterElement `webdav:"urn:ietf:params:xml:ns:caldav^comp-filter"`
}

type ExpandElement struct {
	Start string `webdav:",attr"`
	End   string `webdav:",attr"`
}

type CalendarDataRequest struct {
	Expand *ExpandElement `webdav:"urn:ietf:params:xml:ns:caldav^expand"`
}

// CalendarQueryRequest is the decoded <C:calendar-query> REPORT body.
type CalendarQueryRequest struct {
	Prop         *propfindRequestProp `webdav:"DAV:^prop"`
	Filter       FilterElement        `webdav:"urn:ietf:params:xml:ns:caldav^filter"`
	CalendarData *CalendarDataRequest `webdav:"urn:ietf:params:xml:ns:caldav^calendar-data"`
}

// MultigetRequest is the decoded <C:calendar-multiget>/<C:addressbook-
// multiget> body: a prop selector plus explicit hrefs.
type MultigetRequest struct {
	Prop *propfindRequestProp `webdav:"DAV:^prop"`
	Href []string             `webdav:"DAV:^href,flatten"`
}

// SyncCollectionRequest is the decoded <D:sync-collection> REPORT body
// (spec.md §4.6).
type SyncCollectionRequest struct {
	SyncToken string               `webdav:"sync-token"`
	Limit     *SyncLimitElement    `webdav:"limit"`
	Prop      *propfindRequestProp `webdav:"prop"`
}

type SyncLimitElement struct {
	NResults int `webdav:"nresults"`
}

// PushRegisterRequest is the decoded <PUSH:push-register> body (SPEC_FULL
// §12's webdav-push subscription registration).
type PushRegisterRequest struct {
	Subscription struct {
		PushResource    string `webdav:"https://bitfire.at/webdav-push^push-resource"`
		ContentEncoding string `webdav:"https://bitfire.at/webdav-push^web-push-content-encoding"`
		PublicKey       string `webdav:"https://bitfire.at/webdav-push^public-key-p256dh"`
		AuthSecret      string `webdav:"https://bitfire.at/webdav-push^auth-secret"`
	} `webdav:"https://bitfire.at/webdav-push^subscription"`
	Expires string `webdav:"https://bitfire.at/webdav-push^expires,attr"`
}
