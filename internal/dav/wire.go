// Wire types for the WebDAV/CalDAV/CardDAV XML bodies this handler tree
// exchanges, bound to pkg/webdavxml's struct-tag schema. Fields with no
// "ns^local" prefix inherit the enclosing element's namespace the same way
// pkg/webdavxml's own tests do; an element outside its parent's namespace
// (CalDAV, CardDAV, CalendarServer, Apple iCal, webdav-push, or a DAV:
// element inside a CalDAV body) always carries an explicit tag.
package dav

import (
	"github.com/beevik/etree"

	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

// HrefContainer is a property whose value is a single nested <D:href>
// child, the shape DAV:owner and DAV:current-user-principal both take.
type HrefContainer struct {
	Href string `webdav:"href"`
}

func NewHrefContainer(v string) *HrefContainer { return &HrefContainer{Href: v} }

// ResourceType lists the resourcetype tag names a resource exposes. Each
// bool-ish flag field maps to an empty marker element; only set flags are
// encoded (kindTag with omitempty skips the rest).
type ResourceType struct {
	Collection  *struct{} `webdav:"collection,omitempty"`
	Calendar    *struct{} `webdav:"urn:ietf:params:xml:ns:caldav^calendar,omitempty"`
	AddressBook *struct{} `webdav:"urn:ietf:params:xml:ns:carddav^addressbook,omitempty"`
	Principal   *struct{} `webdav:"principal,omitempty"`
}

var marker = &struct{}{}

// NamesToResourceType converts internal/resource's []webdavxml.Name into
// the typed ResourceType the encoder renders.
func NamesToResourceType(names []webdavxml.Name) ResourceType {
	var rt ResourceType
	for _, n := range names {
		switch {
		case n.Space == webdavxml.NSDAV && n.Local == "collection":
			rt.Collection = marker
		case n.Space == webdavxml.NSCalDAV && n.Local == "calendar":
			rt.Calendar = marker
		case n.Space == webdavxml.NSCardDAV && n.Local == "addressbook":
			rt.AddressBook = marker
		case n.Space == webdavxml.NSDAV && n.Local == "principal":
			rt.Principal = marker
		}
	}
	return rt
}

// Privilege is one DAV:privilege child of a current-user-privilege-set
// response, e.g. <privilege><read/></privilege>.
type Privilege struct {
	Read                           *struct{} `webdav:"read,omitempty"`
	WriteContent                   *struct{} `webdav:"write-content,omitempty"`
	WriteProperties                *struct{} `webdav:"write-properties,omitempty"`
	Bind                           *struct{} `webdav:"bind,omitempty"`
	Unbind                         *struct{} `webdav:"unbind,omitempty"`
	WriteACL                       *struct{} `webdav:"write-acl,omitempty"`
	ReadACL                        *struct{} `webdav:"read-acl,omitempty"`
	ReadCurrentUserPrivilegeSet    *struct{} `webdav:"read-current-user-privilege-set,omitempty"`
}

type PrivilegeSet struct {
	Privilege []Privilege `webdav:"privilege,flatten"`
}

// NamesToPrivilegeSet renders internal/acl.Effective.Names() as one
// <privilege> element per granted bit.
func NamesToPrivilegeSet(names []string) PrivilegeSet {
	var ps PrivilegeSet
	for _, n := range names {
		var p Privilege
		switch n {
		case "read":
			p.Read = marker
		case "write-content":
			p.WriteContent = marker
		case "write-properties":
			p.WriteProperties = marker
		case "bind":
			p.Bind = marker
		case "unbind":
			p.Unbind = marker
		case "write-acl":
			p.WriteACL = marker
		case "read-acl":
			p.ReadACL = marker
		case "read-current-user-privilege-set":
			p.ReadCurrentUserPrivilegeSet = marker
		}
		ps.Privilege = append(ps.Privilege, p)
	}
	return ps
}

// CompElement is one <C:comp name="..."/> entry (VEVENT, VTODO or VJOURNAL)
// of the supported-calendar-component-set property.
type CompElement struct {
	Name string `webdav:",attr"`
}

type SupportedComponentSet struct {
	Comp []CompElement `webdav:"urn:ietf:params:xml:ns:caldav^comp,flatten"`
}

// Prop is the full set of properties this server can return. Only the
// fields a given request selected (or, for allprop, every non-expensive
// field) are populated before encoding; pkg/webdavxml's omitempty on
// pointer/string fields skips the rest.
type Prop struct {
	ResourceType            *ResourceType           `webdav:"resourcetype,omitempty"`
	DisplayName             *string                 `webdav:"displayname,omitempty"`
	Owner                   *HrefContainer          `webdav:"owner,omitempty"`
	CurrentUserPrincipal    *HrefContainer          `webdav:"current-user-principal,omitempty"`
	CurrentUserPrivilegeSet *PrivilegeSet           `webdav:"current-user-privilege-set,omitempty"`
	GetETag                 *string                 `webdav:"getetag,omitempty"`
	GetContentType           *string                `webdav:"getcontenttype,omitempty"`
	GetContentLength        *string                 `webdav:"getcontentlength,omitempty"`

	SyncToken *string `webdav:"sync-token,omitempty"`

	CalendarDescription    *string                 `webdav:"urn:ietf:params:xml:ns:caldav^calendar-description,omitempty"`
	CalendarTimezone       *string                 `webdav:"urn:ietf:params:xml:ns:caldav^calendar-timezone,omitempty"`
	SupportedComponentSet  *SupportedComponentSet  `webdav:"urn:ietf:params:xml:ns:caldav^supported-calendar-component-set,omitempty"`
	CalendarData           *string                 `webdav:"urn:ietf:params:xml:ns:caldav^calendar-data,omitempty"`
	CalendarColor          *string                 `webdav:"http://apple.com/ns/ical/^calendar-color,omitempty"`
	CalendarOrder          *string                 `webdav:"http://apple.com/ns/ical/^calendar-order,omitempty"`

	AddressbookDescription *string `webdav:"urn:ietf:params:xml:ns:carddav^addressbook-description,omitempty"`
	AddressData            *string `webdav:"urn:ietf:params:xml:ns:carddav^address-data,omitempty"`

	Topic *string `webdav:"https://bitfire.at/webdav-push^topic,omitempty"`

	// Dead captures/replays properties this struct has no typed field for.
	Dead []etree.Element `webdav:",untagged,flatten"`
}

func (p *Prop) SetSyncToken(token string) { p.SyncToken = &token }

// PropStat groups a set of properties under one HTTP status, as Multi-
// Status responses require (spec.md §4.4.1).
type PropStat struct {
	Prop   Prop   `webdav:"prop"`
	Status string `webdav:"status"`
}

// MultistatusResponse is one <D:response> element: an href plus its
// propstats, or a bare top-level Status for a REPORT row reporting 404.
type MultistatusResponse struct {
	Href     string     `webdav:"href"`
	PropStat []PropStat `webdav:"propstat,flatten,omitempty"`
	Status   *string    `webdav:"status,omitempty"`
}

// Multistatus is the root of every 207 response body.
type Multistatus struct {
	Response  []MultistatusResponse `webdav:"response,flatten"`
	SyncToken *string               `webdav:"sync-token,omitempty"`
}

var MultistatusRoot = webdavxml.Root{Name: webdavxml.Name{Space: webdavxml.NSDAV, Local: "multistatus"}}

// ErrorBody is the <D:error> body for non-Multi-Status failures (spec.md
// §7), carrying zero or more precondition marker elements captured as dead
// properties by the caller.
type ErrorBody struct {
	Precondition []etree.Element `webdav:",untagged,flatten"`
}

var ErrorRoot = webdavxml.Root{Name: webdavxml.Name{Space: webdavxml.NSDAV, Local: "error"}}

// NewErrorBody builds a single-precondition error body in namespace ns
// (webdavxml.NSDAV for DAV preconditions, NSCalDAV for CalDAV ones).
func NewErrorBody(ns, local string) *ErrorBody {
	el := etree.NewElement(local)
	if ns != "" && ns != webdavxml.NSDAV {
		el.Space = ns
	}
	return &ErrorBody{Precondition: []etree.Element{*el}}
}
