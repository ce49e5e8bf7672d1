package dav

import (
	"bytes"
	"strconv"

	"github.com/beevik/etree"
	govcard "github.com/emersion/go-vcard"

	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/pkg/ical"
	"github.com/hearthdav/caldavd/pkg/vcard"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

func n(space, local string) webdavxml.Name { return webdavxml.Name{Space: space, Local: local} }

var (
	nResourceType    = n("", "resourcetype")
	nDisplayName     = n("", "displayname")
	nOwner           = n("", "owner")
	nCurrentPrincipal = n("", "current-user-principal")
	nPrivilegeSet    = n("", "current-user-privilege-set")
	nGetETag         = n("", "getetag")
	nGetContentType  = n("", "getcontenttype")
	nGetContentLen   = n("", "getcontentlength")
	nSyncToken       = n("", "sync-token")
	nCalDescription  = n(webdavxml.NSCalDAV, "calendar-description")
	nCalTimezone     = n(webdavxml.NSCalDAV, "calendar-timezone")
	nSupportedComp   = n(webdavxml.NSCalDAV, "supported-calendar-component-set")
	nCalendarData    = n(webdavxml.NSCalDAV, "calendar-data")
	nCalColor        = n(webdavxml.NSAppleIcal, "calendar-color")
	nCalOrder        = n(webdavxml.NSAppleIcal, "calendar-order")
	nAddrDescription = n(webdavxml.NSCardDAV, "addressbook-description")
	nAddressData     = n(webdavxml.NSCardDAV, "address-data")
	nPushTopic       = n(webdavxml.NSWebDAVPush, "topic")
)

// allPropNames lists every property PROPFIND's <allprop/> renders, i.e.
// every property except the "expensive" ones RFC 4791/6352 exclude from
// allprop (calendar-data/address-data, which only render under an explicit
// <prop> request or a REPORT).
var allPropNames = []webdavxml.Name{
	nResourceType, nDisplayName, nOwner, nCurrentPrincipal, nPrivilegeSet,
	nGetETag, nGetContentType, nGetContentLen, nSyncToken,
	nCalDescription, nCalTimezone, nSupportedComp, nCalColor, nCalOrder,
	nAddrDescription, nPushTopic,
}

// buildProp fills a Prop with the values of names for res, returning the
// subset of names that had no value (spec.md §4.4.1 "404 per unresolved
// property" — the caller groups these into a separate propstat).
func (h *Handlers) buildProp(res *resource.Resource, caller *bound, names []webdavxml.Name) (Prop, []webdavxml.Name) {
	var prop Prop
	var missing []webdavxml.Name

	for _, name := range names {
		ok := h.setProp(&prop, res, caller, name)
		if !ok {
			if dead, hasDead := res.GetProp(name).Get(); hasDead {
				prop.Dead = append(prop.Dead, *decodeVerbatim(dead))
				continue
			}
			missing = append(missing, name)
		}
	}
	return prop, missing
}

func (h *Handlers) setProp(prop *Prop, res *resource.Resource, b *bound, name webdavxml.Name) bool {
	switch name {
	case nResourceType:
		rt := NamesToResourceType(res.ResourceType())
		prop.ResourceType = &rt
	case nDisplayName:
		dn := res.GetDisplayName()
		prop.DisplayName = &dn
	case nOwner:
		owner, ok := res.GetOwner()
		if !ok {
			return false
		}
		prop.Owner = NewHrefContainer(principalHref(res.Kind, owner))
	case nCurrentPrincipal:
		prop.CurrentUserPrincipal = NewHrefContainer(principalHref(res.Kind, b.caller.ID))
	case nPrivilegeSet:
		ps := NamesToPrivilegeSet(b.priv.Names())
		prop.CurrentUserPrivilegeSet = &ps
	case nGetETag:
		etag, ok := objectETag(res)
		if !ok {
			return false
		}
		prop.GetETag = &etag
	case nGetContentType:
		ct, ok := objectContentType(res)
		if !ok {
			return false
		}
		prop.GetContentType = &ct
	case nGetContentLen:
		data, ok := objectData(res)
		if !ok {
			return false
		}
		l := strconv.Itoa(len(data))
		prop.GetContentLength = &l
	case nSyncToken:
		st := res.SyncToken()
		if st == "" {
			return false
		}
		prop.SyncToken = &st
	case nCalDescription:
		if res.Calendar == nil {
			return false
		}
		prop.CalendarDescription = &res.Calendar.Description
	case nCalTimezone:
		if res.Calendar == nil || res.Calendar.TimeZoneID == "" {
			return false
		}
		prop.CalendarTimezone = &res.Calendar.TimeZoneID
	case nSupportedComp:
		if res.Calendar == nil {
			return false
		}
		prop.SupportedComponentSet = supportedComponentSet(res.Calendar.Components)
	case nCalendarData:
		data, ok := objectData(res)
		if !ok {
			return false
		}
		s := string(data)
		prop.CalendarData = &s
	case nCalColor:
		if res.Calendar == nil || res.Calendar.Color == "" {
			return false
		}
		prop.CalendarColor = &res.Calendar.Color
	case nCalOrder:
		if res.Calendar == nil {
			return false
		}
		order := strconv.Itoa(res.Calendar.Order)
		prop.CalendarOrder = &order
	case nAddrDescription:
		if res.AddressBook == nil {
			return false
		}
		prop.AddressbookDescription = &res.AddressBook.Description
	case nAddressData:
		data, ok := objectData(res)
		if !ok {
			return false
		}
		s := string(data)
		prop.AddressData = &s
	case nPushTopic:
		topic := res.PushTopic()
		if topic == "" {
			return false
		}
		prop.Topic = &topic
	default:
		return false
	}
	return true
}

func supportedComponentSet(comps []string) *SupportedComponentSet {
	if len(comps) == 0 {
		comps = []string{"VEVENT", "VTODO", "VJOURNAL"}
	}
	set := &SupportedComponentSet{}
	for _, c := range comps {
		set.Comp = append(set.Comp, CompElement{Name: c})
	}
	return set
}

func principalHref(kind resource.Kind, principalID string) string {
	if kind == resource.KindAddressBook || kind == resource.KindAddressObject || kind == resource.KindAddressBookHome {
		return "/carddav/principal/" + principalID
	}
	return "/caldav/principal/" + principalID
}

func objectData(res *resource.Resource) ([]byte, bool) {
	switch res.Kind {
	case resource.KindCalendarObject:
		return res.Object.Data, true
	case resource.KindAddressObject:
		return res.Contact.Data, true
	}
	return nil, false
}

func objectContentType(res *resource.Resource) (string, bool) {
	switch res.Kind {
	case resource.KindCalendarObject:
		return "text/calendar; charset=utf-8", true
	case resource.KindAddressObject:
		return "text/vcard; charset=utf-8", true
	}
	return "", false
}

func objectETag(res *resource.Resource) (string, bool) {
	switch res.Kind {
	case resource.KindCalendarObject:
		uid := calendarObjectUID(res.Object.Data)
		return ical.ETag(uid, res.Object.Data), true
	case resource.KindAddressObject:
		uid := addressObjectUID(res.Contact.Data)
		return vcard.ETag(uid, res.Contact.Data), true
	}
	return "", false
}

func calendarObjectUID(data []byte) string {
	events, err := ical.ParseCalendar(data)
	if err != nil || len(events) == 0 {
		return ""
	}
	return events[0].UID
}

func addressObjectUID(data []byte) string {
	card, err := govcard.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return ""
	}
	return card.Value(govcard.FieldUID)
}

// decodeVerbatim parses a dead property's stored XML bytes (written by
// resource.SetProp via etree.Document.WriteToBytes) back into the element
// Prop.Dead replays.
func decodeVerbatim(data []byte) *etree.Element {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		return &etree.Element{}
	}
	return doc.Root().Copy()
}
