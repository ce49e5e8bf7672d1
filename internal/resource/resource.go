// Package resource implements the Resource abstraction (spec.md §4.3, C3):
// a uniform view over principals, home sets, calendars, address books, and
// the objects inside them, with property get/set/remove and privilege
// computation. Properties that have no typed Go field ("dead" properties)
// round-trip as opaque captured XML via pkg/webdavxml/beevik-etree, exposed
// through samber/mo.Option so callers can distinguish "absent" from
// "present but empty" without a third bool out-parameter.
package resource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/hearthdav/caldavd/internal/acl"
	"github.com/hearthdav/caldavd/internal/carddav"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
	"github.com/samber/mo"
)

// Kind discriminates the tagged-variant Resource sum type spec.md §9 calls
// for in place of per-resource dynamic dispatch.
type Kind int

const (
	KindPrincipal Kind = iota
	KindCalendarHome
	KindAddressBookHome
	KindCalendar
	KindBirthdayCalendar
	KindCalendarObject
	KindAddressBook
	KindAddressObject
)

// Resource is one addressable URL. Kind selects which embedded pointers are
// set: an object resource also carries its parent Calendar or AddressBook,
// and a birthday calendar carries both Calendar and BirthdayBacking.
type Resource struct {
	Kind        Kind
	PrincipalID string // the principal whose home this resource lives under

	Principal   *model.Principal
	Calendar    *model.Calendar
	AddressBook *model.AddressBook
	Object      *model.CalendarObject
	Contact     *model.AddressObject

	// BirthdayBacking is the address book a KindBirthdayCalendar resource is
	// synthesised from; the object resources Members returns for a birthday
	// calendar leave it nil.
	BirthdayBacking *model.AddressBook
}

// ResourceType returns the qualified resourcetype child element names
// (spec.md §4.3 resource_type()).
func (r *Resource) ResourceType() []webdavxml.Name {
	dav := func(local string) webdavxml.Name { return webdavxml.Name{Space: webdavxml.NSDAV, Local: local} }
	cal := func(local string) webdavxml.Name { return webdavxml.Name{Space: webdavxml.NSCalDAV, Local: local} }
	card := func(local string) webdavxml.Name { return webdavxml.Name{Space: webdavxml.NSCardDAV, Local: local} }
	switch r.Kind {
	case KindPrincipal:
		return []webdavxml.Name{dav("collection"), dav("principal")}
	case KindCalendarHome, KindAddressBookHome:
		return []webdavxml.Name{dav("collection")}
	case KindCalendar, KindBirthdayCalendar:
		return []webdavxml.Name{dav("collection"), cal("calendar")}
	case KindAddressBook:
		return []webdavxml.Name{dav("collection"), card("addressbook")}
	default:
		return nil
	}
}

func (r *Resource) IsCollection() bool {
	switch r.Kind {
	case KindCalendarObject, KindAddressObject:
		return false
	default:
		return true
	}
}

// GetOwner returns the owning principal id, if any (spec.md §4.3 get_owner()).
func (r *Resource) GetOwner() (string, bool) {
	if r.PrincipalID == "" {
		return "", false
	}
	return r.PrincipalID, true
}

// GetDisplayName / SetDisplayName implement spec.md §4.3's named accessors.
func (r *Resource) GetDisplayName() string {
	switch r.Kind {
	case KindPrincipal:
		if r.Principal == nil {
			return ""
		}
		return r.Principal.DisplayName
	case KindCalendar, KindBirthdayCalendar:
		return r.Calendar.DisplayName
	case KindAddressBook:
		return r.AddressBook.DisplayName
	}
	return ""
}

func (r *Resource) SetDisplayName(v string) error {
	switch r.Kind {
	case KindCalendar:
		r.Calendar.DisplayName = v
		return nil
	case KindAddressBook:
		r.AddressBook.DisplayName = v
		return nil
	}
	return ErrReadOnly
}

// ErrReadOnly is returned by Set/Remove for a property outside the
// resource's writable set (spec.md §4.3 "prop-read-only").
var ErrReadOnly = fmt.Errorf("resource: read-only property")

// ErrUnsupportedComponent is raised when SyncToken-bearing collection is
// read-only for writes in general (birthday calendars, subscription mirrors).
var ErrUnsupportedComponent = fmt.Errorf("resource: read-only calendar")

// GetUserPrivileges computes the effective privilege bitset for caller on
// r (spec.md §4.3 get_user_privileges).
func (r *Resource) GetUserPrivileges(ctx context.Context, caller *model.Principal, prov acl.Provider) acl.Effective {
	owner := r.PrincipalID
	readOnly := false
	if r.Kind == KindCalendar && r.Calendar.SubscriptionURL != "" {
		readOnly = true
	}
	if r.Kind == KindBirthdayCalendar {
		readOnly = true
	}
	return prov.Effective(ctx, caller, owner, readOnly)
}

// SyncToken returns the collection's current sync token, formatted as the
// opaque URI spec.md §9 open-question 6 specifies.
func (r *Resource) SyncToken() string {
	switch r.Kind {
	case KindCalendar:
		return FormatSyncToken(r.Calendar.SyncToken)
	case KindBirthdayCalendar:
		return FormatSyncToken(r.BirthdayBacking.SyncToken)
	case KindAddressBook:
		return FormatSyncToken(r.AddressBook.SyncToken)
	}
	return ""
}

func (r *Resource) PushTopic() string {
	switch r.Kind {
	case KindCalendar:
		return r.Calendar.PushTopic
	case KindAddressBook:
		return r.AddressBook.PushTopic
	}
	return ""
}

// CollectionKey returns the store key ("owner/id") for ChangesSince and
// object lookups, empty for non-collection resources.
func (r *Resource) CollectionKey() string {
	switch r.Kind {
	case KindCalendar, KindBirthdayCalendar:
		return r.PrincipalID + "/" + r.Calendar.ID
	case KindAddressBook:
		return r.PrincipalID + "/" + r.AddressBook.ID
	}
	return ""
}

const syncTokenPrefix = "urn:x-dav:sync:"

func FormatSyncToken(token int64) string {
	return syncTokenPrefix + strconv.FormatInt(token, 10)
}

// ParseSyncToken decodes a client-supplied sync-token element value; an
// empty string (absent element) decodes to 0, matching spec.md §4.6.
func ParseSyncToken(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, syncTokenPrefix)
	return strconv.ParseInt(raw, 10, 64)
}

// --- Dead properties ---

func deadPropKey(n webdavxml.Name) string { return n.Space + "\x00" + n.Local }

// GetProp returns a resource's dead-property value as captured XML bytes,
// mo.None when the resource has no value stored for n.
func (r *Resource) GetProp(n webdavxml.Name) mo.Option[[]byte] {
	meta := r.collectionMeta()
	if meta == nil {
		return mo.None[[]byte]()
	}
	v, ok := meta.DeadProps[deadPropKey(n)]
	if !ok {
		return mo.None[[]byte]()
	}
	return mo.Some(v)
}

// SetProp stores el (a captured dead-property subtree) under its own
// qualified name, returning ErrReadOnly if the resource isn't a collection
// (objects don't accept PROPPATCH in this implementation).
func (r *Resource) SetProp(el *etree.Element) mo.Result[mo.Option[[]byte]] {
	meta := r.collectionMeta()
	if meta == nil {
		return mo.Err[mo.Option[[]byte]](ErrReadOnly)
	}
	n := webdavxml.Name{Space: el.Space, Local: el.Tag}
	if el.NamespaceURI() != "" {
		n.Space = el.NamespaceURI()
	}
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return mo.Err[mo.Option[[]byte]](err)
	}
	if meta.DeadProps == nil {
		meta.DeadProps = map[string][]byte{}
	}
	meta.DeadProps[deadPropKey(n)] = data
	return mo.Ok(mo.Some(data))
}

// RemoveProp deletes a dead property, returning mo.None if nothing was set
// for n (spec.md §4.4.2 "not-found" outcome for removing an unset name that
// the resource wouldn't otherwise accept).
func (r *Resource) RemoveProp(n webdavxml.Name) mo.Option[struct{}] {
	meta := r.collectionMeta()
	if meta == nil {
		return mo.None[struct{}]()
	}
	key := deadPropKey(n)
	if _, ok := meta.DeadProps[key]; !ok {
		return mo.None[struct{}]()
	}
	delete(meta.DeadProps, key)
	return mo.Some(struct{}{})
}

func (r *Resource) collectionMeta() *model.CollectionMeta {
	switch r.Kind {
	case KindCalendar:
		return &r.Calendar.CollectionMeta
	case KindAddressBook:
		return &r.AddressBook.CollectionMeta
	}
	return nil
}

// --- Members (collection walk, spec.md §4.3 get_members()) ---

// Members lists a collection resource's direct children. For a calendar
// home this is the owner's calendars plus their synthesised birthday
// calendars; for a calendar/address book it is its objects.
func (r *Resource) Members(ctx context.Context, s store.Store) ([]*Resource, error) {
	switch r.Kind {
	case KindCalendarHome:
		cals, err := s.ListCalendars(ctx, r.PrincipalID)
		if err != nil {
			return nil, err
		}
		out := make([]*Resource, 0, len(cals))
		for _, c := range cals {
			out = append(out, &Resource{Kind: KindCalendar, PrincipalID: r.PrincipalID, Calendar: c})
		}
		abs, err := s.ListAddressBooks(ctx, r.PrincipalID)
		if err != nil {
			return nil, err
		}
		for _, ab := range abs {
			out = append(out, birthdayCalendarResource(r.PrincipalID, ab))
		}
		return out, nil
	case KindAddressBookHome:
		abs, err := s.ListAddressBooks(ctx, r.PrincipalID)
		if err != nil {
			return nil, err
		}
		out := make([]*Resource, 0, len(abs))
		for _, ab := range abs {
			out = append(out, &Resource{Kind: KindAddressBook, PrincipalID: r.PrincipalID, AddressBook: ab})
		}
		return out, nil
	case KindCalendar:
		objs, err := s.ListObjects(ctx, r.CollectionKey())
		if err != nil {
			return nil, err
		}
		out := make([]*Resource, 0, len(objs))
		for _, o := range objs {
			oc := o
			out = append(out, &Resource{Kind: KindCalendarObject, PrincipalID: r.PrincipalID, Calendar: r.Calendar, Object: oc})
		}
		return out, nil
	case KindAddressBook:
		contacts, err := s.ListAddressObjects(ctx, r.CollectionKey())
		if err != nil {
			return nil, err
		}
		out := make([]*Resource, 0, len(contacts))
		for _, c := range contacts {
			cc := c
			out = append(out, &Resource{Kind: KindAddressObject, PrincipalID: r.PrincipalID, AddressBook: r.AddressBook, Contact: cc})
		}
		return out, nil
	case KindBirthdayCalendar:
		objs, err := carddav.BirthdayObjects(ctx, s, r.BirthdayBacking)
		if err != nil {
			return nil, err
		}
		out := make([]*Resource, 0, len(objs))
		for _, o := range objs {
			oc := o
			out = append(out, &Resource{Kind: KindCalendarObject, PrincipalID: r.PrincipalID, Calendar: birthdayCalendarModel(r.BirthdayBacking), Object: oc})
		}
		return out, nil
	}
	return nil, nil
}

func birthdayCalendarModel(ab *model.AddressBook) *model.Calendar {
	return &model.Calendar{
		CollectionMeta: model.CollectionMeta{
			OwnerPrincipal: ab.OwnerPrincipal,
			ID:             model.BirthdayCalendarID(ab.ID),
			DisplayName:    ab.DisplayName + " — Birthdays",
			SyncToken:      ab.SyncToken,
			PushTopic:      ab.PushTopic,
		},
		Components: []string{"VEVENT"},
	}
}

func birthdayCalendarResource(principalID string, ab *model.AddressBook) *Resource {
	return &Resource{
		Kind:            KindBirthdayCalendar,
		PrincipalID:     principalID,
		Calendar:        birthdayCalendarModel(ab),
		BirthdayBacking: ab,
	}
}
