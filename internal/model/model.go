// Package model holds the data model shared by the storage, resource, and
// method-handler layers: principals, calendars, address books, the objects
// inside them, and the bookkeeping (sync tokens, change log, push
// subscriptions) that keeps clients in sync.
package model

import "time"

// PrincipalKind classifies a Principal for PROPFIND resourcetype reporting
// and for future ACL extension (group members inherit their group's
// privileges on resources the group owns).
type PrincipalKind string

const (
	PrincipalIndividual PrincipalKind = "individual"
	PrincipalGroup      PrincipalKind = "group"
	PrincipalResource   PrincipalKind = "resource"
	PrincipalRoom       PrincipalKind = "room"
	PrincipalUnknown    PrincipalKind = "unknown"
)

// AppToken is an opaque secret a principal can mint for clients (mobile
// CalDAV/CardDAV apps); it is accepted in place of the password in Basic auth.
type AppToken struct {
	ID           string
	Name         string
	HashedSecret string
	CreatedAt    time.Time
}

// Principal is an authenticatable identity. p.HasIdentity(id) holds when
// id == p.ID or id is one of p's Memberships — group membership grants the
// same privileges a direct owner would have.
type Principal struct {
	ID            string
	DisplayName   string
	Kind          PrincipalKind
	PasswordHash  string // empty if Basic auth with a password is disabled for this principal
	AppTokens     []AppToken
	Memberships   []string // principal ids of groups this principal belongs to
}

// HasIdentity reports whether candidateID is an identity p is allowed to
// act as: itself, or one of its group memberships.
func (p Principal) HasIdentity(candidateID string) bool {
	if p.ID == candidateID {
		return true
	}
	for _, m := range p.Memberships {
		if m == candidateID {
			return true
		}
	}
	return false
}

// CollectionMeta is the metadata shared by Calendar and AddressBook.
type CollectionMeta struct {
	OwnerPrincipal string
	ID             string
	DisplayName    string
	Description    string
	SyncToken      int64
	PushTopic      string
	DeletedAt      *time.Time // soft-deletion timestamp; nil when live

	// DeadProps holds PROPPATCH-set properties this collection's Resource
	// has no typed field for, keyed by "{namespace}local-name", each value
	// the verbatim captured XML subtree (pkg/webdavxml's dead-property
	// capture/replay contract).
	DeadProps map[string][]byte
}

func (m CollectionMeta) IsDeleted() bool { return m.DeletedAt != nil }

// Calendar is a collection of Calendar Objects owned by a principal.
type Calendar struct {
	CollectionMeta
	Color           string
	Order           int
	TimeZoneID      string // IANA zone, e.g. "America/New_York"
	Components      []string // whitelist subset of {VEVENT, VTODO, VJOURNAL}
	SubscriptionURL string   // set only for a read-only mirror of an external calendar
}

// SupportsComponent reports whether comp is in the calendar's component
// whitelist (empty whitelist means "all components supported").
func (c Calendar) SupportsComponent(comp string) bool {
	if len(c.Components) == 0 {
		return true
	}
	for _, c2 := range c.Components {
		if c2 == comp {
			return true
		}
	}
	return false
}

// AddressBook is a collection of Address Objects owned by a principal.
type AddressBook struct {
	CollectionMeta
}

// CalendarObject is one VCALENDAR body stored under a Calendar. UID,
// ETag, ComponentType, FirstOccurrence, LastOccurrence are derived on
// demand from Data by pkg/ical rather than stored redundantly.
type CalendarObject struct {
	CalendarKey string // "owner/id" key of the parent Calendar
	ID          string
	Data        []byte
	UpdatedAt   time.Time
}

// AddressObject is one vCard stored under an Address Book.
type AddressObject struct {
	AddressBookKey string // "owner/id" key of the parent AddressBook
	ID             string
	Data           []byte
	UpdatedAt      time.Time
}

// BirthdayCalendarID derives the virtual birthday calendar's id for address
// book X, as specified: "_birthdays_<X.id>".
func BirthdayCalendarID(addressBookID string) string {
	return "_birthdays_" + addressBookID
}

// BirthdayObjectID and AnniversaryObjectID derive the ids of the synthetic
// calendar objects a birthday calendar exposes for one address object.
func BirthdayObjectID(addrObjID string) string     { return addrObjID + "-bday" }
func AnniversaryObjectID(addrObjID string) string   { return addrObjID + "-anniversary" }

// ChangeOp is the kind of mutation a Change-Log Entry records.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeDelete ChangeOp = "delete"
)

// ChangeLogEntry is appended atomically with a collection's sync-token
// increment, and is the unit <sync-collection> REPORT replays.
type ChangeLogEntry struct {
	CollectionKey string
	ObjectID      string
	Operation     ChangeOp
	SyncToken     int64
}

// Subscription is a registered DAV-Push target for a calendar or address
// book. Deleting the collection does not remove its subscriptions:
// Store.RemoveSubscriptionsForResource does, and the DELETE handler does not
// call it.
type Subscription struct {
	ID              string
	ResourceURL     string
	PushEndpoint    string
	ContentEncoding string // e.g. "aes128gcm"
	PublicKey       []byte
	AuthSecret      []byte
	ExpiresAt       time.Time
}

func (s Subscription) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }
