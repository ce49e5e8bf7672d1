// Package store defines the persistence collaborator consumed by the
// resource, sync-token, and method-handler layers, and ships an in-memory
// reference implementation. A durable backend (the teacher's equivalent of
// internal/storage/filestore or internal/storage/postgres) would implement
// the same interfaces without changing any caller.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hearthdav/caldavd/internal/model"
)

// Error taxonomy (spec.md §7): handlers and the HTTP glue layer match these
// with errors.Is to pick a status code and precondition element.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrReadOnly      = errors.New("store: read-only")
	ErrInvalidData   = errors.New("store: invalid data")
	ErrConflict      = errors.New("store: conflict")
	ErrStorage       = errors.New("store: storage failure")
)

// PrincipalStore is the principal-provider interface consumed by
// internal/auth (spec.md §6 "Principal provider interface").
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, id string) (*model.Principal, error)
	ListPrincipals(ctx context.Context) ([]*model.Principal, error)
	PutPrincipal(ctx context.Context, p *model.Principal) error
	RemovePrincipal(ctx context.Context, id string) error
	AddMembership(ctx context.Context, id, groupID string) error
	RemoveMembership(ctx context.Context, id, groupID string) error
	AddAppToken(ctx context.Context, principalID string, tok model.AppToken) error
	RemoveAppToken(ctx context.Context, principalID, tokenID string) error
}

// CollectionStore is the calendar/address-book/object collaborator (spec.md
// §6 "Store collaborator interface"). Every mutating object operation
// returns the ChangeLogEntry the sync-token engine appended in the same
// logical transaction (spec.md §5 "Ordering guarantees").
type CollectionStore interface {
	GetCalendar(ctx context.Context, owner, id string) (*model.Calendar, error)
	ListCalendars(ctx context.Context, owner string) ([]*model.Calendar, error)
	PutCalendar(ctx context.Context, c *model.Calendar) error
	SoftDeleteCalendar(ctx context.Context, owner, id string) error
	HardDeleteCalendar(ctx context.Context, owner, id string) error
	RestoreCalendar(ctx context.Context, owner, id string) error

	GetAddressBook(ctx context.Context, owner, id string) (*model.AddressBook, error)
	ListAddressBooks(ctx context.Context, owner string) ([]*model.AddressBook, error)
	PutAddressBook(ctx context.Context, a *model.AddressBook) error
	SoftDeleteAddressBook(ctx context.Context, owner, id string) error
	HardDeleteAddressBook(ctx context.Context, owner, id string) error
	RestoreAddressBook(ctx context.Context, owner, id string) error

	GetObject(ctx context.Context, calendarKey, id string) (*model.CalendarObject, error)
	FindObjectByUID(ctx context.Context, calendarKey, uid string) (*model.CalendarObject, error)
	ListObjects(ctx context.Context, calendarKey string) ([]*model.CalendarObject, error)
	PutObject(ctx context.Context, obj *model.CalendarObject) (model.ChangeLogEntry, error)
	DeleteObject(ctx context.Context, calendarKey, id string) (model.ChangeLogEntry, error)
	MoveObject(ctx context.Context, srcCalendarKey, id, dstCalendarKey, dstID string) (model.ChangeLogEntry, model.ChangeLogEntry, error)

	GetAddressObject(ctx context.Context, addressBookKey, id string) (*model.AddressObject, error)
	FindAddressObjectByUID(ctx context.Context, addressBookKey, uid string) (*model.AddressObject, error)
	ListAddressObjects(ctx context.Context, addressBookKey string) ([]*model.AddressObject, error)
	PutAddressObject(ctx context.Context, obj *model.AddressObject) (model.ChangeLogEntry, error)
	DeleteAddressObject(ctx context.Context, addressBookKey, id string) (model.ChangeLogEntry, error)

	// ChangesSince returns every change-log row with SyncToken > since for
	// collectionKey, coalesced by object id keeping the latest operation,
	// plus the maximum token observed (spec.md §4.6).
	ChangesSince(ctx context.Context, collectionKey string, since int64) ([]model.ChangeLogEntry, int64, error)
	CurrentSyncToken(ctx context.Context, collectionKey string) (int64, error)

	PutSubscription(ctx context.Context, s *model.Subscription) error
	ListSubscriptionsByTopic(ctx context.Context, topic string) ([]*model.Subscription, error)
	RemoveSubscription(ctx context.Context, id string) error
	RemoveSubscriptionsForResource(ctx context.Context, resourceURL string) error
}

// Store is the full collaborator surface a ResourceService (internal/resource)
// and the method handlers (internal/dav) are built against.
type Store interface {
	PrincipalStore
	CollectionStore
}

// Now is overridable in tests; production code leaves it at time.Now.
var Now = time.Now
