// Package dav implements the WebDAV/CalDAV/CardDAV method handlers
// (spec.md §4.4, C4): PROPFIND, PROPPATCH, REPORT, MKCOL/MKCALENDAR, GET/
// PUT/DELETE/MOVE/COPY, and OPTIONS, each resolving its target URL to an
// internal/resource.Resource and working in terms of internal/model/
// internal/store/internal/acl rather than the wire format directly.
package dav

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hearthdav/caldavd/internal/acl"
	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/internal/syncengine"
)

// Handlers wires every collaborator a method handler needs. One instance
// is shared across requests; all fields are safe for concurrent use.
type Handlers struct {
	Store  store.Store
	ACL    acl.Provider
	Auth   *auth.Authenticator
	Sync   *syncengine.Engine
	Logger zerolog.Logger
	HTTP   config.HTTPConfig
}

func NewHandlers(s store.Store, aclProv acl.Provider, authn *auth.Authenticator, sync *syncengine.Engine, httpCfg config.HTTPConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{Store: s, ACL: aclProv, Auth: authn, Sync: sync, Logger: logger, HTTP: httpCfg}
}

// bound is the resolved, privilege-checked request target every method
// handler operates on.
type bound struct {
	path   Path
	res    *resource.Resource
	caller *model.Principal
	priv   acl.Effective
}

// resolve binds ctx's authenticated principal (set by the auth middleware,
// spec.md §4.9 AuthBound state) and urlPath to a Resource, computing the
// caller's effective privileges on it (spec.md §4.3's ResourceService
// composition). ErrNotFound/daverror.KindNotFound is returned for any path
// segment that doesn't resolve to a stored row; callers translate that to
// 404 themselves so HEAD/GET's "don't leak existence" nuance stays local
// to crud.go.
func (h *Handlers) resolve(ctx context.Context, urlPath string) (*bound, error) {
	principalID, ok := auth.PrincipalIDFrom(ctx)
	if !ok {
		return nil, daverror.New(daverror.KindUnauthorized, "no bound principal")
	}
	caller, err := h.Store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, daverror.Wrap(daverror.KindUnauthorized, err)
	}

	p, ok := ParsePath(urlPath)
	if !ok {
		return nil, daverror.New(daverror.KindNotFound, "path not recognised")
	}

	res, err := h.resolveResource(ctx, p)
	if err != nil {
		return nil, err
	}

	priv := res.GetUserPrivileges(ctx, caller, h.ACL)
	return &bound{path: p, res: res, caller: caller, priv: priv}, nil
}

func (h *Handlers) resolveResource(ctx context.Context, p Path) (*resource.Resource, error) {
	if p.IsServiceRoot() {
		return &resource.Resource{Kind: resource.KindPrincipal}, nil
	}

	owner, err := h.Store.GetPrincipal(ctx, p.PrincipalID)
	if err != nil {
		return nil, notFoundOrStorage(err)
	}

	// The CardDAV tree (spec.md §4.9) has no separate home-set URL the way
	// the CalDAV tree does: /carddav/principal/{p} doubles as the address-
	// book-home, so its Depth:1 PROPFIND must list address books the way
	// KindAddressBookHome.Members does. The CalDAV principal apex stays a
	// bare KindPrincipal; its calendar-home lives one level deeper at
	// .../calendars.
	if p.IsPrincipal() {
		if p.Tree == TreeCardDAV {
			return &resource.Resource{Kind: resource.KindAddressBookHome, PrincipalID: owner.ID}, nil
		}
		return &resource.Resource{Kind: resource.KindPrincipal, PrincipalID: owner.ID, Principal: owner}, nil
	}

	switch p.Tree {
	case TreeCalDAV:
		return h.resolveCalDAV(ctx, p, owner)
	default:
		return h.resolveCardDAV(ctx, p, owner)
	}
}

func (h *Handlers) resolveCalDAV(ctx context.Context, p Path, owner *model.Principal) (*resource.Resource, error) {
	if p.Seg1 != "calendars" {
		return nil, daverror.New(daverror.KindNotFound, "unknown calendar home")
	}
	home := &resource.Resource{Kind: resource.KindCalendarHome, PrincipalID: owner.ID}
	if p.Seg2 == "" {
		return home, nil
	}

	if backingID, isBday := bdayAddressBookID(p.Seg2); isBday {
		ab, err := h.Store.GetAddressBook(ctx, owner.ID, backingID)
		if err != nil {
			return nil, notFoundOrStorage(err)
		}
		res := &resource.Resource{Kind: resource.KindBirthdayCalendar, PrincipalID: owner.ID, BirthdayBacking: ab}
		res.Calendar = birthdayCalendarStandin(ab)
		return h.resolveCalendarObject(ctx, p, res)
	}

	cal, err := h.Store.GetCalendar(ctx, owner.ID, p.Seg2)
	if err != nil {
		return nil, notFoundOrStorage(err)
	}
	res := &resource.Resource{Kind: resource.KindCalendar, PrincipalID: owner.ID, Calendar: cal}
	return h.resolveCalendarObject(ctx, p, res)
}

func (h *Handlers) resolveCalendarObject(ctx context.Context, p Path, collection *resource.Resource) (*resource.Resource, error) {
	if p.Seg3 == "" {
		return collection, nil
	}
	if collection.Kind == resource.KindBirthdayCalendar {
		objs, err := collection.Members(ctx, h.Store)
		if err != nil {
			return nil, daverror.Wrap(daverror.KindStorage, err)
		}
		for _, o := range objs {
			if o.Object.ID == p.Seg3 {
				return o, nil
			}
		}
		return nil, daverror.New(daverror.KindNotFound, "birthday object not found")
	}
	obj, err := h.Store.GetObject(ctx, collection.CollectionKey(), p.Seg3)
	if err != nil {
		return nil, notFoundOrStorage(err)
	}
	return &resource.Resource{Kind: resource.KindCalendarObject, PrincipalID: collection.PrincipalID, Calendar: collection.Calendar, Object: obj}, nil
}

func (h *Handlers) resolveCardDAV(ctx context.Context, p Path, owner *model.Principal) (*resource.Resource, error) {
	ab, err := h.Store.GetAddressBook(ctx, owner.ID, p.Seg1)
	if err != nil {
		return nil, notFoundOrStorage(err)
	}
	res := &resource.Resource{Kind: resource.KindAddressBook, PrincipalID: owner.ID, AddressBook: ab}
	if p.Seg2 == "" {
		return res, nil
	}
	contact, err := h.Store.GetAddressObject(ctx, res.CollectionKey(), p.Seg2)
	if err != nil {
		return nil, notFoundOrStorage(err)
	}
	return &resource.Resource{Kind: resource.KindAddressObject, PrincipalID: owner.ID, AddressBook: ab, Contact: contact}, nil
}

// bdayAddressBookID inverts model.BirthdayCalendarID ("_birthdays_<id>"),
// reporting whether calSegment actually named a synthetic birthday
// calendar at all.
func bdayAddressBookID(calSegment string) (string, bool) {
	const prefix = "_birthdays_"
	if len(calSegment) > len(prefix) && calSegment[:len(prefix)] == prefix {
		return calSegment[len(prefix):], true
	}
	return "", false
}

func birthdayCalendarStandin(ab *model.AddressBook) *model.Calendar {
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

func notFoundOrStorage(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return daverror.New(daverror.KindNotFound, "resource not found")
	}
	return daverror.Wrap(daverror.KindStorage, err)
}

// writeError renders err (daverror.As-normalised) as the canonical <D:error>
// body spec.md §7 describes, or a bare status for errors with no
// precondition element.
func writeError(w http.ResponseWriter, err error) {
	de := daverror.As(err)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(de.Status())
	if precondition, ok := de.Precondition(); ok {
		body, encErr := marshalErrorBody(de.PreconditionNS(), precondition)
		if encErr == nil {
			_, _ = w.Write(body)
		}
	}
}
