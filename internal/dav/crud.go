package dav

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	govcard "github.com/emersion/go-vcard"

	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/pkg/ical"
	"github.com/hearthdav/caldavd/pkg/vcard"
)

// Get and Head implement spec.md §4.4's object/collection retrieval: an
// object returns its stored bytes with a conditional-GET-aware ETag, and a
// calendar collection returns a synthesized VCALENDAR merging its objects.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request)  { h.get(w, r, true) }
func (h *Handlers) Head(w http.ResponseWriter, r *http.Request) { h.get(w, r, false) }

func (h *Handlers) get(w http.ResponseWriter, r *http.Request, withBody bool) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.priv.CanRead() {
		writeError(w, daverror.New(daverror.KindForbidden, "no read privilege"))
		return
	}

	switch b.res.Kind {
	case resource.KindCalendarObject, resource.KindAddressObject:
		data, _ := objectData(b.res)
		etag, _ := objectETag(b.res)
		ct, _ := objectContentType(b.res)
		if inm := r.Header.Get("If-None-Match"); inm != "" && etagMatches(inm, etag) {
			w.Header().Set("ETag", quoteETag(etag))
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("ETag", quoteETag(etag))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if withBody {
			_, _ = w.Write(data)
		}
	case resource.KindCalendar, resource.KindBirthdayCalendar:
		members, merr := b.res.Members(r.Context(), h.Store)
		if merr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, merr))
			return
		}
		var datas [][]byte
		for _, m := range members {
			if m.Object != nil {
				datas = append(datas, m.Object.Data)
			}
		}
		merged, merr2 := ical.MergeCalendar(datas, "-//hearthdav//caldavd//EN")
		if merr2 != nil {
			writeError(w, daverror.Wrap(daverror.KindInternal, merr2))
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(merged)))
		w.WriteHeader(http.StatusOK)
		if withBody {
			_, _ = w.Write(merged)
		}
	default:
		writeError(w, daverror.New(daverror.KindForbidden, "GET is not supported on this resource"))
	}
}

// Put implements spec.md §4.4's calendar/address object upload: UID-
// uniqueness-within-collection, component-whitelist, and If-Match/
// If-None-Match precondition enforcement, then a sync-token bump and push
// notification via the same Store call that appends the change log entry.
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	principalID, ok := auth.PrincipalIDFrom(r.Context())
	if !ok {
		writeError(w, daverror.New(daverror.KindUnauthorized, "no bound principal"))
		return
	}
	caller, err := h.Store.GetPrincipal(r.Context(), principalID)
	if err != nil {
		writeError(w, daverror.Wrap(daverror.KindUnauthorized, err))
		return
	}
	p, ok := ParsePath(r.URL.Path)
	if !ok || p.IsServiceRoot() || p.IsPrincipal() {
		writeError(w, daverror.New(daverror.KindForbidden, "cannot PUT to this path"))
		return
	}
	if !caller.HasIdentity(p.PrincipalID) {
		writeError(w, daverror.New(daverror.KindForbidden, "cannot write under another principal"))
		return
	}

	switch p.Tree {
	case TreeCalDAV:
		h.putCalendarObject(w, r, caller, p)
	default:
		h.putAddressObject(w, r, caller, p)
	}
}

func (h *Handlers) putCalendarObject(w http.ResponseWriter, r *http.Request, caller *model.Principal, p Path) {
	if p.Seg1 != "calendars" || p.Seg2 == "" || p.Seg3 == "" {
		writeError(w, daverror.New(daverror.KindForbidden, "objects must be created under a calendar"))
		return
	}
	if _, isBday := bdayAddressBookID(p.Seg2); isBday {
		writeError(w, daverror.New(daverror.KindForbidden, "the birthday calendar is read-only"))
		return
	}
	cal, err := h.Store.GetCalendar(r.Context(), p.PrincipalID, p.Seg2)
	if err != nil {
		writeError(w, notFoundOrStorage(err))
		return
	}
	collection := &resource.Resource{Kind: resource.KindCalendar, PrincipalID: p.PrincipalID, Calendar: cal}
	if !collection.GetUserPrivileges(r.Context(), caller, h.ACL).CanWriteContent() {
		writeError(w, daverror.New(daverror.KindForbidden, "no write-content privilege"))
		return
	}

	body, rerr := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if rerr != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, rerr))
		return
	}
	events, perr := ical.ParseCalendar(body)
	if perr != nil || len(events) == 0 {
		writeError(w, daverror.New(daverror.KindInvalidCalendarData, "body is not a valid iCalendar object"))
		return
	}
	uid := events[0].UID
	if !cal.SupportsComponent(events[0].ComponentType) {
		writeError(w, daverror.New(daverror.KindUnsupportedComponent, "component type not accepted by this calendar"))
		return
	}

	existing, gerr := h.Store.GetObject(r.Context(), collection.CollectionKey(), p.Seg3)
	exists := gerr == nil
	if gerr != nil && !errors.Is(gerr, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, gerr))
		return
	}
	currentETag := ""
	if exists {
		currentETag = ical.ETag(calendarObjectUID(existing.Data), existing.Data)
	}
	if !checkPreconditions(w, r, exists, currentETag) {
		return
	}

	if dup, derr := h.Store.FindObjectByUID(r.Context(), collection.CollectionKey(), uid); derr == nil && dup.ID != p.Seg3 {
		writeError(w, daverror.New(daverror.KindUIDConflict, "uid already used by another object in this calendar"))
		return
	} else if derr != nil && !errors.Is(derr, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, derr))
		return
	}

	obj := &model.CalendarObject{CalendarKey: collection.CollectionKey(), ID: p.Seg3, Data: body, UpdatedAt: store.Now()}
	entry, perr2 := h.Store.PutObject(r.Context(), obj)
	if perr2 != nil {
		writeError(w, daverror.Wrap(daverror.KindStorage, perr2))
		return
	}
	if h.Sync != nil {
		h.Sync.Notify(collection, entry)
	}

	w.Header().Set("ETag", quoteETag(ical.ETag(uid, body)))
	if exists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handlers) putAddressObject(w http.ResponseWriter, r *http.Request, caller *model.Principal, p Path) {
	if p.Seg1 == "" || p.Seg2 == "" {
		writeError(w, daverror.New(daverror.KindForbidden, "objects must be created under an address book"))
		return
	}
	ab, err := h.Store.GetAddressBook(r.Context(), p.PrincipalID, p.Seg1)
	if err != nil {
		writeError(w, notFoundOrStorage(err))
		return
	}
	collection := &resource.Resource{Kind: resource.KindAddressBook, PrincipalID: p.PrincipalID, AddressBook: ab}
	if !collection.GetUserPrivileges(r.Context(), caller, h.ACL).CanWriteContent() {
		writeError(w, daverror.New(daverror.KindForbidden, "no write-content privilege"))
		return
	}

	body, rerr := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if rerr != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, rerr))
		return
	}
	card, perr := govcard.NewDecoder(bytes.NewReader(body)).Decode()
	if perr != nil {
		writeError(w, daverror.New(daverror.KindInvalidAddressData, "body is not a valid vCard"))
		return
	}
	uid := card.Value(govcard.FieldUID)
	if uid == "" {
		writeError(w, daverror.New(daverror.KindInvalidAddressData, "vCard missing UID"))
		return
	}

	existing, gerr := h.Store.GetAddressObject(r.Context(), collection.CollectionKey(), p.Seg2)
	exists := gerr == nil
	if gerr != nil && !errors.Is(gerr, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, gerr))
		return
	}
	currentETag := ""
	if exists {
		currentETag = vcard.ETag(addressObjectUID(existing.Data), existing.Data)
	}
	if !checkPreconditions(w, r, exists, currentETag) {
		return
	}

	if dup, derr := h.Store.FindAddressObjectByUID(r.Context(), collection.CollectionKey(), uid); derr == nil && dup.ID != p.Seg2 {
		writeError(w, daverror.New(daverror.KindUIDConflict, "uid already used by another contact in this address book"))
		return
	} else if derr != nil && !errors.Is(derr, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, derr))
		return
	}

	obj := &model.AddressObject{AddressBookKey: collection.CollectionKey(), ID: p.Seg2, Data: body, UpdatedAt: store.Now()}
	entry, perr2 := h.Store.PutAddressObject(r.Context(), obj)
	if perr2 != nil {
		writeError(w, daverror.Wrap(daverror.KindStorage, perr2))
		return
	}
	if h.Sync != nil {
		h.Sync.Notify(collection, entry)
	}

	w.Header().Set("ETag", quoteETag(vcard.ETag(uid, body)))
	if exists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

// Delete implements spec.md §4.4: unbinding an object appends a change-log
// entry and notifies push subscribers of its parent collection; unbinding a
// calendar or address book soft-deletes it (spec.md §4.7 retention window).
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.priv.CanUnbind() {
		writeError(w, daverror.New(daverror.KindForbidden, "no unbind privilege"))
		return
	}
	if etag, ok := objectETag(b.res); ok {
		if im := r.Header.Get("If-Match"); im != "" && !etagMatches(im, etag) {
			writeError(w, daverror.New(daverror.KindPreconditionFailed, "If-Match precondition failed"))
			return
		}
	}

	switch b.res.Kind {
	case resource.KindCalendarObject:
		collectionKey := b.res.PrincipalID + "/" + b.res.Calendar.ID
		entry, derr := h.Store.DeleteObject(r.Context(), collectionKey, b.res.Object.ID)
		if derr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, derr))
			return
		}
		if h.Sync != nil {
			h.Sync.Notify(&resource.Resource{Kind: resource.KindCalendar, PrincipalID: b.res.PrincipalID, Calendar: b.res.Calendar}, entry)
		}
	case resource.KindAddressObject:
		collectionKey := b.res.PrincipalID + "/" + b.res.AddressBook.ID
		entry, derr := h.Store.DeleteAddressObject(r.Context(), collectionKey, b.res.Contact.ID)
		if derr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, derr))
			return
		}
		if h.Sync != nil {
			h.Sync.Notify(&resource.Resource{Kind: resource.KindAddressBook, PrincipalID: b.res.PrincipalID, AddressBook: b.res.AddressBook}, entry)
		}
	case resource.KindCalendar:
		if derr := h.Store.SoftDeleteCalendar(r.Context(), b.res.PrincipalID, b.res.Calendar.ID); derr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, derr))
			return
		}
	case resource.KindAddressBook:
		if derr := h.Store.SoftDeleteAddressBook(r.Context(), b.res.PrincipalID, b.res.AddressBook.ID); derr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, derr))
			return
		}
	default:
		writeError(w, daverror.New(daverror.KindForbidden, "DELETE is not supported on this resource"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move and Copy implement spec.md §4.4's MOVE/COPY for calendar objects
// (the only resource this store's MoveObject/PutObject pair supports
// relocating); address objects have no equivalent store primitive and are
// rejected with 403, matching the explicit non-goal that CardDAV's resource
// model is simpler than CalDAV's.
func (h *Handlers) Move(w http.ResponseWriter, r *http.Request) { h.moveOrCopy(w, r, true) }
func (h *Handlers) Copy(w http.ResponseWriter, r *http.Request) { h.moveOrCopy(w, r, false) }

func (h *Handlers) moveOrCopy(w http.ResponseWriter, r *http.Request, isMove bool) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if b.res.Kind != resource.KindCalendarObject {
		writeError(w, daverror.New(daverror.KindForbidden, "MOVE/COPY is only supported for calendar objects"))
		return
	}
	if isMove && !b.priv.CanUnbind() {
		writeError(w, daverror.New(daverror.KindForbidden, "no unbind privilege"))
		return
	}
	if !b.priv.CanRead() {
		writeError(w, daverror.New(daverror.KindForbidden, "no read privilege"))
		return
	}

	destHeader := r.Header.Get("Destination")
	if destHeader == "" {
		writeError(w, daverror.New(daverror.KindBadRequest, "Destination header required"))
		return
	}
	destPath, ok := ParsePath(hrefPath(destHeader))
	if !ok || destPath.Tree != TreeCalDAV || destPath.Seg1 != "calendars" || destPath.Seg2 == "" || destPath.Seg3 == "" {
		writeError(w, daverror.New(daverror.KindForbidden, "invalid Destination"))
		return
	}

	destCollection, derr := h.resolveResource(r.Context(), Path{Tree: TreeCalDAV, PrincipalID: destPath.PrincipalID, Seg1: "calendars", Seg2: destPath.Seg2})
	if derr != nil {
		writeError(w, derr)
		return
	}
	if !destCollection.GetUserPrivileges(r.Context(), b.caller, h.ACL).CanBind() {
		writeError(w, daverror.New(daverror.KindForbidden, "no bind privilege on destination"))
		return
	}

	srcKey := b.res.PrincipalID + "/" + b.res.Calendar.ID
	dstKey := destPath.PrincipalID + "/" + destPath.Seg2

	overwrite := r.Header.Get("Overwrite") != "F"
	if _, gerr := h.Store.GetObject(r.Context(), dstKey, destPath.Seg3); gerr == nil && !overwrite {
		writeError(w, daverror.New(daverror.KindPreconditionFailed, "destination exists and Overwrite is F"))
		return
	}

	if isMove {
		srcEntry, dstEntry, merr := h.Store.MoveObject(r.Context(), srcKey, b.res.Object.ID, dstKey, destPath.Seg3)
		if merr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, merr))
			return
		}
		if h.Sync != nil {
			h.Sync.Notify(&resource.Resource{Kind: resource.KindCalendar, PrincipalID: b.res.PrincipalID, Calendar: b.res.Calendar}, srcEntry)
			h.Sync.Notify(destCollection, dstEntry)
		}
	} else {
		obj := &model.CalendarObject{CalendarKey: destCollection.CollectionKey(), ID: destPath.Seg3, Data: b.res.Object.Data, UpdatedAt: store.Now()}
		entry, perr := h.Store.PutObject(r.Context(), obj)
		if perr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, perr))
			return
		}
		if h.Sync != nil {
			h.Sync.Notify(destCollection, entry)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkPreconditions applies If-Match/If-None-Match (RFC 7232 §3.1/3.2) to
// a PUT, given whether the target already exists and, if so, its current
// ETag.
func checkPreconditions(w http.ResponseWriter, r *http.Request, exists bool, currentETag string) bool {
	ifNoneMatch := r.Header.Get("If-None-Match")
	if ifNoneMatch == "*" && exists {
		writeError(w, daverror.New(daverror.KindPreconditionFailed, "resource already exists"))
		return false
	}
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		if !exists || !etagMatches(ifMatch, currentETag) {
			writeError(w, daverror.New(daverror.KindPreconditionFailed, "If-Match precondition failed"))
			return false
		}
	}
	if ifNoneMatch != "" && ifNoneMatch != "*" && exists && etagMatches(ifNoneMatch, currentETag) {
		writeError(w, daverror.New(daverror.KindPreconditionFailed, "If-None-Match precondition failed"))
		return false
	}
	return true
}

func etagMatches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(strings.Trim(strings.TrimSpace(tag), `"`))
		if tag == etag {
			return true
		}
	}
	return false
}

func quoteETag(etag string) string { return `"` + etag + `"` }
