package dav

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

// Mkcol implements spec.md §4.4's Extended-MKCOL handling for both MKCOL
// and MKCALENDAR: create a calendar under a calendar home, or an address
// book directly under a principal, with an optional <set><prop> body
// seeding its initial properties.
func (h *Handlers) Mkcol(w http.ResponseWriter, r *http.Request) {
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
	if !ok {
		writeError(w, daverror.New(daverror.KindNotFound, "path not recognised"))
		return
	}
	if p.IsServiceRoot() || p.IsPrincipal() {
		writeError(w, daverror.New(daverror.KindForbidden, "cannot create a collection here"))
		return
	}
	if !caller.HasIdentity(p.PrincipalID) {
		writeError(w, daverror.New(daverror.KindForbidden, "cannot create a collection under another principal"))
		return
	}

	body, berr := readMkcolBody(r)
	if berr != nil {
		writeError(w, berr)
		return
	}

	switch p.Tree {
	case TreeCalDAV:
		h.mkcalendar(w, r, p, body)
	default:
		h.mkaddressbook(w, r, p, body)
	}
}

func readMkcolBody(r *http.Request) (*MkcolRequest, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if err != nil {
		return nil, daverror.Wrap(daverror.KindBadRequest, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var req MkcolRequest
	if err := webdavxml.Unmarshal(raw, &req); err != nil {
		return nil, daverror.Wrap(daverror.KindBadRequest, err)
	}
	return &req, nil
}

func (h *Handlers) mkcalendar(w http.ResponseWriter, r *http.Request, p Path, body *MkcolRequest) {
	if p.Seg1 != "calendars" || p.Seg2 == "" || p.Seg3 != "" {
		writeError(w, daverror.New(daverror.KindForbidden, "calendars may only be created directly under the calendar home"))
		return
	}
	if _, reserved := bdayAddressBookID(p.Seg2); reserved {
		writeError(w, daverror.New(daverror.KindForbidden, "that name is reserved for the synthetic birthday calendar"))
		return
	}
	if _, err := h.Store.GetCalendar(r.Context(), p.PrincipalID, p.Seg2); err == nil {
		writeError(w, daverror.New(daverror.KindConflict, "calendar already exists"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, err))
		return
	}

	cal := &model.Calendar{
		CollectionMeta: model.CollectionMeta{OwnerPrincipal: p.PrincipalID, ID: p.Seg2, DisplayName: p.Seg2},
		Components:     []string{"VEVENT", "VTODO", "VJOURNAL"},
	}
	if body != nil {
		applyCalendarProps(cal, body.Set.Prop)
	}

	if err := h.Store.PutCalendar(r.Context(), cal); err != nil {
		writeError(w, daverror.Wrap(daverror.KindStorage, err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) mkaddressbook(w http.ResponseWriter, r *http.Request, p Path, body *MkcolRequest) {
	if p.Seg1 == "" || p.Seg2 != "" {
		writeError(w, daverror.New(daverror.KindForbidden, "address books may only be created directly under the principal"))
		return
	}
	if _, err := h.Store.GetAddressBook(r.Context(), p.PrincipalID, p.Seg1); err == nil {
		writeError(w, daverror.New(daverror.KindConflict, "address book already exists"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, daverror.Wrap(daverror.KindStorage, err))
		return
	}

	ab := &model.AddressBook{CollectionMeta: model.CollectionMeta{OwnerPrincipal: p.PrincipalID, ID: p.Seg1, DisplayName: p.Seg1}}
	if body != nil {
		if body.Set.Prop.DisplayName != nil {
			ab.DisplayName = *body.Set.Prop.DisplayName
		}
		if body.Set.Prop.AddressbookDescription != nil {
			ab.Description = *body.Set.Prop.AddressbookDescription
		}
	}

	if err := h.Store.PutAddressBook(r.Context(), ab); err != nil {
		writeError(w, daverror.Wrap(daverror.KindStorage, err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func applyCalendarProps(cal *model.Calendar, prop Prop) {
	if prop.DisplayName != nil {
		cal.DisplayName = *prop.DisplayName
	}
	if prop.CalendarDescription != nil {
		cal.Description = *prop.CalendarDescription
	}
	if prop.CalendarColor != nil {
		cal.Color = *prop.CalendarColor
	}
	if prop.CalendarOrder != nil {
		if n, err := strconv.Atoi(*prop.CalendarOrder); err == nil {
			cal.Order = n
		}
	}
	if prop.CalendarTimezone != nil {
		cal.TimeZoneID = *prop.CalendarTimezone
	}
	if prop.SupportedComponentSet != nil && len(prop.SupportedComponentSet.Comp) > 0 {
		comps := make([]string, 0, len(prop.SupportedComponentSet.Comp))
		for _, c := range prop.SupportedComponentSet.Comp {
			comps = append(comps, c.Name)
		}
		cal.Components = comps
	}
}
