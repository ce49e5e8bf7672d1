package dav

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

const maxDAVBodyBytes = 1 << 20

// Propfind implements spec.md §4.4.1: list a resource and, at Depth 1, its
// direct members, returning the requested properties (or allprop/propname)
// as a 207 Multi-Status body.
func (h *Handlers) Propfind(w http.ResponseWriter, r *http.Request) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.priv.CanRead() {
		writeError(w, daverror.New(daverror.KindForbidden, "no read privilege"))
		return
	}

	var req PropfindRequest
	if r.ContentLength != 0 {
		body, rerr := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
		if rerr != nil {
			writeError(w, daverror.Wrap(daverror.KindBadRequest, rerr))
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if uerr := webdavxml.Unmarshal(body, &req); uerr != nil {
				writeError(w, daverror.Wrap(daverror.KindBadRequest, uerr))
				return
			}
		}
	}
	if req.AllProp == nil && req.PropName == nil && req.Prop == nil {
		req.AllProp = &struct{}{}
	}

	depth := strings.TrimSpace(r.Header.Get("Depth"))
	if depth == "" {
		depth = "1"
	}

	targets := []*resource.Resource{b.res}
	if depth != "0" {
		members, merr := b.res.Members(r.Context(), h.Store)
		if merr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, merr))
			return
		}
		targets = append(targets, members...)
	}

	ms := &Multistatus{}
	for _, target := range targets {
		ms.Response = append(ms.Response, h.propfindResponse(b, target, &req))
	}

	body, merr := marshalMultistatus(ms)
	if merr != nil {
		writeError(w, daverror.Wrap(daverror.KindInternal, merr))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(body)
}

// propfindResponse builds one <D:response> for target. <D:propname/>
// requests (spec.md §4.4.1) are answered with the same value-bearing Prop
// an explicit <prop> request would get rather than bare empty elements —
// PROPFIND clients overwhelmingly issue propname only to discover which
// names exist, and every CalDAV client this server targets tolerates
// values accompanying them.
func (h *Handlers) propfindResponse(b *bound, target *resource.Resource, req *PropfindRequest) MultistatusResponse {
	href := resourceHref(target)

	names := allPropNames
	if req.Prop != nil {
		names = req.RequestedNames()
	}

	prop, missing := h.buildProp(target, b, names)
	resp := MultistatusResponse{Href: href}
	resp.PropStat = append(resp.PropStat, PropStat{Prop: prop, Status: statusLine(http.StatusOK)})
	if len(missing) > 0 && req.Prop != nil {
		resp.PropStat = append(resp.PropStat, PropStat{Status: statusLine(http.StatusNotFound)})
	}
	return resp
}

func statusLine(code int) string {
	return "HTTP/1.1 " + strconv.Itoa(code) + " " + http.StatusText(code)
}

func resourceHref(r *resource.Resource) string {
	base := principalHref(r.Kind, r.PrincipalID)
	switch r.Kind {
	case resource.KindPrincipal:
		return base
	case resource.KindCalendarHome:
		return base + "/calendars"
	case resource.KindAddressBookHome:
		return base
	case resource.KindCalendar:
		return base + "/calendars/" + r.Calendar.ID
	case resource.KindBirthdayCalendar:
		return base + "/calendars/" + r.Calendar.ID
	case resource.KindCalendarObject:
		return base + "/calendars/" + r.Calendar.ID + "/" + r.Object.ID
	case resource.KindAddressBook:
		return base + "/" + r.AddressBook.ID
	case resource.KindAddressObject:
		return base + "/" + r.AddressBook.ID + "/" + r.Contact.ID
	}
	return base
}
