package dav

import (
	"context"
	"io"
	"net/http"

	"github.com/beevik/etree"

	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

// Proppatch implements spec.md §4.4.2: apply a <propertyupdate>'s <set>/
// <remove> operations in the order received, returning one propstat per
// named property (ok / read-only / not-found). Objects carry no mutable
// properties in this implementation (spec.md §4.3 "objects accept content
// replacement via PUT, not property mutation"), so only collections accept
// PROPPATCH.
func (h *Handlers) Proppatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.priv.CanWriteProperties() {
		writeError(w, daverror.New(daverror.KindForbidden, "no write-properties privilege"))
		return
	}
	if !b.res.IsCollection() {
		writeError(w, daverror.New(daverror.KindForbidden, "properties are read-only on this resource"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if err != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, err))
		return
	}
	doc := etree.NewDocument()
	if derr := doc.ReadFromBytes(body); derr != nil || doc.Root() == nil {
		writeError(w, daverror.New(daverror.KindBadRequest, "malformed propertyupdate body"))
		return
	}

	var propStats []PropStat
	changed := false
	for _, opEl := range doc.Root().ChildElements() {
		apply := h.applySet
		if opEl.Tag == "remove" {
			apply = func(res *resource.Resource, name webdavxml.Name, _ *etree.Element) int {
				return h.applyRemove(res, name)
			}
		} else if opEl.Tag != "set" {
			continue
		}
		for _, propEl := range opEl.ChildElements() {
			if propEl.Tag != "prop" {
				continue
			}
			for _, el := range propEl.ChildElements() {
				name := elementName(el)
				status := apply(b.res, name, el)
				propStats = append(propStats, namedStatusPropStat(name, status))
				if status == http.StatusOK {
					changed = true
				}
			}
		}
	}

	if changed {
		if serr := h.saveCollection(r.Context(), b.res); serr != nil {
			writeError(w, daverror.Wrap(daverror.KindStorage, serr))
			return
		}
	}

	ms := &Multistatus{Response: []MultistatusResponse{{Href: resourceHref(b.res), PropStat: propStats}}}
	respBody, merr := marshalMultistatus(ms)
	if merr != nil {
		writeError(w, daverror.Wrap(daverror.KindInternal, merr))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(respBody)
}

// elementName mirrors resource.Resource.SetProp's own namespace resolution
// so a dead property set via PROPPATCH and later read back via GetProp
// addresses under the same key.
func elementName(el *etree.Element) webdavxml.Name {
	name := webdavxml.Name{Space: el.Space, Local: el.Tag}
	if ns := el.NamespaceURI(); ns != "" {
		name.Space = ns
	}
	return name
}

// applySet either routes to a typed field setter (displayname and the
// handful of other mutable properties resource.Resource exposes) or falls
// back to dead-property storage (spec.md §4.3 "properties with no typed
// field round-trip as opaque XML").
func (h *Handlers) applySet(res *resource.Resource, name webdavxml.Name, el *etree.Element) int {
	switch name {
	case nDisplayName:
		if err := res.SetDisplayName(el.Text()); err != nil {
			return http.StatusConflict
		}
		return http.StatusOK
	case nCalDescription:
		if res.Calendar == nil {
			return http.StatusConflict
		}
		res.Calendar.Description = el.Text()
		return http.StatusOK
	case nAddrDescription:
		if res.AddressBook == nil {
			return http.StatusConflict
		}
		res.AddressBook.Description = el.Text()
		return http.StatusOK
	case nResourceType, nOwner, nGetETag, nSyncToken, nGetContentType, nGetContentLen:
		return http.StatusConflict
	}
	if result := res.SetProp(el); result.IsError() {
		return http.StatusConflict
	}
	return http.StatusOK
}

func (h *Handlers) applyRemove(res *resource.Resource, name webdavxml.Name) int {
	switch name {
	case nDisplayName:
		_ = res.SetDisplayName("")
		return http.StatusOK
	case nResourceType, nOwner, nGetETag, nSyncToken, nGetContentType, nGetContentLen:
		return http.StatusConflict
	}
	if outcome := res.RemoveProp(name); outcome.IsAbsent() {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (h *Handlers) saveCollection(ctx context.Context, res *resource.Resource) error {
	switch res.Kind {
	case resource.KindCalendar, resource.KindBirthdayCalendar:
		if res.Calendar == nil {
			return nil
		}
		return h.Store.PutCalendar(ctx, res.Calendar)
	case resource.KindAddressBook:
		return h.Store.PutAddressBook(ctx, res.AddressBook)
	}
	return nil
}

func namedStatusPropStat(name webdavxml.Name, status int) PropStat {
	return PropStat{Prop: propNamedPlaceholder(name), Status: statusLine(status)}
}

func propNamedPlaceholder(name webdavxml.Name) Prop {
	var p Prop
	switch name {
	case nDisplayName:
		empty := ""
		p.DisplayName = &empty
	case nCalDescription:
		empty := ""
		p.CalendarDescription = &empty
	case nAddrDescription:
		empty := ""
		p.AddressbookDescription = &empty
	default:
		el := etree.NewElement(name.Local)
		if name.Space != "" {
			el.Space = name.Space
		}
		p.Dead = []etree.Element{*el}
	}
	return p
}
