package dav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"

	"github.com/hearthdav/caldavd/internal/dav/daverror"
	"github.com/hearthdav/caldavd/internal/filter"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/internal/syncengine"
	"github.com/hearthdav/caldavd/pkg/ical"
	"github.com/hearthdav/caldavd/pkg/webdavxml"
)

// Report implements spec.md §4.5/§4.6: dispatch a REPORT body to
// calendar-query, calendar-multiget/addressbook-multiget, or
// sync-collection handling by its root element name.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	b, err := h.resolve(r.Context(), r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if !b.priv.CanRead() {
		writeError(w, daverror.New(daverror.KindForbidden, "no read privilege"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDAVBodyBytes))
	if err != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, err))
		return
	}
	doc := etree.NewDocument()
	if derr := doc.ReadFromBytes(body); derr != nil || doc.Root() == nil {
		writeError(w, daverror.New(daverror.KindBadRequest, "malformed REPORT body"))
		return
	}

	switch doc.Root().Tag {
	case "calendar-query":
		h.reportCalendarQuery(w, r, b, body)
	case "calendar-multiget":
		h.reportMultiget(w, r, b, body, nCalendarData)
	case "addressbook-multiget":
		h.reportMultiget(w, r, b, body, nAddressData)
	case "sync-collection":
		h.reportSyncCollection(w, r, b, body)
	default:
		writeError(w, daverror.New(daverror.KindBadRequest, "unsupported REPORT type"))
	}
}

func (h *Handlers) reportCalendarQuery(w http.ResponseWriter, r *http.Request, b *bound, body []byte) {
	var req CalendarQueryRequest
	if err := webdavxml.Unmarshal(body, &req); err != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, err))
		return
	}
	root := buildCompFilter(req.Filter.CompFilter)

	members, err := b.res.Members(r.Context(), h.Store)
	if err != nil {
		writeError(w, daverror.Wrap(daverror.KindStorage, err))
		return
	}

	names := []webdavxml.Name{nGetETag}
	if req.Prop != nil {
		names = req.RequestedNames()
	}
	if req.CalendarData != nil && !containsName(names, nCalendarData) {
		names = append(names, nCalendarData)
	}

	ms := &Multistatus{}
	for _, member := range members {
		if member.Kind != resource.KindCalendarObject {
			continue
		}
		if !matchesCalendarFilter(member.Object.Data, root) {
			continue
		}
		ms.Response = append(ms.Response, h.dataResponse(b, member, names))
	}
	h.writeMultistatus(w, ms)
}

// matchesCalendarFilter narrows candidates with filter.Prefilter's
// time-range window (expanding recurrences only across that window, per
// spec.md §4.5 "Prefiltering") before re-evaluating the full filter tree.
func matchesCalendarFilter(data []byte, root filter.CompFilter) bool {
	events, err := ical.ParseCalendar(data)
	if err != nil {
		return false
	}
	if start, end, ok := filter.Prefilter(root); ok {
		expander := ical.NewRecurrenceExpander(time.UTC)
		if expanded, eerr := expander.ExpandRecurrences(events, start, end); eerr == nil {
			events = expanded
		}
	}
	return filter.Matches(root, events)
}

func (h *Handlers) reportMultiget(w http.ResponseWriter, r *http.Request, b *bound, body []byte, dataName webdavxml.Name) {
	var req MultigetRequest
	if err := webdavxml.Unmarshal(body, &req); err != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, err))
		return
	}
	names := allPropNames
	if req.Prop != nil {
		names = req.RequestedNames()
	}
	if !containsName(names, dataName) {
		names = append(names, dataName)
	}

	ms := &Multistatus{}
	for _, href := range req.Href {
		p, ok := ParsePath(hrefPath(href))
		if !ok {
			ms.Response = append(ms.Response, notFoundResponse(href))
			continue
		}
		target, terr := h.resolveResource(r.Context(), p)
		if terr != nil {
			ms.Response = append(ms.Response, notFoundResponse(href))
			continue
		}
		ms.Response = append(ms.Response, h.dataResponse(b, target, names))
	}
	h.writeMultistatus(w, ms)
}

func (h *Handlers) reportSyncCollection(w http.ResponseWriter, r *http.Request, b *bound, body []byte) {
	if h.Sync == nil {
		writeError(w, daverror.New(daverror.KindInternal, "sync engine unavailable"))
		return
	}
	var req SyncCollectionRequest
	if err := webdavxml.Unmarshal(body, &req); err != nil {
		writeError(w, daverror.Wrap(daverror.KindBadRequest, err))
		return
	}
	clientToken, terr := resource.ParseSyncToken(req.SyncToken)
	if terr != nil {
		writeError(w, daverror.New(daverror.KindBadRequest, "malformed sync-token"))
		return
	}

	collectionKey := b.res.CollectionKey()
	if collectionKey == "" {
		writeError(w, daverror.New(daverror.KindForbidden, "sync-collection requires a calendar or address book"))
		return
	}
	limit := 0
	if req.Limit != nil {
		limit = req.Limit.NResults
	}

	results, newToken, rerr := h.Sync.Replay(r.Context(), collectionKey, clientToken, limit)
	if rerr != nil && !errors.Is(rerr, syncengine.ErrTruncated) {
		writeError(w, daverror.Wrap(daverror.KindStorage, rerr))
		return
	}
	if errors.Is(rerr, syncengine.ErrTruncated) {
		writeError(w, daverror.New(daverror.KindInsufficientStorage, "too many changes for requested limit"))
		return
	}

	names := allPropNames
	if req.Prop != nil {
		names = req.RequestedNames()
	}

	ms := &Multistatus{}
	token := resource.FormatSyncToken(newToken)
	ms.SyncToken = &token
	for _, result := range results {
		href := childHref(b.res, result.ObjectID)
		if result.Deleted {
			notFound := statusLine(http.StatusNotFound)
			ms.Response = append(ms.Response, MultistatusResponse{Href: href, Status: &notFound})
			continue
		}
		target, merr := h.memberObject(r.Context(), b.res, result.ObjectID)
		if merr != nil {
			continue
		}
		ms.Response = append(ms.Response, h.dataResponse(b, target, names))
	}
	h.writeMultistatus(w, ms)
}

// memberObject resolves one object id directly under collection, the way
// sync-collection's change-log rows name their target (spec.md §4.6).
func (h *Handlers) memberObject(ctx context.Context, collection *resource.Resource, objectID string) (*resource.Resource, error) {
	switch collection.Kind {
	case resource.KindCalendar, resource.KindBirthdayCalendar:
		obj, err := h.Store.GetObject(ctx, collection.CollectionKey(), objectID)
		if err != nil {
			return nil, err
		}
		return &resource.Resource{Kind: resource.KindCalendarObject, PrincipalID: collection.PrincipalID, Calendar: collection.Calendar, Object: obj}, nil
	case resource.KindAddressBook:
		contact, err := h.Store.GetAddressObject(ctx, collection.CollectionKey(), objectID)
		if err != nil {
			return nil, err
		}
		return &resource.Resource{Kind: resource.KindAddressObject, PrincipalID: collection.PrincipalID, AddressBook: collection.AddressBook, Contact: contact}, nil
	}
	return nil, errors.New("sync-collection: unsupported collection kind")
}

func childHref(collection *resource.Resource, objectID string) string {
	base := resourceHref(collection)
	return base + "/" + objectID
}

func notFoundResponse(href string) MultistatusResponse {
	return MultistatusResponse{Href: href, PropStat: []PropStat{{Status: statusLine(http.StatusNotFound)}}}
}

func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path
}

func containsName(names []webdavxml.Name, n webdavxml.Name) bool {
	for _, name := range names {
		if name == n {
			return true
		}
	}
	return false
}

func (h *Handlers) dataResponse(b *bound, target *resource.Resource, names []webdavxml.Name) MultistatusResponse {
	prop, missing := h.buildProp(target, b, names)
	resp := MultistatusResponse{Href: resourceHref(target)}
	resp.PropStat = append(resp.PropStat, PropStat{Prop: prop, Status: statusLine(http.StatusOK)})
	if len(missing) > 0 {
		resp.PropStat = append(resp.PropStat, PropStat{Status: statusLine(http.StatusNotFound)})
	}
	return resp
}

func (h *Handlers) writeMultistatus(w http.ResponseWriter, ms *Multistatus) {
	body, err := marshalMultistatus(ms)
	if err != nil {
		writeError(w, daverror.Wrap(daverror.KindInternal, err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(body)
}

func buildCompFilter(el CompFilterElement) filter.CompFilter {
	cf := filter.CompFilter{Name: el.Name, IsNotDefined: el.IsNotDefined != nil}
	if el.TimeRange != nil {
		tr := buildTimeRange(*el.TimeRange)
		cf.TimeRange = &tr
	}
	for _, pf := range el.PropFilter {
		cf.PropFilters = append(cf.PropFilters, buildPropFilter(pf))
	}
	for _, sub := range el.CompFilter {
		cf.CompFilters = append(cf.CompFilters, buildCompFilter(sub))
	}
	return cf
}

func buildPropFilter(el PropFilterElement) filter.PropFilter {
	pf := filter.PropFilter{Name: el.Name, IsNotDefined: el.IsNotDefined != nil}
	if el.TimeRange != nil {
		tr := buildTimeRange(*el.TimeRange)
		pf.TimeRange = &tr
	}
	if el.TextMatch != nil {
		tm := buildTextMatch(*el.TextMatch)
		pf.TextMatch = &tm
	}
	for _, p := range el.ParamFilter {
		pf.ParamFilters = append(pf.ParamFilters, buildParamFilter(p))
	}
	return pf
}

func buildParamFilter(el ParamFilterElement) filter.ParamFilter {
	pf := filter.ParamFilter{Name: el.Name, IsNotDefined: el.IsNotDefined != nil}
	if el.TextMatch != nil {
		tm := buildTextMatch(*el.TextMatch)
		pf.TextMatch = &tm
	}
	return pf
}

func buildTextMatch(el TextMatchElement) filter.TextMatch {
	return filter.TextMatch{
		Collation:       filter.Collation(el.Collation),
		NegateCondition: el.NegateCondition == "yes",
		MatchType:       filter.MatchType(el.MatchType),
		Needle:          el.Value,
	}
}

func buildTimeRange(el TimeRangeElement) filter.TimeRange {
	var tr filter.TimeRange
	if el.Start != "" {
		if t, _, err := ical.ParseDateTime(el.Start); err == nil {
			tr.Start = t
		}
	}
	if el.End != "" {
		if t, _, err := ical.ParseDateTime(el.End); err == nil {
			tr.End = t
		}
	}
	return tr
}
