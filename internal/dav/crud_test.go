package dav

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdav/caldavd/internal/acl"
	"github.com/hearthdav/caldavd/internal/auth"
	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
)

func strReader(s string) *strings.Reader { return strings.NewReader(s) }

func newTestHandlers(t *testing.T) (*Handlers, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.PutPrincipal(context.Background(), &model.Principal{ID: "alice", Kind: model.PrincipalIndividual}))
	require.NoError(t, s.PutCalendar(context.Background(), &model.Calendar{
		CollectionMeta: model.CollectionMeta{ID: "work", OwnerPrincipal: "alice"},
	}))
	require.NoError(t, s.PutAddressBook(context.Background(), &model.AddressBook{
		CollectionMeta: model.CollectionMeta{ID: "contacts", OwnerPrincipal: "alice"},
	}))
	h := &Handlers{
		Store:  s,
		ACL:    acl.NewOwnershipACL(),
		Logger: zerolog.Nop(),
		HTTP:   config.HTTPConfig{MaxICSBytes: 1 << 20, MaxVCFBytes: 1 << 20},
	}
	return h, s
}

func ctxAsAlice() context.Context {
	return auth.WithPrincipalID(context.Background(), "alice")
}

func icsEvent(uid, summary string) string {
	return fmt.Sprintf("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\nBEGIN:VEVENT\r\nUID:%s\r\nDTSTART:20260101T100000Z\r\nSUMMARY:%s\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n", uid, summary)
}

func TestPut_CreatesNewCalendarObject(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	req = req.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()

	h.Put(w, req)

	assert.Equal(t, 201, w.Code)
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestPut_OverwriteReturnsNoContent(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	h.Put(httptest.NewRecorder(), create)

	overwrite := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup (updated)")))
	overwrite = overwrite.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Put(w, overwrite)

	assert.Equal(t, 204, w.Code)
}

func TestPut_IfNoneMatchStarRejectsExisting(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	h.Put(httptest.NewRecorder(), create)

	again := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	again.Header.Set("If-None-Match", "*")
	again = again.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Put(w, again)

	assert.Equal(t, 412, w.Code)
}

func TestPut_DuplicateUIDWithinCalendarRejected(t *testing.T) {
	h, _ := newTestHandlers(t)
	first := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	first = first.WithContext(ctxAsAlice())
	h.Put(httptest.NewRecorder(), first)

	dup := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event2.ics", strReader(icsEvent("uid-1", "Another")))
	dup = dup.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Put(w, dup)

	assert.Equal(t, 403, w.Code)
}

func TestGet_ReturnsStoredObjectWithETag(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	putW := httptest.NewRecorder()
	h.Put(putW, create)
	etag := putW.Header().Get("ETag")

	get := httptest.NewRequest("GET", "/caldav/principal/alice/calendars/work/event1.ics", nil)
	get = get.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Get(w, get)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))
	assert.Contains(t, w.Body.String(), "uid-1")
}

func TestGet_IfNoneMatchReturnsNotModified(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	putW := httptest.NewRecorder()
	h.Put(putW, create)
	etag := putW.Header().Get("ETag")

	get := httptest.NewRequest("GET", "/caldav/principal/alice/calendars/work/event1.ics", nil)
	get.Header.Set("If-None-Match", etag)
	get = get.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Get(w, get)

	assert.Equal(t, 304, w.Code)
}

func TestGet_UnknownObjectReturnsNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	get := httptest.NewRequest("GET", "/caldav/principal/alice/calendars/work/missing.ics", nil)
	get = get.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Get(w, get)

	assert.Equal(t, 404, w.Code)
}

func TestDelete_IfMatchMismatchRejected(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	h.Put(httptest.NewRecorder(), create)

	del := httptest.NewRequest("DELETE", "/caldav/principal/alice/calendars/work/event1.ics", nil)
	del.Header.Set("If-Match", `"not-the-real-etag"`)
	del = del.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Delete(w, del)

	assert.Equal(t, 412, w.Code)
}

func TestDelete_RemovesObjectThenGetIs404(t *testing.T) {
	h, _ := newTestHandlers(t)
	create := httptest.NewRequest("PUT", "/caldav/principal/alice/calendars/work/event1.ics", strReader(icsEvent("uid-1", "Standup")))
	create = create.WithContext(ctxAsAlice())
	h.Put(httptest.NewRecorder(), create)

	del := httptest.NewRequest("DELETE", "/caldav/principal/alice/calendars/work/event1.ics", nil)
	del = del.WithContext(ctxAsAlice())
	delW := httptest.NewRecorder()
	h.Delete(delW, del)
	assert.Equal(t, 204, delW.Code)

	get := httptest.NewRequest("GET", "/caldav/principal/alice/calendars/work/event1.ics", nil)
	get = get.WithContext(ctxAsAlice())
	w := httptest.NewRecorder()
	h.Get(w, get)
	assert.Equal(t, 404, w.Code)
}

func TestOptions_AdvertisesDAVCapabilities(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest("OPTIONS", "/caldav/principal/alice/calendars/work", nil)
	w := httptest.NewRecorder()
	h.Options(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Header().Get("DAV"), "calendar-access")
	assert.Contains(t, w.Header().Get("Allow"), "PROPFIND")
}
