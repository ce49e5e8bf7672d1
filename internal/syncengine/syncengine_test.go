package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/internal/store"
)

type fakeNotifier struct {
	topics []string
	tokens []int64
}

func (f *fakeNotifier) NotifyCollectionChanged(topic string, syncToken int64) {
	f.topics = append(f.topics, topic)
	f.tokens = append(f.tokens, syncToken)
}

func seedCalendar(t *testing.T, s store.Store, owner, calID string) {
	t.Helper()
	require.NoError(t, s.PutCalendar(context.Background(), &model.Calendar{CollectionMeta: model.CollectionMeta{ID: calID, OwnerPrincipal: owner, PushTopic: "topic-" + calID}}))
}

func TestReplay_ReturnsChangesSinceToken(t *testing.T) {
	s := store.NewMemoryStore()
	seedCalendar(t, s, "alice", "cal1")
	e := New(s, nil)
	ctx := context.Background()

	_, err := s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: "obj1", Data: []byte("BEGIN:VCALENDAR\nEND:VCALENDAR")})
	require.NoError(t, err)
	_, err = s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: "obj2", Data: []byte("BEGIN:VCALENDAR\nEND:VCALENDAR")})
	require.NoError(t, err)

	results, token, err := e.Replay(ctx, "alice/cal1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), token)
	assert.Len(t, results, 2)
	assert.False(t, results[0].Deleted)
}

func TestReplay_SinceExcludesAlreadySeenChanges(t *testing.T) {
	s := store.NewMemoryStore()
	seedCalendar(t, s, "alice", "cal1")
	e := New(s, nil)
	ctx := context.Background()

	firstEntry, err := s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: "obj1", Data: []byte("x")})
	require.NoError(t, err)
	_, err = s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: "obj2", Data: []byte("x")})
	require.NoError(t, err)

	results, token, err := e.Replay(ctx, "alice/cal1", firstEntry.SyncToken, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), token)
	require.Len(t, results, 1)
	assert.Equal(t, "obj2", results[0].ObjectID)
}

func TestReplay_DeletedObjectReportedAsDeleted(t *testing.T) {
	s := store.NewMemoryStore()
	seedCalendar(t, s, "alice", "cal1")
	e := New(s, nil)
	ctx := context.Background()

	_, err := s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: "obj1", Data: []byte("x")})
	require.NoError(t, err)
	_, err = s.DeleteObject(ctx, "alice/cal1", "obj1")
	require.NoError(t, err)

	results, _, err := e.Replay(ctx, "alice/cal1", 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Deleted)
}

func TestReplay_TruncatesWhenOverLimit(t *testing.T) {
	s := store.NewMemoryStore()
	seedCalendar(t, s, "alice", "cal1")
	e := New(s, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.PutObject(ctx, &model.CalendarObject{CalendarKey: "alice/cal1", ID: string(rune('a' + i)), Data: []byte("x")})
		require.NoError(t, err)
	}

	results, _, err := e.Replay(ctx, "alice/cal1", 0, 2)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Len(t, results, 3)
}

func TestNotify_FiresRegisteredNotifierWithTopicAndToken(t *testing.T) {
	fn := &fakeNotifier{}
	e := New(store.NewMemoryStore(), fn)
	cal := &model.Calendar{CollectionMeta: model.CollectionMeta{ID: "cal1", PushTopic: "topic-cal1"}}
	res := &resource.Resource{Kind: resource.KindCalendar, PrincipalID: "alice", Calendar: cal}

	e.Notify(res, model.ChangeLogEntry{SyncToken: 7})

	require.Len(t, fn.topics, 1)
	assert.Equal(t, "topic-cal1", fn.topics[0])
	assert.Equal(t, int64(7), fn.tokens[0])
}

func TestNotify_NoopWithoutNotifierOrTopic(t *testing.T) {
	e := New(store.NewMemoryStore(), nil)
	res := &resource.Resource{Kind: resource.KindCalendar, PrincipalID: "alice", Calendar: &model.Calendar{CollectionMeta: model.CollectionMeta{ID: "cal1"}}}
	assert.NotPanics(t, func() { e.Notify(res, model.ChangeLogEntry{SyncToken: 1}) })

	fn := &fakeNotifier{}
	e2 := New(store.NewMemoryStore(), fn)
	noTopic := &resource.Resource{Kind: resource.KindCalendar, PrincipalID: "alice", Calendar: &model.Calendar{CollectionMeta: model.CollectionMeta{ID: "cal1"}}}
	e2.Notify(noTopic, model.ChangeLogEntry{SyncToken: 1})
	assert.Empty(t, fn.topics)
}
