// Package syncengine implements <D:sync-collection> REPORT replay (spec.md
// §4.6): given a client's opaque sync-token, return every change since that
// token coalesced by object id, bounded by an optional <limit><nresults>,
// and notify any registered push channel of the collection's new token.
package syncengine

import (
	"context"
	"errors"

	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/resource"
	"github.com/hearthdav/caldavd/internal/store"
)

// ErrTruncated signals the change set exceeded the client's requested
// limit; the caller (internal/dav) maps this to 507 Insufficient Storage
// with a <number-of-matches-within-limits> precondition element.
var ErrTruncated = errors.New("syncengine: result set truncated by limit")

// Notifier is implemented by internal/push's coalescing dispatcher.
// syncengine depends only on this narrow interface so the two packages
// don't import each other.
type Notifier interface {
	NotifyCollectionChanged(topic string, syncToken int64)
}

// Engine wraps a Store with sync-token replay and change notification.
type Engine struct {
	store    store.Store
	notifier Notifier
}

func New(s store.Store, n Notifier) *Engine {
	return &Engine{store: s, notifier: n}
}

// Result is one row of a sync-collection reply: either an object that was
// added/overwritten (Deleted == false, fetch its current data) or one that
// was deleted (report 404 per spec.md §4.6).
type Result struct {
	ObjectID string
	Deleted  bool
}

// Replay resolves client token clientToken (0 if the client sent none)
// against collectionKey's change log, returning coalesced rows plus the new
// sync-token to report back. If limit > 0 and more than limit distinct
// objects changed, it returns ErrTruncated alongside the (unbounded) results
// so the caller can still report number-of-matches-within-limits precisely.
func (e *Engine) Replay(ctx context.Context, collectionKey string, clientToken int64, limit int) ([]Result, int64, error) {
	entries, maxToken, err := e.store.ChangesSince(ctx, collectionKey, clientToken)
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		results = append(results, Result{ObjectID: entry.ObjectID, Deleted: entry.Operation == model.ChangeDelete})
	}
	if limit > 0 && len(results) > limit {
		return results, maxToken, ErrTruncated
	}
	return results, maxToken, nil
}

// Notify hands entry's sync token to the notifier under r's push topic, if
// r has one. It does not touch the store: the caller has already applied the
// change and appended entry, per spec.md §4.8's "notifier fires after the
// change-log append, never before" ordering.
func (e *Engine) Notify(r *resource.Resource, entry model.ChangeLogEntry) {
	if e.notifier == nil {
		return
	}
	topic := r.PushTopic()
	if topic == "" {
		return
	}
	e.notifier.NotifyCollectionChanged(topic, entry.SyncToken)
}
