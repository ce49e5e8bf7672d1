package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hearthdav/caldavd/internal/model"
)

// MemoryStore is the reference Store implementation: everything lives in
// process memory behind one mutex, the way the teacher's filestore keeps
// everything under one root directory behind a per-calendar lock. There is
// no on-disk durability; it exists for tests and for running the server
// without an external dependency.
type MemoryStore struct {
	mu sync.Mutex

	principals map[string]*model.Principal

	calendars map[string]map[string]*model.Calendar     // owner -> id -> calendar
	addrbooks map[string]map[string]*model.AddressBook   // owner -> id -> addressbook
	objects   map[string]map[string]*model.CalendarObject // calendarKey -> id -> object
	contacts  map[string]map[string]*model.AddressObject  // addressBookKey -> id -> object
	changes   map[string][]model.ChangeLogEntry           // collectionKey -> ordered log
	tokens    map[string]int64                            // collectionKey -> current sync token

	subscriptions map[string]*model.Subscription // id -> subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals:    map[string]*model.Principal{},
		calendars:     map[string]map[string]*model.Calendar{},
		addrbooks:     map[string]map[string]*model.AddressBook{},
		objects:       map[string]map[string]*model.CalendarObject{},
		contacts:      map[string]map[string]*model.AddressObject{},
		changes:       map[string][]model.ChangeLogEntry{},
		tokens:        map[string]int64{},
		subscriptions: map[string]*model.Subscription{},
	}
}

var _ Store = (*MemoryStore)(nil)

// --- Principals ---

func (s *MemoryStore) GetPrincipal(_ context.Context, id string) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, fmt.Errorf("%w: principal %q", ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPrincipals(_ context.Context) ([]*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutPrincipal(_ context.Context, p *model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.principals[p.ID] = &cp
	return nil
}

func (s *MemoryStore) RemovePrincipal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return fmt.Errorf("%w: principal %q", ErrNotFound, id)
	}
	delete(s.principals, id)
	return nil
}

func (s *MemoryStore) AddMembership(_ context.Context, id, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return fmt.Errorf("%w: principal %q", ErrNotFound, id)
	}
	for _, m := range p.Memberships {
		if m == groupID {
			return nil
		}
	}
	p.Memberships = append(p.Memberships, groupID)
	return nil
}

func (s *MemoryStore) RemoveMembership(_ context.Context, id, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return fmt.Errorf("%w: principal %q", ErrNotFound, id)
	}
	out := p.Memberships[:0]
	for _, m := range p.Memberships {
		if m != groupID {
			out = append(out, m)
		}
	}
	p.Memberships = out
	return nil
}

func (s *MemoryStore) AddAppToken(_ context.Context, principalID string, tok model.AppToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[principalID]
	if !ok {
		return fmt.Errorf("%w: principal %q", ErrNotFound, principalID)
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	p.AppTokens = append(p.AppTokens, tok)
	return nil
}

func (s *MemoryStore) RemoveAppToken(_ context.Context, principalID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[principalID]
	if !ok {
		return fmt.Errorf("%w: principal %q", ErrNotFound, principalID)
	}
	out := p.AppTokens[:0]
	for _, t := range p.AppTokens {
		if t.ID != tokenID {
			out = append(out, t)
		}
	}
	p.AppTokens = out
	return nil
}

// --- Calendars ---

func (s *MemoryStore) GetCalendar(_ context.Context, owner, id string) (*model.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[owner][id]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %q/%q", ErrNotFound, owner, id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCalendars(_ context.Context, owner string) ([]*model.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Calendar, 0, len(s.calendars[owner]))
	for _, c := range s.calendars[owner] {
		if c.IsDeleted() {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutCalendar(_ context.Context, c *model.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calendars[c.OwnerPrincipal] == nil {
		s.calendars[c.OwnerPrincipal] = map[string]*model.Calendar{}
	}
	if existing, ok := s.calendars[c.OwnerPrincipal][c.ID]; ok && !existing.IsDeleted() && existing != c {
		// no-op: a live calendar is overwritten in place, which is how
		// metadata updates are saved; MKCALENDAR checks for an existing one
	}
	cp := *c
	s.calendars[c.OwnerPrincipal][c.ID] = &cp
	return nil
}

func (s *MemoryStore) SoftDeleteCalendar(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[owner][id]
	if !ok {
		return fmt.Errorf("%w: calendar %q/%q", ErrNotFound, owner, id)
	}
	now := Now().UTC()
	c.DeletedAt = &now
	return nil
}

func (s *MemoryStore) HardDeleteCalendar(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := collectionKey(owner, id)
	if _, ok := s.calendars[owner][id]; !ok {
		return fmt.Errorf("%w: calendar %q/%q", ErrNotFound, owner, id)
	}
	delete(s.calendars[owner], id)
	delete(s.objects, key)
	delete(s.changes, key)
	delete(s.tokens, key)
	return nil
}

func (s *MemoryStore) RestoreCalendar(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[owner][id]
	if !ok {
		return fmt.Errorf("%w: calendar %q/%q", ErrNotFound, owner, id)
	}
	c.DeletedAt = nil
	return nil
}

// --- Address books ---

func (s *MemoryStore) GetAddressBook(_ context.Context, owner, id string) (*model.AddressBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addrbooks[owner][id]
	if !ok {
		return nil, fmt.Errorf("%w: addressbook %q/%q", ErrNotFound, owner, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAddressBooks(_ context.Context, owner string) ([]*model.AddressBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AddressBook, 0, len(s.addrbooks[owner]))
	for _, a := range s.addrbooks[owner] {
		if a.IsDeleted() {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutAddressBook(_ context.Context, a *model.AddressBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrbooks[a.OwnerPrincipal] == nil {
		s.addrbooks[a.OwnerPrincipal] = map[string]*model.AddressBook{}
	}
	cp := *a
	s.addrbooks[a.OwnerPrincipal][a.ID] = &cp
	return nil
}

func (s *MemoryStore) SoftDeleteAddressBook(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addrbooks[owner][id]
	if !ok {
		return fmt.Errorf("%w: addressbook %q/%q", ErrNotFound, owner, id)
	}
	now := Now().UTC()
	a.DeletedAt = &now
	return nil
}

func (s *MemoryStore) HardDeleteAddressBook(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := collectionKey(owner, id)
	if _, ok := s.addrbooks[owner][id]; !ok {
		return fmt.Errorf("%w: addressbook %q/%q", ErrNotFound, owner, id)
	}
	delete(s.addrbooks[owner], id)
	delete(s.contacts, key)
	delete(s.changes, key)
	delete(s.tokens, key)
	return nil
}

func (s *MemoryStore) RestoreAddressBook(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addrbooks[owner][id]
	if !ok {
		return fmt.Errorf("%w: addressbook %q/%q", ErrNotFound, owner, id)
	}
	a.DeletedAt = nil
	return nil
}

// --- Calendar objects ---

func (s *MemoryStore) GetObject(_ context.Context, calendarKey, id string) (*model.CalendarObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[calendarKey][id]
	if !ok {
		return nil, fmt.Errorf("%w: object %q/%q", ErrNotFound, calendarKey, id)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) FindObjectByUID(_ context.Context, calendarKey, uid string) (*model.CalendarObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects[calendarKey] {
		if objectUID(o.Data) == uid {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: uid %q", ErrNotFound, uid)
}

func (s *MemoryStore) ListObjects(_ context.Context, calendarKey string) ([]*model.CalendarObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.CalendarObject, 0, len(s.objects[calendarKey]))
	for _, o := range s.objects[calendarKey] {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutObject(_ context.Context, obj *model.CalendarObject) (model.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[obj.CalendarKey] == nil {
		s.objects[obj.CalendarKey] = map[string]*model.CalendarObject{}
	}
	cp := *obj
	s.objects[obj.CalendarKey][obj.ID] = &cp
	return s.appendChangeLocked(obj.CalendarKey, obj.ID, model.ChangeAdd), nil
}

func (s *MemoryStore) DeleteObject(_ context.Context, calendarKey, id string) (model.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[calendarKey][id]; !ok {
		return model.ChangeLogEntry{}, fmt.Errorf("%w: object %q/%q", ErrNotFound, calendarKey, id)
	}
	delete(s.objects[calendarKey], id)
	return s.appendChangeLocked(calendarKey, id, model.ChangeDelete), nil
}

func (s *MemoryStore) MoveObject(_ context.Context, srcKey, id, dstKey, dstID string) (model.ChangeLogEntry, model.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[srcKey][id]
	if !ok {
		return model.ChangeLogEntry{}, model.ChangeLogEntry{}, fmt.Errorf("%w: object %q/%q", ErrNotFound, srcKey, id)
	}
	moved := *obj
	moved.CalendarKey = dstKey
	moved.ID = dstID
	delete(s.objects[srcKey], id)
	if s.objects[dstKey] == nil {
		s.objects[dstKey] = map[string]*model.CalendarObject{}
	}
	s.objects[dstKey][dstID] = &moved
	delEntry := s.appendChangeLocked(srcKey, id, model.ChangeDelete)
	addEntry := s.appendChangeLocked(dstKey, dstID, model.ChangeAdd)
	return delEntry, addEntry, nil
}

// --- Address objects ---

func (s *MemoryStore) GetAddressObject(_ context.Context, addressBookKey, id string) (*model.AddressObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.contacts[addressBookKey][id]
	if !ok {
		return nil, fmt.Errorf("%w: address object %q/%q", ErrNotFound, addressBookKey, id)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) FindAddressObjectByUID(_ context.Context, addressBookKey, uid string) (*model.AddressObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.contacts[addressBookKey] {
		if objectUID(o.Data) == uid {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: uid %q", ErrNotFound, uid)
}

func (s *MemoryStore) ListAddressObjects(_ context.Context, addressBookKey string) ([]*model.AddressObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AddressObject, 0, len(s.contacts[addressBookKey]))
	for _, o := range s.contacts[addressBookKey] {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutAddressObject(_ context.Context, obj *model.AddressObject) (model.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contacts[obj.AddressBookKey] == nil {
		s.contacts[obj.AddressBookKey] = map[string]*model.AddressObject{}
	}
	cp := *obj
	s.contacts[obj.AddressBookKey][obj.ID] = &cp
	return s.appendChangeLocked(obj.AddressBookKey, obj.ID, model.ChangeAdd), nil
}

func (s *MemoryStore) DeleteAddressObject(_ context.Context, addressBookKey, id string) (model.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[addressBookKey][id]; !ok {
		return model.ChangeLogEntry{}, fmt.Errorf("%w: address object %q/%q", ErrNotFound, addressBookKey, id)
	}
	delete(s.contacts[addressBookKey], id)
	return s.appendChangeLocked(addressBookKey, id, model.ChangeDelete), nil
}

// --- Sync tokens / change log ---

// appendChangeLocked bumps collectionKey's token and appends a row; caller
// holds s.mu. This is the single place a sync token is ever incremented,
// satisfying P2 (monotonicity) and the atomicity spec.md §5 requires
// between the bump and the change-log append.
func (s *MemoryStore) appendChangeLocked(collectionKey, objectID string, op model.ChangeOp) model.ChangeLogEntry {
	s.tokens[collectionKey]++
	entry := model.ChangeLogEntry{
		CollectionKey: collectionKey,
		ObjectID:      objectID,
		Operation:     op,
		SyncToken:     s.tokens[collectionKey],
	}
	s.changes[collectionKey] = append(s.changes[collectionKey], entry)
	return entry
}

func (s *MemoryStore) ChangesSince(_ context.Context, collectionKey string, since int64) ([]model.ChangeLogEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.changes[collectionKey]
	max := since
	latest := map[string]model.ChangeLogEntry{}
	order := []string{}
	for _, e := range log {
		if e.SyncToken <= since {
			continue
		}
		if _, seen := latest[e.ObjectID]; !seen {
			order = append(order, e.ObjectID)
		}
		latest[e.ObjectID] = e
		if e.SyncToken > max {
			max = e.SyncToken
		}
	}
	out := make([]model.ChangeLogEntry, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, max, nil
}

func (s *MemoryStore) CurrentSyncToken(_ context.Context, collectionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[collectionKey], nil
}

// --- Push subscriptions ---

func (s *MemoryStore) PutSubscription(_ context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSubscriptionsByTopic(_ context.Context, topic string) ([]*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := Now()
	out := []*model.Subscription{}
	for id, sub := range s.subscriptions {
		if sub.Expired(now) {
			delete(s.subscriptions, id) // lazy eviction, spec.md §4.8
			continue
		}
		if topicOf(sub) == topic {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) RemoveSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
	return nil
}

func (s *MemoryStore) RemoveSubscriptionsForResource(_ context.Context, resourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subscriptions {
		if sub.ResourceURL == resourceURL {
			delete(s.subscriptions, id)
		}
	}
	return nil
}

func topicOf(sub *model.Subscription) string { return sub.ResourceURL }

func collectionKey(owner, id string) string { return owner + "/" + id }

// objectUID extracts the UID line from stored iCalendar/vCard bytes without
// a full parse; internal/resource and internal/carddav re-derive the typed
// UID through pkg/ical/pkg/vcard for anything beyond uniqueness checks.
func objectUID(data []byte) string {
	return uidFromRaw(data)
}
