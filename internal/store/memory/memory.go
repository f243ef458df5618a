// Package memory is an in-process document store. It backs local runs and
// tests, and can inject write/read failures and hold back server
// timestamps to mimic latency-compensated writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/barber-booking/internal/store"
	"github.com/BruksfildServices01/barber-booking/internal/store/feed"
)

type Option func(*Store)

// WithClock sets the source of server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFeed replaces the default in-process feed.
func WithFeed(f store.ChangeFeed) Option {
	return func(s *Store) { s.feed = f }
}

// WithPendingTimestamps leaves CreatedAt zero on new documents until
// FinalizeTimestamps is called.
func WithPendingTimestamps() Option {
	return func(s *Store) { s.deferTimestamps = true }
}

type fault struct {
	remaining int
	err       error
}

type Store struct {
	mu              sync.RWMutex
	docs            map[string]map[string]store.Document
	order           map[string][]string
	writeFaults     map[string]*fault
	readFaults      map[string]*fault
	deferTimestamps bool

	now  func() time.Time
	feed store.ChangeFeed
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:        map[string]map[string]store.Document{},
		order:       map[string][]string{},
		writeFaults: map[string]*fault{},
		readFaults:  map[string]*fault{},
		now:         time.Now,
		feed:        feed.NewLocal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --------------------------------------------------
// Fault injection
// --------------------------------------------------

// FailWrites makes the next n Put/Add/Delete calls on location fail with err.
func (s *Store) FailWrites(location string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFaults[location] = &fault{remaining: n, err: err}
}

// FailReads makes the next n Get/GetAll calls on location fail with err.
// Subscriptions reload through GetAll, so this also breaks live views.
func (s *Store) FailReads(location string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readFaults[location] = &fault{remaining: n, err: err}
}

func take(faults map[string]*fault, location string) error {
	f, ok := faults[location]
	if !ok || f.remaining <= 0 {
		return nil
	}
	f.remaining--
	if f.remaining == 0 {
		delete(faults, location)
	}
	return f.err
}

// FinalizeTimestamps assigns a server timestamp to every pending document
// and notifies subscribers of the affected locations.
func (s *Store) FinalizeTimestamps(ctx context.Context) error {
	s.mu.Lock()
	touched := map[string]struct{}{}
	for loc, byKey := range s.docs {
		for _, key := range s.order[loc] {
			d := byKey[key]
			if d.Pending() {
				d.CreatedAt = s.now()
				byKey[key] = d
				touched[loc] = struct{}{}
			}
		}
	}
	s.mu.Unlock()

	for loc := range touched {
		if err := s.feed.Publish(ctx, loc); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------
// store.Store
// --------------------------------------------------

func (s *Store) Get(_ context.Context, location, key string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(s.readFaults, location); err != nil {
		return store.Document{}, err
	}
	d, ok := s.docs[location][key]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(d), nil
}

func (s *Store) GetAll(_ context.Context, location string, filter store.Filter) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := take(s.readFaults, location); err != nil {
		return nil, err
	}
	out := make([]store.Document, 0, len(s.order[location]))
	for _, key := range s.order[location] {
		d := s.docs[location][key]
		if filter.Matches(d) {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, location, key string, body []byte) (store.Document, error) {
	s.mu.Lock()
	if err := take(s.writeFaults, location); err != nil {
		s.mu.Unlock()
		return store.Document{}, err
	}

	byKey := s.docs[location]
	if byKey == nil {
		byKey = map[string]store.Document{}
		s.docs[location] = byKey
	}

	d, exists := byKey[key]
	if !exists {
		d = store.Document{Location: location, Key: key}
		if !s.deferTimestamps {
			d.CreatedAt = s.now()
		}
		s.order[location] = append(s.order[location], key)
	}
	d.Body = append([]byte(nil), body...)
	byKey[key] = d
	s.mu.Unlock()

	if err := s.feed.Publish(ctx, location); err != nil {
		return store.Document{}, err
	}
	return clone(d), nil
}

func (s *Store) Add(ctx context.Context, location string, body []byte) (store.Document, error) {
	return s.Put(ctx, location, uuid.NewString(), body)
}

func (s *Store) Delete(ctx context.Context, location, key string) error {
	s.mu.Lock()
	if err := take(s.writeFaults, location); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.docs[location][key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.docs[location], key)
	keys := s.order[location]
	for i, k := range keys {
		if k == key {
			s.order[location] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return s.feed.Publish(ctx, location)
}

func (s *Store) Subscribe(ctx context.Context, location string, filter store.Filter) (store.Subscription, error) {
	return store.Watch(ctx, s.feed, location, func(ctx context.Context) ([]store.Document, error) {
		return s.GetAll(ctx, location, filter)
	})
}

// Locations lists every location holding at least one document, sorted.
func (s *Store) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for loc, byKey := range s.docs {
		if len(byKey) > 0 {
			out = append(out, loc)
		}
	}
	sort.Strings(out)
	return out
}

func clone(d store.Document) store.Document {
	d.Body = append([]byte(nil), d.Body...)
	return d
}

var _ store.Store = (*Store)(nil)
