// Package liveview keeps observers synchronized with a store location:
// every change yields a freshly decoded, fully ordered snapshot.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/metrics"
	"github.com/BruksfildServices01/barber-booking/internal/store"
)

const (
	ScopeDirectory        = "directory"
	ScopeCustomerBookings = "customer_bookings"
	ScopeBarberSchedule   = "barber_schedule"
)

var ErrMissingID = errors.New("liveview: missing owner id")

// ======================================================
// Observer
// ======================================================

// Observer receives snapshots until the subscription ends. OnError is
// called at most once, after which nothing else is delivered.
type Observer[T any] interface {
	OnSnapshot(items []T)
	OnError(err error)
}

// Funcs adapts plain functions to Observer. Nil fields are ignored.
type Funcs[T any] struct {
	Snapshot func(items []T)
	Error    func(err error)
}

func (f Funcs[T]) OnSnapshot(items []T) {
	if f.Snapshot != nil {
		f.Snapshot(items)
	}
}

func (f Funcs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// SubscriptionError ends a live view.
type SubscriptionError struct {
	Scope string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("liveview: %s subscription failed: %v", e.Scope, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// ======================================================
// Subscription
// ======================================================

type Subscription struct {
	sub     store.Subscription
	once    sync.Once
	stopped atomic.Bool
	done    chan struct{}
}

// Unsubscribe stops the view. It is safe to call more than once and from
// inside a callback; no delivery starts after it returns.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.sub.Close()
	})
}

// Done is closed once the view has stopped for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) active() bool {
	return !s.stopped.Load()
}

// ======================================================
// Service
// ======================================================

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Now stamps documents whose server timestamp is still pending.
	Now func() time.Time
}

type Service struct {
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(st store.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   st,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Directory streams every barber, best rated first.
func (s *Service) Directory(ctx context.Context, obs Observer[domain.Barber]) (*Subscription, error) {
	return open(ctx, s, directoryScope(), obs)
}

// CustomerBookings streams one customer's bookings, newest first.
func (s *Service) CustomerBookings(
	ctx context.Context,
	subjectID string,
	obs Observer[domain.CustomerAppointment],
) (*Subscription, error) {
	if subjectID == "" {
		return nil, ErrMissingID
	}
	return open(ctx, s, customerScope(subjectID), obs)
}

// BarberSchedule streams one barber's bookings, newest first.
func (s *Service) BarberSchedule(
	ctx context.Context,
	barberID string,
	obs Observer[domain.BarberAppointment],
) (*Subscription, error) {
	if barberID == "" {
		return nil, ErrMissingID
	}
	return open(ctx, s, scheduleScope(barberID), obs)
}

// ListBarbers is a one-shot read of the directory in view order.
func (s *Service) ListBarbers(ctx context.Context) ([]domain.Barber, error) {
	sc := directoryScope()
	docs, err := s.store.GetAll(ctx, sc.location, nil)
	if err != nil {
		return nil, err
	}
	return newProjector(s, sc).project(docs), nil
}

// ======================================================
// Scopes
// ======================================================

type item[T any] struct {
	value T
	key   string
	at    time.Time
}

type scope[T any] struct {
	name     string
	location string
	decode   func(doc store.Document) (T, error)
	less     func(a, b item[T]) bool
}

func newestFirst[T any](a, b item[T]) bool {
	if !a.at.Equal(b.at) {
		return a.at.After(b.at)
	}
	return a.key > b.key
}

func directoryScope() scope[domain.Barber] {
	return scope[domain.Barber]{
		name:     ScopeDirectory,
		location: domain.BarbersLocation,
		decode: func(doc store.Document) (domain.Barber, error) {
			var b domain.Barber
			if err := doc.Decode(&b); err != nil {
				return b, err
			}
			if b.ID == "" {
				b.ID = doc.Key
			}
			if !b.Valid() {
				return b, fmt.Errorf("liveview: barber %s/%s is incomplete", doc.Location, doc.Key)
			}
			return b, nil
		},
		less: func(a, b item[domain.Barber]) bool {
			if a.value.Rating != b.value.Rating {
				return a.value.Rating > b.value.Rating
			}
			if a.value.Name != b.value.Name {
				return a.value.Name < b.value.Name
			}
			return a.key < b.key
		},
	}
}

func customerScope(subjectID string) scope[domain.CustomerAppointment] {
	return scope[domain.CustomerAppointment]{
		name:     ScopeCustomerBookings,
		location: domain.CustomerLocation(subjectID),
		decode: func(doc store.Document) (domain.CustomerAppointment, error) {
			var a domain.CustomerAppointment
			if err := doc.Decode(&a); err != nil {
				return a, err
			}
			if a.ID == "" {
				a.ID = doc.Key
			}
			a.CreatedAt = serverTime(doc)
			return a, nil
		},
		less: newestFirst[domain.CustomerAppointment],
	}
}

func scheduleScope(barberID string) scope[domain.BarberAppointment] {
	return scope[domain.BarberAppointment]{
		name:     ScopeBarberSchedule,
		location: domain.ScheduleLocation(barberID),
		decode: func(doc store.Document) (domain.BarberAppointment, error) {
			var a domain.BarberAppointment
			if err := doc.Decode(&a); err != nil {
				return a, err
			}
			if a.ID == "" {
				a.ID = doc.Key
			}
			a.CreatedAt = serverTime(doc)
			return a, nil
		},
		less: newestFirst[domain.BarberAppointment],
	}
}

func serverTime(doc store.Document) *time.Time {
	if doc.Pending() {
		return nil
	}
	t := doc.CreatedAt
	return &t
}

// ======================================================
// Projection
// ======================================================

// projector turns raw snapshots into ordered values. It remembers when a
// pending document was first seen so its position stays put until the
// server timestamp lands.
type projector[T any] struct {
	svc       *Service
	sc        scope[T]
	firstSeen map[string]time.Time
}

func newProjector[T any](svc *Service, sc scope[T]) *projector[T] {
	return &projector[T]{svc: svc, sc: sc, firstSeen: map[string]time.Time{}}
}

func (p *projector[T]) project(docs []store.Document) []T {
	items := make([]item[T], 0, len(docs))
	present := make(map[string]struct{}, len(docs))

	for _, doc := range docs {
		present[doc.Key] = struct{}{}

		v, err := p.sc.decode(doc)
		if err != nil {
			p.svc.log.Warn("skipping malformed document",
				"scope", p.sc.name, "location", doc.Location, "key", doc.Key, "error", err)
			continue
		}

		at := doc.CreatedAt
		if doc.Pending() {
			seen, ok := p.firstSeen[doc.Key]
			if !ok {
				seen = p.svc.now()
				p.firstSeen[doc.Key] = seen
			}
			at = seen
		}
		items = append(items, item[T]{value: v, key: doc.Key, at: at})
	}

	for key := range p.firstSeen {
		if _, ok := present[key]; !ok {
			delete(p.firstSeen, key)
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return p.sc.less(items[i], items[j]) })

	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}

// ======================================================
// Loop
// ======================================================

func open[T any](ctx context.Context, s *Service, sc scope[T], obs Observer[T]) (*Subscription, error) {
	raw, err := s.store.Subscribe(ctx, sc.location, nil)
	if err != nil {
		return nil, &SubscriptionError{Scope: sc.name, Err: err}
	}

	sub := &Subscription{
		sub:  raw,
		done: make(chan struct{}),
	}
	s.metrics.SubscriptionOpened(sc.name)

	go run(s, sc, sub, obs)
	return sub, nil
}

func run[T any](s *Service, sc scope[T], sub *Subscription, obs Observer[T]) {
	defer close(sub.done)
	defer s.metrics.SubscriptionClosed(sc.name)
	defer sub.sub.Close()

	proj := newProjector(s, sc)

	for docs := range sub.sub.Snapshots() {
		items := proj.project(docs)
		if !sub.active() {
			return
		}
		obs.OnSnapshot(items)
	}

	err := sub.sub.Err()
	if err == nil || !sub.active() {
		return
	}
	sub.stopped.Store(true)

	s.log.Error("live view failed", "scope", sc.name, "location", sc.location, "error", err)
	obs.OnError(&SubscriptionError{Scope: sc.name, Err: err})
}
