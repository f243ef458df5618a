package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/barber-booking/internal/audit"
	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/retry"
	"github.com/BruksfildServices01/barber-booking/internal/store"
	"github.com/BruksfildServices01/barber-booking/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func testOptions() Options {
	return Options{
		Backoff: retry.Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep},
		Now:     func() time.Time { return fixedNow },
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func validInput() ConfirmInput {
	return ConfirmInput{
		Request: domain.Request{
			BarberID:     "b1",
			BarberName:   "Ana",
			Date:         "2026-03-10",
			Time:         "09:30",
			ServiceName:  "Fade",
			ServicePrice: 2500,
		},
		Subject: domain.Subject{ID: "u1", DisplayName: "Bruno"},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Log(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// fakeStore delegates to an inner store unless a func field overrides the
// call. Counters are atomic: both halves of a booking write concurrently.
type fakeStore struct {
	store.Store
	calls    atomic.Int64
	puts     atomic.Int64
	deleteFn func(ctx context.Context, location, key string) error
}

func (f *fakeStore) Get(ctx context.Context, location, key string) (store.Document, error) {
	f.calls.Add(1)
	return f.Store.Get(ctx, location, key)
}

func (f *fakeStore) Put(ctx context.Context, location, key string, body []byte) (store.Document, error) {
	f.calls.Add(1)
	f.puts.Add(1)
	return f.Store.Put(ctx, location, key, body)
}

func (f *fakeStore) Delete(ctx context.Context, location, key string) error {
	f.calls.Add(1)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, location, key)
	}
	return f.Store.Delete(ctx, location, key)
}

func (f *fakeStore) GetAll(ctx context.Context, location string, filter store.Filter) ([]store.Document, error) {
	f.calls.Add(1)
	return f.Store.GetAll(ctx, location, filter)
}

func TestConfirm_WritesBothCopies(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.WithClock(func() time.Time { return fixedNow }))
	sink := &recordingSink{}
	dispatcher := audit.NewDispatcher(sink, nil)

	uc := NewConfirm(st, domain.NewMemoryClaimer(), dispatcher, testOptions())

	pair, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)
	require.NotNil(t, pair)

	assert.Equal(t, int64(2511), pair.Customer.TotalPrice)
	assert.Equal(t, int64(11), pair.Customer.BookingFee)
	assert.Equal(t, int64(2500), pair.Customer.BarberPrice)
	assert.Equal(t, int64(2491), pair.Barber.PriceEarned)
	assert.Equal(t, domain.StatusConfirmed, pair.Customer.Status)
	assert.Equal(t, pair.Customer.ID, pair.Barber.ID)

	cdoc, err := st.Get(ctx, domain.CustomerLocation("u1"), pair.Customer.ID)
	require.NoError(t, err)
	var customer domain.CustomerAppointment
	require.NoError(t, cdoc.Decode(&customer))
	assert.Equal(t, "Ana", customer.BarberName)
	assert.Equal(t, int64(2511), customer.TotalPrice)

	bdoc, err := st.Get(ctx, domain.ScheduleLocation("b1"), pair.Barber.ID)
	require.NoError(t, err)
	var barber domain.BarberAppointment
	require.NoError(t, bdoc.Decode(&barber))
	assert.Equal(t, "Bruno", barber.CustomerDisplayName)
	assert.Equal(t, int64(2491), barber.PriceEarned)

	dispatcher.Close()
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.ActionBookingConfirmed, sink.events[0].Action)
	assert.Equal(t, pair.Customer.ID, sink.events[0].EntityID)
}

func waitForDocs(t *testing.T, sub store.Subscription, n int) []store.Document {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs, ok := <-sub.Snapshots():
			require.True(t, ok, "subscription ended: %v", sub.Err())
			if len(docs) == n {
				return docs
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d documents", n)
		}
	}
}

func TestConfirm_VisibleThroughBothSubscriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := memory.New()

	customerSub, err := st.Subscribe(ctx, domain.CustomerLocation("u1"), nil)
	require.NoError(t, err)
	defer customerSub.Close()
	barberSub, err := st.Subscribe(ctx, domain.ScheduleLocation("b1"), nil)
	require.NoError(t, err)
	defer barberSub.Close()

	uc := NewConfirm(st, domain.NewMemoryClaimer(), nil, testOptions())
	pair, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)

	cdocs := waitForDocs(t, customerSub, 1)
	bdocs := waitForDocs(t, barberSub, 1)
	assert.Equal(t, pair.Customer.ID, cdocs[0].Key)
	assert.Equal(t, pair.Barber.ID, bdocs[0].Key)
}

func TestConfirm_TransientFailureIsRetried(t *testing.T) {
	st := memory.New()
	st.FailWrites(domain.CustomerLocation("u1"), 2, store.Transient("put", errors.New("timeout")))

	uc := NewConfirm(st, domain.NewMemoryClaimer(), nil, testOptions())
	_, err := uc.Execute(context.Background(), validInput())

	require.NoError(t, err)
	assert.Len(t, st.Locations(), 2)
}

func TestConfirm_PartialWriteIsCompensated(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	claims := domain.NewMemoryClaimer()
	st.FailWrites(domain.ScheduleLocation("b1"), 3, store.Transient("put", errors.New("unavailable")))

	uc := NewConfirm(st, claims, nil, testOptions())
	pair, err := uc.Execute(ctx, validInput())

	require.Error(t, err)
	assert.Nil(t, pair)
	assert.True(t, domain.IsReason(err, domain.ReasonPartialWrite))

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, domain.HalfCustomer, pw.Succeeded)
	assert.Equal(t, domain.HalfBarber, pw.Failed)
	assert.True(t, pw.Compensated)

	docs, err := st.GetAll(ctx, domain.CustomerLocation("u1"), nil)
	require.NoError(t, err)
	assert.Empty(t, docs, "written half was deleted")

	ok, err := claims.Claim(ctx, domain.KeyFor(validInput().Request), "someone-else")
	require.NoError(t, err)
	assert.True(t, ok, "slot released after failure")
}

func TestConfirm_PartialWriteCompensationFails(t *testing.T) {
	inner := memory.New()
	inner.FailWrites(domain.CustomerLocation("u1"), 3, store.Transient("put", errors.New("unavailable")))
	fs := &fakeStore{
		Store: inner,
		deleteFn: func(context.Context, string, string) error {
			return errors.Join(store.ErrPermanent, errors.New("forbidden"))
		},
	}
	claims := domain.NewMemoryClaimer()

	uc := NewConfirm(fs, claims, nil, testOptions())
	_, err := uc.Execute(context.Background(), validInput())

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, domain.HalfBarber, pw.Succeeded)
	assert.False(t, pw.Compensated)
	assert.ErrorIs(t, pw.CompensateErr, store.ErrPermanent)

	ok, _ := claims.Claim(context.Background(), domain.KeyFor(validInput().Request), "someone-else")
	assert.False(t, ok, "claim kept while an orphan copy exists")
}

func TestConfirm_BothWritesFail(t *testing.T) {
	st := memory.New()
	st.FailWrites(domain.CustomerLocation("u1"), 1, store.ErrPermanent)
	st.FailWrites(domain.ScheduleLocation("b1"), 1, store.ErrPermanent)

	uc := NewConfirm(st, domain.NewMemoryClaimer(), nil, testOptions())
	_, err := uc.Execute(context.Background(), validInput())

	assert.True(t, domain.IsReason(err, domain.ReasonPermanentStore))
	assert.ErrorIs(t, err, store.ErrPermanent)
	assert.Empty(t, st.Locations())
}

func TestConfirm_SlotTaken(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	claims := domain.NewMemoryClaimer()
	_, err := claims.Claim(ctx, domain.KeyFor(validInput().Request), "earlier-booking")
	require.NoError(t, err)

	uc := NewConfirm(st, claims, nil, testOptions())
	_, err = uc.Execute(ctx, validInput())

	assert.True(t, domain.IsReason(err, domain.ReasonSlotTaken))
	assert.ErrorIs(t, err, domain.ErrSlotTaken)
	assert.Empty(t, st.Locations())
}

func TestConfirm_SameBookingTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	uc := NewConfirm(st, domain.NewMemoryClaimer(), nil, testOptions())

	first, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)
	second, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, first.Customer.ID, second.Customer.ID)
	docs, err := st.GetAll(ctx, domain.CustomerLocation("u1"), nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestConfirm_RebookingConfirmedSlotWritesNothing(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 8, 5, 0, 0, time.UTC)
	fs := &fakeStore{Store: memory.New(memory.WithClock(func() time.Time { return at }))}
	claims := domain.NewMemoryClaimer()
	uc := NewConfirm(fs, claims, nil, testOptions())

	first, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)
	putsAfterFirst := fs.puts.Load()

	second, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, putsAfterFirst, fs.puts.Load())
	assert.Equal(t, first.Customer.ID, second.Customer.ID)
	assert.Equal(t, first.Customer.TotalPrice, second.Customer.TotalPrice)
	assert.Equal(t, first.Barber.CustomerDisplayName, second.Barber.CustomerDisplayName)
	require.NotNil(t, second.Customer.CreatedAt)
	assert.True(t, at.Equal(*second.Customer.CreatedAt))
}

func TestConfirm_RebookingWithFailingHalfKeepsBooking(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	claims := domain.NewMemoryClaimer()
	uc := NewConfirm(st, claims, nil, testOptions())

	first, err := uc.Execute(ctx, validInput())
	require.NoError(t, err)

	st.FailWrites(domain.ScheduleLocation("b1"), 3, store.Transient("put", errors.New("unavailable")))
	_, err = uc.Execute(ctx, validInput())
	require.NoError(t, err)

	_, err = st.Get(ctx, domain.CustomerLocation("u1"), first.Customer.ID)
	assert.NoError(t, err, "customer copy kept")
	_, err = st.Get(ctx, domain.ScheduleLocation("b1"), first.Barber.ID)
	assert.NoError(t, err, "barber copy kept")

	ok, err := claims.Claim(ctx, domain.KeyFor(validInput().Request), "someone-else")
	require.NoError(t, err)
	assert.False(t, ok, "slot stays taken")
}

func TestConfirm_UnpairedCopyFromEarlierAttemptIsNotDeleted(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	claims := domain.NewMemoryClaimer()
	in := validInput()

	// an earlier attempt left only the customer copy and kept its claim
	earlier := domain.Build(in.Request, in.Subject, domain.DefaultFees().Quote(in.Request.ServicePrice))
	body, err := json.Marshal(earlier.Customer)
	require.NoError(t, err)
	_, err = st.Put(ctx, domain.CustomerLocation("u1"), earlier.Customer.ID, body)
	require.NoError(t, err)
	_, err = claims.Claim(ctx, domain.KeyFor(in.Request), earlier.Customer.ID)
	require.NoError(t, err)

	st.FailWrites(domain.ScheduleLocation("b1"), 3, store.Transient("put", errors.New("unavailable")))
	uc := NewConfirm(st, claims, nil, testOptions())
	_, err = uc.Execute(ctx, in)

	var pw *domain.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, domain.HalfCustomer, pw.Succeeded)
	assert.True(t, pw.Retained)
	assert.False(t, pw.Compensated)

	_, err = st.Get(ctx, domain.CustomerLocation("u1"), earlier.Customer.ID)
	assert.NoError(t, err, "earlier copy kept")

	ok, err := claims.Claim(ctx, domain.KeyFor(in.Request), "someone-else")
	require.NoError(t, err)
	assert.False(t, ok)

	// the next attempt completes the pair
	pair, err := uc.Execute(ctx, in)
	require.NoError(t, err)
	_, err = st.Get(ctx, domain.ScheduleLocation("b1"), pair.Barber.ID)
	assert.NoError(t, err)
}

func TestConfirm_InvalidSelectionDoesNoIO(t *testing.T) {
	cases := map[string]func(in *ConfirmInput){
		"no slot":          func(in *ConfirmInput) { in.Request.Time = "" },
		"no date":          func(in *ConfirmInput) { in.Request.Date = "" },
		"date too far":     func(in *ConfirmInput) { in.Request.Date = "2026-03-20" },
		"off grid":         func(in *ConfirmInput) { in.Request.Time = "09:10" },
		"after close":      func(in *ConfirmInput) { in.Request.Time = "18:00" },
		"no barber":        func(in *ConfirmInput) { in.Request.BarberID = "" },
		"no service":       func(in *ConfirmInput) { in.Request.ServiceName = "" },
		"negative price":   func(in *ConfirmInput) { in.Request.ServicePrice = -1 },
		"no subject":       func(in *ConfirmInput) { in.Subject.ID = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			fs := &fakeStore{Store: memory.New()}
			uc := NewConfirm(fs, domain.NewMemoryClaimer(), nil, testOptions())

			in := validInput()
			mutate(&in)
			_, err := uc.Execute(context.Background(), in)

			var ise *domain.InvalidSelectionError
			require.ErrorAs(t, err, &ise)
			assert.Zero(t, fs.calls.Load())
		})
	}
}

func TestConfirm_ZeroPriceAllowed(t *testing.T) {
	in := validInput()
	in.Request.ServicePrice = 0

	uc := NewConfirm(memory.New(), domain.NewMemoryClaimer(), nil, testOptions())
	pair, err := uc.Execute(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, int64(11), pair.Customer.TotalPrice)
	assert.Equal(t, int64(-9), pair.Barber.PriceEarned)
}
