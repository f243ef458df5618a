package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/barber-booking/internal/store"
)

func TestPut_KeepsCreatedAtOnOverwrite(t *testing.T) {
	ctx := context.Background()
	times := []time.Time{
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	i := 0
	s := New(WithClock(func() time.Time { t := times[i]; i++; return t }))

	first, err := s.Put(ctx, "loc", "k", []byte(`{"v":1}`))
	require.NoError(t, err)
	second, err := s.Put(ctx, "loc", "k", []byte(`{"v":2}`))
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	got, err := s.Get(ctx, "loc", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Body))
}

func TestGet_NotFound(t *testing.T) {
	_, err := New().Get(context.Background(), "loc", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetAll_InsertionOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Put(ctx, "loc", "b", []byte(`{"status":"Confirmed","n":2}`))
	_, _ = s.Put(ctx, "loc", "a", []byte(`{"status":"Other","n":1}`))
	_, _ = s.Put(ctx, "loc", "c", []byte(`{"status":"Confirmed","n":3}`))

	all, err := s.GetAll(ctx, "loc", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].Key, all[1].Key, all[2].Key})

	confirmed, err := s.GetAll(ctx, "loc", store.Filter{"status": "Confirmed"})
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	byNumber, err := s.GetAll(ctx, "loc", store.Filter{"n": "3"})
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "c", byNumber[0].Key)
}

func TestAdd_GeneratesKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, err := s.Add(ctx, "loc", []byte(`{}`))
	require.NoError(t, err)
	b, err := s.Add(ctx, "loc", []byte(`{}`))
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.Len(t, a.Key, 36)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Put(ctx, "loc", "k", []byte(`{}`))

	require.NoError(t, s.Delete(ctx, "loc", "k"))
	require.NoError(t, s.Delete(ctx, "loc", "k"), "missing key is not an error")

	_, err := s.Get(ctx, "loc", "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, s.Locations())
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	s.FailWrites("loc", 2, boom)
	_, err := s.Put(ctx, "loc", "k", nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Delete(ctx, "loc", "k"), boom)
	_, err = s.Put(ctx, "loc", "k", []byte(`{}`))
	assert.NoError(t, err)

	_, err = s.Put(ctx, "other", "k", []byte(`{}`))
	assert.NoError(t, err, "faults are per location")

	s.FailReads("loc", 1, boom)
	_, err = s.GetAll(ctx, "loc", nil)
	assert.ErrorIs(t, err, boom)
	_, err = s.Get(ctx, "loc", "k")
	assert.NoError(t, err)
}

func TestPendingTimestamps(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := New(WithPendingTimestamps(), WithClock(func() time.Time { return at }))

	doc, err := s.Put(ctx, "loc", "k", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, doc.Pending())

	require.NoError(t, s.FinalizeTimestamps(ctx))
	got, err := s.Get(ctx, "loc", "k")
	require.NoError(t, err)
	assert.Equal(t, at, got.CreatedAt)
}

func TestSubscribe_DeliversChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	sub, err := s.Subscribe(ctx, "loc", nil)
	require.NoError(t, err)

	first := <-sub.Snapshots()
	assert.Empty(t, first)

	_, err = s.Put(ctx, "loc", "k", []byte(`{}`))
	require.NoError(t, err)

	select {
	case docs := <-sub.Snapshots():
		require.Len(t, docs, 1)
		assert.Equal(t, "k", docs[0].Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after write")
	}

	sub.Close()
	for range sub.Snapshots() {
	}
	assert.NoError(t, sub.Err())
}

func TestSubscribe_ReadFailureEnds(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("denied")

	sub, err := s.Subscribe(ctx, "loc", nil)
	require.NoError(t, err)
	<-sub.Snapshots()

	s.FailReads("loc", 1, boom)
	_, err = s.Put(ctx, "loc", "k", []byte(`{}`))
	require.NoError(t, err)

	for range sub.Snapshots() {
	}
	assert.ErrorIs(t, sub.Err(), boom)
}
