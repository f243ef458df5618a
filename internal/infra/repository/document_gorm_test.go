package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/barber-booking/internal/store"
)

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("get", gorm.ErrRecordNotFound), store.ErrNotFound)
	assert.ErrorIs(t, classify("put", context.Canceled), context.Canceled)

	serialization := &pgconn.PgError{Code: "40001"}
	err := classify("put", serialization)
	var te *store.TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, "put", te.Op)
	assert.True(t, store.Retryable(err))

	unique := &pgconn.PgError{Code: "23505"}
	err = classify("put", unique)
	assert.ErrorIs(t, err, store.ErrPermanent)
	assert.False(t, store.Retryable(err))

	err = classify("delete", errors.New("connection reset by peer"))
	assert.True(t, store.Retryable(err))
}

func TestTransientSQLState(t *testing.T) {
	for _, code := range []string{"08006", "08003", "53300", "40001", "40P01", "57P01"} {
		assert.True(t, transientSQLState(code), code)
	}
	for _, code := range []string{"23505", "22P02", "42P01", "42703"} {
		assert.False(t, transientSQLState(code), code)
	}
}

type failingFeed struct{ err error }

func (f failingFeed) Publish(context.Context, string) error { return f.err }

func (f failingFeed) Listen(context.Context, string) (<-chan struct{}, func(), error) {
	return nil, func() {}, f.err
}

func TestAnnounce_LogsPublishFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	repo := NewDocumentGormRepository(nil, failingFeed{err: errors.New("redis down")}, logger)

	repo.announce(context.Background(), "barbers/b1/schedule")

	out := buf.String()
	assert.Contains(t, out, "change announcement failed")
	assert.Contains(t, out, "barbers/b1/schedule")
	assert.Contains(t, out, "redis down")
	assert.Contains(t, out, `"level":"WARN"`)
}
