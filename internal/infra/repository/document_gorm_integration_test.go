package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BruksfildServices01/barber-booking/internal/models"
	"github.com/BruksfildServices01/barber-booking/internal/store"
	"github.com/BruksfildServices01/barber-booking/internal/store/feed"
)

// Runs against a real database when DATABASE_TEST_URL is set.
func testRepo(t *testing.T) (*DocumentGormRepository, string) {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Document{}))

	location := "test/" + uuid.NewString()
	t.Cleanup(func() {
		db.Where("location = ?", location).Delete(&models.Document{})
	})
	return NewDocumentGormRepository(db, feed.NewLocal(), nil), location
}

func TestDocumentGorm_PutGetDelete(t *testing.T) {
	repo, loc := testRepo(t)
	ctx := context.Background()

	first, err := repo.Put(ctx, loc, "k1", []byte(`{"status":"Confirmed","n":1}`))
	require.NoError(t, err)
	assert.False(t, first.Pending())

	time.Sleep(10 * time.Millisecond)
	second, err := repo.Put(ctx, loc, "k1", []byte(`{"status":"Confirmed","n":2}`))
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at kept on overwrite")
	assert.JSONEq(t, `{"status":"Confirmed","n":2}`, string(second.Body))

	_, err = repo.Add(ctx, loc, []byte(`{"status":"Other"}`))
	require.NoError(t, err)

	all, err := repo.GetAll(ctx, loc, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	confirmed, err := repo.GetAll(ctx, loc, store.Filter{"status": "Confirmed"})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "k1", confirmed[0].Key)

	require.NoError(t, repo.Delete(ctx, loc, "k1"))
	require.NoError(t, repo.Delete(ctx, loc, "k1"))
	_, err = repo.Get(ctx, loc, "k1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocumentGorm_Subscribe(t *testing.T) {
	repo, loc := testRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := repo.Subscribe(ctx, loc, nil)
	require.NoError(t, err)
	defer sub.Close()

	assert.Empty(t, <-sub.Snapshots())

	_, err = repo.Put(ctx, loc, "k", []byte(`{}`))
	require.NoError(t, err)

	select {
	case docs := <-sub.Snapshots():
		require.Len(t, docs, 1)
		assert.Equal(t, "k", docs[0].Key)
	case <-ctx.Done():
		t.Fatal("no snapshot after write")
	}
}

func TestDocumentGorm_SubscribeWithoutFeed(t *testing.T) {
	_, err := NewDocumentGormRepository(nil, nil, nil).Subscribe(context.Background(), "loc", nil)
	assert.ErrorIs(t, err, store.ErrPermanent)
}
