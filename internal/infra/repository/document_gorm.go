package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BruksfildServices01/barber-booking/internal/models"
	"github.com/BruksfildServices01/barber-booking/internal/store"
)

// DocumentGormRepository is the postgres engine of store.Store. Writes are
// announced on feed so subscribers re-query.
type DocumentGormRepository struct {
	db   *gorm.DB
	feed store.ChangeFeed
	log  *slog.Logger
}

func NewDocumentGormRepository(db *gorm.DB, feed store.ChangeFeed, logger *slog.Logger) *DocumentGormRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentGormRepository{db: db, feed: feed, log: logger}
}

// --------------------------------------------------
// Read
// --------------------------------------------------

func (r *DocumentGormRepository) Get(
	ctx context.Context,
	location string,
	key string,
) (store.Document, error) {

	var row models.Document
	if err := r.db.WithContext(ctx).
		Where("location = ? AND key = ?", location, key).
		First(&row).Error; err != nil {
		return store.Document{}, classify("get", err)
	}
	return toDocument(row), nil
}

func (r *DocumentGormRepository) GetAll(
	ctx context.Context,
	location string,
	filter store.Filter,
) ([]store.Document, error) {

	q := r.db.WithContext(ctx).Where("location = ?", location)
	for field, value := range filter {
		q = q.Where("body->>? = ?", field, value)
	}

	var rows []models.Document
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, classify("get_all", err)
	}

	out := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDocument(row))
	}
	return out, nil
}

// --------------------------------------------------
// Write
// --------------------------------------------------

func (r *DocumentGormRepository) Put(
	ctx context.Context,
	location string,
	key string,
	body []byte,
) (store.Document, error) {

	row := models.Document{
		Location: location,
		Key:      key,
		Body:     string(body),
	}

	// created_at is left alone on conflict
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "location"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).
		Create(&row).Error; err != nil {
		return store.Document{}, classify("put", err)
	}

	stored, err := r.Get(ctx, location, key)
	if err != nil {
		return store.Document{}, err
	}

	r.announce(ctx, location)
	return stored, nil
}

func (r *DocumentGormRepository) Add(
	ctx context.Context,
	location string,
	body []byte,
) (store.Document, error) {
	return r.Put(ctx, location, uuid.NewString(), body)
}

func (r *DocumentGormRepository) Delete(
	ctx context.Context,
	location string,
	key string,
) error {

	res := r.db.WithContext(ctx).
		Where("location = ? AND key = ?", location, key).
		Delete(&models.Document{})
	if res.Error != nil {
		return classify("delete", res.Error)
	}

	if res.RowsAffected > 0 {
		r.announce(ctx, location)
	}
	return nil
}

// announce is best-effort: the row is committed either way. A failed
// publish leaves subscribers stale until the next write on location.
func (r *DocumentGormRepository) announce(ctx context.Context, location string) {
	if r.feed == nil {
		return
	}
	if err := r.feed.Publish(ctx, location); err != nil {
		r.log.WarnContext(ctx, "change announcement failed", "location", location, "error", err)
	}
}

// --------------------------------------------------
// Subscribe
// --------------------------------------------------

func (r *DocumentGormRepository) Subscribe(
	ctx context.Context,
	location string,
	filter store.Filter,
) (store.Subscription, error) {
	if r.feed == nil {
		return nil, errors.Join(store.ErrPermanent, errors.New("repository: no change feed configured"))
	}
	return store.Watch(ctx, r.feed, location, func(ctx context.Context) ([]store.Document, error) {
		return r.GetAll(ctx, location, filter)
	})
}

// --------------------------------------------------
// Helpers
// --------------------------------------------------

func toDocument(row models.Document) store.Document {
	return store.Document{
		Location:  row.Location,
		Key:       row.Key,
		Body:      []byte(row.Body),
		CreatedAt: row.CreatedAt,
	}
}

// classify sorts driver errors into not-found, permanent and transient.
func classify(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientSQLState(pgErr.Code) {
			return store.Transient(op, err)
		}
		return errors.Join(store.ErrPermanent, err)
	}

	// dropped connections, timeouts and pool exhaustion
	return store.Transient(op, err)
}

func transientSQLState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"): // connection exception
		return true
	case strings.HasPrefix(code, "53"): // insufficient resources
		return true
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return true
	case code == "57P01", code == "57P02", code == "57P03": // shutdown / cannot connect now
		return true
	}
	return false
}

// Compile-time check
var _ store.Store = (*DocumentGormRepository)(nil)
