package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"gorm.io/gorm"

	"github.com/BruksfildServices01/barber-booking/internal/models"
)

// Logger writes events to the audit_logs table.
type Logger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(ctx context.Context, ev Event) error {
	var metaJSON string
	if ev.Metadata != nil {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			metaJSON = string(b)
		}
	}

	row := models.AuditLog{
		Action:    ev.Action,
		Entity:    ev.Entity,
		EntityID:  ev.EntityID,
		SubjectID: ev.SubjectID,
		Metadata:  metaJSON,
	}

	return l.db.WithContext(ctx).Create(&row).Error
}

// SlogSink writes events to a structured logger. It is the sink of
// deployments without a database.
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{log: logger}
}

func (s *SlogSink) Log(ctx context.Context, ev Event) error {
	s.log.InfoContext(ctx, "audit",
		"action", ev.Action,
		"entity", ev.Entity,
		"entity_id", ev.EntityID,
		"subject_id", ev.SubjectID,
		"metadata", ev.Metadata,
	)
	return nil
}

var (
	_ Sink = (*Logger)(nil)
	_ Sink = (*SlogSink)(nil)
)
