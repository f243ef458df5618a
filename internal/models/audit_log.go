package models

import "time"

type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Action    string `gorm:"size:50;not null;index" json:"action"`
	Entity    string `gorm:"size:50" json:"entity"`
	EntityID  string `gorm:"size:64;index" json:"entity_id"`
	SubjectID string `gorm:"size:128" json:"subject_id"`
	Metadata  string `gorm:"type:text" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}
