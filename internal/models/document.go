package models

import "time"

// Document is the row behind every stored record. Body holds the JSON
// document as written by the booking core.
type Document struct {
	ID uint `gorm:"primaryKey" json:"-"`

	Location string `gorm:"size:255;not null;uniqueIndex:idx_documents_location_key,priority:1" json:"location"`
	Key      string `gorm:"size:255;not null;uniqueIndex:idx_documents_location_key,priority:2" json:"key"`
	Body     string `gorm:"type:jsonb;not null" json:"body"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
