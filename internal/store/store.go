// Package store defines the document store contract the booking core is
// written against. Engines live in store/memory and infra/repository.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Document is one stored record. A zero CreatedAt means the server
// timestamp has not been assigned yet.
type Document struct {
	Location  string          `json:"location"`
	Key       string          `json:"key"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// Pending reports whether the server timestamp is still missing.
func (d Document) Pending() bool {
	return d.CreatedAt.IsZero()
}

// Decode unmarshals the body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("store: decode %s/%s: %w", d.Location, d.Key, err)
	}
	return nil
}

// Filter is an equality match on top-level body fields. A nil or empty
// filter matches everything.
type Filter map[string]string

// Matches reports whether the document body satisfies every clause.
func (f Filter) Matches(d Document) bool {
	if len(f) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(d.Body, &fields); err != nil {
		return false
	}
	for k, want := range f {
		got, ok := fields[k]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

type Store interface {
	Get(ctx context.Context, location, key string) (Document, error)
	GetAll(ctx context.Context, location string, filter Filter) ([]Document, error)

	// Put upserts under key. Overwriting keeps the original CreatedAt.
	Put(ctx context.Context, location, key string, body []byte) (Document, error)
	// Add stores body under a generated key.
	Add(ctx context.Context, location string, body []byte) (Document, error)
	Delete(ctx context.Context, location, key string) error

	Subscribe(ctx context.Context, location string, filter Filter) (Subscription, error)
}

// Subscription is a live query. Snapshots is closed when the subscription
// ends; Err then reports why (nil after Close).
type Subscription interface {
	Snapshots() <-chan []Document
	Err() error
	Close()
}

// ChangeFeed carries "location changed" notifications between writers and
// subscribers.
type ChangeFeed interface {
	Publish(ctx context.Context, location string) error
	Listen(ctx context.Context, location string) (<-chan struct{}, func(), error)
}
