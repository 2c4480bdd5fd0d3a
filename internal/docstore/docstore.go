// Package docstore provides access to the remote document store backing the
// dashboard: named collections of schemaless documents with query, mutation,
// and live-subscription support. A live subscription delivers the complete
// current result set every time any document in the collection changes, not a
// diff. Transport failures are surfaced on a dedicated error channel rather
// than dropped.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an update or delete targets an id that does
// not exist in the collection.
var ErrNotFound = errors.New("document not found")

// Document is a single schemaless document. Data values are plain Go types;
// timestamps are time.Time in memory and RFC 3339 strings on the wire.
type Document struct {
	ID   string
	Data map[string]any
}

// Query describes how a collection read is ordered. The zero value returns
// documents in store order.
type Query struct {
	OrderBy string
	Desc    bool
}

// Snapshot is one complete delivery of a collection's current documents.
type Snapshot struct {
	Collection string
	Docs       []Document
	At         time.Time
}

// Subscription is a standing watch on one collection. Snapshots carries the
// full result set after every change; Errs carries transport failures for
// this collection. Both channels are closed when the subscription ends.
type Subscription struct {
	Snapshots <-chan Snapshot
	Errs      <-chan error

	cancel context.CancelFunc
}

// Close tears down the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewSubscription assembles a Subscription from existing channels. Intended
// for Store implementations that wrap another store's subscriptions.
func NewSubscription(snaps <-chan Snapshot, errs <-chan error, cancel context.CancelFunc) *Subscription {
	return &Subscription{Snapshots: snaps, Errs: errs, cancel: cancel}
}

// Store is the document store contract shared by the Postgres and in-memory
// implementations. Ids are assigned by the store on Add and are immutable.
type Store interface {
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Watch(ctx context.Context, collection string, q Query) (*Subscription, error)
}

// Time coerces a document field into a time.Time. It accepts time.Time
// values (in-memory store) and RFC 3339 strings (JSONB round trip). The
// zero time is returned when the field is absent or unparsable.
func Time(data map[string]any, key string) time.Time {
	switch v := data[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// String coerces a document field into a string.
func String(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// Int coerces a document field into an int. JSON numbers arrive as float64
// after a JSONB round trip.
func Int(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool coerces a document field into a bool.
func Bool(data map[string]any, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}
