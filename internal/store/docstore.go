package store

import (
	"context"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
)

// Collection names used by the notification core.
const (
	CollectionApplications  = "applications"
	CollectionNotifications = "notifications"
)

// Document pairs a record with its storage key.
type Document struct {
	ID   string
	Data domain.Record
}

// DocumentStore is the abstract contract over the backing document database.
// PutIfAbsent must be atomic with respect to the existence check: it is the
// sole mechanism guaranteeing at-most-one record per key under concurrent
// writers.
type DocumentStore interface {
	// Get returns the record for id, reporting whether it exists.
	Get(ctx context.Context, collection, id string) (domain.Record, bool, error)

	// PutIfAbsent writes the record only when no record with that id exists.
	// Returns true when the write happened, false when a record was already
	// present.
	PutIfAbsent(ctx context.Context, collection, id string, rec domain.Record) (bool, error)

	// Update merges the given fields into an existing record.
	Update(ctx context.Context, collection, id string, fields domain.Record) error

	// Query returns all records whose top-level fields equal the filters.
	Query(ctx context.Context, collection string, filters domain.Record) ([]Document, error)

	// StreamAll walks every record in the collection, invoking fn per record.
	// A non-nil error from fn stops the walk.
	StreamAll(ctx context.Context, collection string, fn func(id string, rec domain.Record) error) error
}
