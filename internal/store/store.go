package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Record is the generic row shape shared by every data type: one logical table
// discriminated by DataType. Attributes holds the type-specific fields as a JSON object.
// Create and Update are epoch milliseconds. Seq is assigned by the backend on Put and
// orders records created within the same millisecond.
type Record struct {
	ID         string
	DataType   string
	Attributes json.RawMessage
	Create     int64
	Update     int64
	Seq        int64
}

// Backend is the storage collaborator. All record persistence goes through here.
type Backend interface {
	Ping(ctx context.Context) error
	// Put inserts a new record. Returns ErrDuplicateKey if (DataType, ID) exists.
	Put(ctx context.Context, rec Record) error
	// Get returns ErrNotFound if the record does not exist.
	Get(ctx context.Context, dataType, id string) (Record, error)
	// List returns every record of dataType, newest first. Ties on Create are
	// broken by insertion order, latest first.
	List(ctx context.Context, dataType string) ([]Record, error)
	// Merge shallow-merges patch (a JSON object) into the stored attributes and
	// sets Update to the later of update and the stored Update + 1, so every merge
	// advances it. Returns the merged record or ErrNotFound.
	Merge(ctx context.Context, dataType, id string, patch json.RawMessage, update int64) (Record, error)
}
