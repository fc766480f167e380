package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errorwatch/internal/cache"
)

// Meta carries the columns every record has regardless of its data type.
type Meta struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mapper converts between a domain type D and its wire attribute type W.
// W must marshal to a JSON object; fields tagged omitempty are left out of patches.
type Mapper[D any, W any] struct {
	ToWire   func(D) W
	FromWire func(Meta, W) D
}

// Options configures a Repository. CacheEnabled must be false for any data type
// that can be edited out-of-band, since the cache is never invalidated from outside.
type Options struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	Clock        func() time.Time
}

// Repository is a typed view over one data type of a Backend, with optional
// read-through caching.
type Repository[D any, W any] struct {
	backend  Backend
	cache    cache.Cache
	dataType string
	mapper   Mapper[D, W]
	opts     Options
}

// NewRepository creates a Repository. c may be nil when opts.CacheEnabled is false.
func NewRepository[D any, W any](backend Backend, c cache.Cache, dataType string, mapper Mapper[D, W], opts Options) *Repository[D, W] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if c == nil {
		opts.CacheEnabled = false
	}
	return &Repository[D, W]{
		backend:  backend,
		cache:    c,
		dataType: dataType,
		mapper:   mapper,
		opts:     opts,
	}
}

// DataType returns the type tag this repository reads and writes.
func (r *Repository[D, W]) DataType() string { return r.dataType }

// Create persists d under id, generating an id when empty. CreatedAt and UpdatedAt are both set to now.
func (r *Repository[D, W]) Create(ctx context.Context, id string, d D) (D, error) {
	var zero D
	if id == "" {
		id = uuid.NewString()
	}

	attrs, err := json.Marshal(r.mapper.ToWire(d))
	if err != nil {
		return zero, fmt.Errorf("marshal %s attributes: %w", r.dataType, err)
	}

	now := r.opts.Clock().UnixMilli()
	rec := Record{ID: id, DataType: r.dataType, Attributes: attrs, Create: now, Update: now}
	if err := r.backend.Put(ctx, rec); err != nil {
		return zero, err
	}
	r.remember(ctx, rec)

	return r.decode(rec)
}

// Get returns the record with id or ErrNotFound.
func (r *Repository[D, W]) Get(ctx context.Context, id string) (D, error) {
	if rec, ok := r.recall(ctx, id); ok {
		return r.decode(rec)
	}

	rec, err := r.backend.Get(ctx, r.dataType, id)
	if err != nil {
		var zero D
		return zero, err
	}
	r.remember(ctx, rec)

	return r.decode(rec)
}

// List returns every record of this type in backend order (newest first).
func (r *Repository[D, W]) List(ctx context.Context) ([]D, error) {
	recs, err := r.backend.List(ctx, r.dataType)
	if err != nil {
		return nil, err
	}

	out := make([]D, 0, len(recs))
	for _, rec := range recs {
		d, err := r.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Update merges the non-empty fields of patch into the stored record and bumps
// UpdatedAt. ID and CreatedAt are preserved. Returns ErrNotFound for unknown ids.
func (r *Repository[D, W]) Update(ctx context.Context, id string, patch W) (D, error) {
	var zero D

	raw, err := json.Marshal(patch)
	if err != nil {
		return zero, fmt.Errorf("marshal %s patch: %w", r.dataType, err)
	}

	rec, err := r.backend.Merge(ctx, r.dataType, id, raw, r.opts.Clock().UnixMilli())
	if err != nil {
		return zero, err
	}
	r.remember(ctx, rec)

	return r.decode(rec)
}

func (r *Repository[D, W]) decode(rec Record) (D, error) {
	var w W
	if len(rec.Attributes) > 0 {
		if err := json.Unmarshal(rec.Attributes, &w); err != nil {
			var zero D
			return zero, fmt.Errorf("unmarshal %s %s: %w", r.dataType, rec.ID, err)
		}
	}
	meta := Meta{
		ID:        rec.ID,
		CreatedAt: time.UnixMilli(rec.Create).UTC(),
		UpdatedAt: time.UnixMilli(rec.Update).UTC(),
	}
	return r.mapper.FromWire(meta, w), nil
}

// cachedRecord is the cache encoding of a Record.
type cachedRecord struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
	Create     int64           `json:"create"`
	Update     int64           `json:"update"`
}

// remember and recall are no-ops when caching is disabled. Cache failures are
// logged and otherwise ignored; the backend stays the source of truth.
func (r *Repository[D, W]) remember(ctx context.Context, rec Record) {
	if !r.opts.CacheEnabled {
		return
	}
	b, err := json.Marshal(cachedRecord{ID: rec.ID, Attributes: rec.Attributes, Create: rec.Create, Update: rec.Update})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cache.RecordKey(r.dataType, rec.ID), b, r.opts.CacheTTL); err != nil {
		slog.Warn("record cache write failed", "data_type", r.dataType, "id", rec.ID, "error", err)
	}
}

func (r *Repository[D, W]) recall(ctx context.Context, id string) (Record, bool) {
	if !r.opts.CacheEnabled {
		return Record{}, false
	}
	b, found, err := r.cache.Get(ctx, cache.RecordKey(r.dataType, id))
	if err != nil {
		slog.Warn("record cache read failed", "data_type", r.dataType, "id", id, "error", err)
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}
	var cr cachedRecord
	if err := json.Unmarshal(b, &cr); err != nil {
		return Record{}, false
	}
	return Record{ID: cr.ID, DataType: r.dataType, Attributes: cr.Attributes, Create: cr.Create, Update: cr.Update}, true
}
