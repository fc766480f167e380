package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend is an in-process Backend used by tests and STORAGE_BACKEND=memory.
// Nothing survives a restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
	seq     int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]map[string]Record)}
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryBackend) Put(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.records[rec.DataType]
	if !ok {
		byID = make(map[string]Record)
		m.records[rec.DataType] = byID
	}
	if _, exists := byID[rec.ID]; exists {
		return ErrDuplicateKey
	}
	m.seq++
	rec.Seq = m.seq
	rec.Attributes = cloneRaw(attributesOrEmpty(rec.Attributes))
	byID[rec.ID] = rec
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, dataType, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[dataType][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Attributes = cloneRaw(rec.Attributes)
	return rec, nil
}

func (m *MemoryBackend) List(ctx context.Context, dataType string) ([]Record, error) {
	m.mu.RLock()
	recs := make([]Record, 0, len(m.records[dataType]))
	for _, rec := range m.records[dataType] {
		rec.Attributes = cloneRaw(rec.Attributes)
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Create != recs[j].Create {
			return recs[i].Create > recs[j].Create
		}
		return recs[i].Seq > recs[j].Seq
	})
	return recs, nil
}

// Merge mirrors the JSONB || operator: top-level keys in patch replace stored keys.
func (m *MemoryBackend) Merge(ctx context.Context, dataType, id string, patch json.RawMessage, update int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[dataType][id]
	if !ok {
		return Record{}, ErrNotFound
	}

	var stored, changes map[string]json.RawMessage
	if err := json.Unmarshal(rec.Attributes, &stored); err != nil {
		return Record{}, fmt.Errorf("merge %s record: stored attributes: %w", dataType, err)
	}
	if err := json.Unmarshal(attributesOrEmpty(patch), &changes); err != nil {
		return Record{}, fmt.Errorf("merge %s record: patch: %w", dataType, err)
	}
	if stored == nil {
		stored = make(map[string]json.RawMessage, len(changes))
	}
	for k, v := range changes {
		stored[k] = v
	}

	merged, err := json.Marshal(stored)
	if err != nil {
		return Record{}, fmt.Errorf("merge %s record: %w", dataType, err)
	}
	rec.Attributes = merged
	rec.Update = max(update, rec.Update+1)
	m.records[dataType][id] = rec

	rec.Attributes = cloneRaw(merged)
	return rec, nil
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

var _ Backend = (*MemoryBackend)(nil)
