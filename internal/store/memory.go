package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
)

// MemoryStore is an in-process DocumentStore. It backs tests and the
// immediate post-create deadline check, where the caller already holds a
// freshly built record and re-reading storage would be wasted work.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.Record
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]domain.Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (domain.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, collection, id string, rec domain.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]domain.Record)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return false, nil
	}
	coll[id] = cloneRecord(rec)
	return true, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("updating document %s/%s: not found", collection, id)
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters domain.Record) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for id, rec := range s.collections[collection] {
		if matches(rec, filters) {
			docs = append(docs, Document{ID: id, Data: cloneRecord(rec)})
		}
	}
	return docs, nil
}

func (s *MemoryStore) StreamAll(ctx context.Context, collection string, fn func(id string, rec domain.Record) error) error {
	s.mu.RLock()
	snapshot := make([]Document, 0, len(s.collections[collection]))
	for id, rec := range s.collections[collection] {
		snapshot = append(snapshot, Document{ID: id, Data: cloneRecord(rec)})
	}
	s.mu.RUnlock()

	for _, doc := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc.ID, doc.Data); err != nil {
			return err
		}
	}
	return nil
}

// Count reports the number of records in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func matches(rec, filters domain.Record) bool {
	for k, want := range filters {
		got, ok := rec[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// cloneRecord deep-copies via JSON so callers never alias stored state.
func cloneRecord(rec domain.Record) domain.Record {
	data, err := json.Marshal(rec)
	if err != nil {
		out := make(domain.Record, len(rec))
		for k, v := range rec {
			out[k] = v
		}
		return out
	}
	var out domain.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return rec
	}
	return out
}
