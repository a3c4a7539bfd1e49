// Package storage contains the in-memory signature ledger used when no
// database is configured and in tests.
package storage

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/songauth/internal/model"
)

var (
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("signature record not found")
	// ErrDuplicate is returned when a record id is saved twice.
	ErrDuplicate = errors.New("signature record already exists")
)

// MemoryStore keeps signature records in a map guarded by an RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.SignatureRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.SignatureRecord),
	}
}

// Save inserts a record. Records are append-only; saving an existing id fails.
func (m *MemoryStore) Save(_ context.Context, record *model.SignatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrDuplicate
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	stored := *record
	stored.Message = bytes.Clone(record.Message)
	m.records[record.ID] = &stored
	return nil
}

// Get returns a copy of the record with id.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.SignatureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.Message = bytes.Clone(rec.Message)
	return &out, nil
}

// FindBySignature returns every record carrying signature, oldest first.
func (m *MemoryStore) FindBySignature(_ context.Context, signature string) ([]*model.SignatureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SignatureRecord
	for _, rec := range m.records {
		if rec.Signature == signature {
			c := *rec
			c.Message = bytes.Clone(rec.Message)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
