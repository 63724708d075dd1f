package walletstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Records vanish on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, now: time.Now}
}

func (m *MemoryStore) Find(_ context.Context, userID string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	return rec, ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.UserID]; ok {
		return duplicateErr(rec.UserID)
	}
	m.records[rec.UserID] = stamp(rec, m.now().UTC())
	return nil
}

func (m *MemoryStore) Update(_ context.Context, userID string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return notFoundErr(userID)
	}
	if patch.PrivateKey != nil {
		rec.PrivateKey = *patch.PrivateKey
	}
	if patch.Address != nil {
		rec.Address = *patch.Address
	}
	rec.UpdatedAt = m.now().UTC()
	m.records[userID] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
