package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store backed by a mutex-guarded map. It honors
// the same conditional-write semantics as the SQL backends, which makes it
// suitable for tests and single-process embedding, but it provides no
// cross-process guarantee.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// PutIfAbsent inserts rec unless a live record exists for rec.ID.
func (m *Memory) PutIfAbsent(_ context.Context, rec Record) (PutOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing, ok := m.records[rec.ID]
	if ok && !existing.Expired(now) {
		return PutOutcome{Existing: existing}, nil
	}

	m.records[rec.ID] = rec
	return PutOutcome{Created: true}, nil
}

// Get returns the live record for id.
func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Expired(m.now()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Complete transitions the record owned by owner to COMPLETED.
func (m *Memory) Complete(_ context.Context, id, owner string, payload []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Expired(m.now()) {
		return ErrNotFound
	}
	if rec.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	if rec.Owner != owner {
		return ErrNotOwner
	}

	rec.Status = StatusCompleted
	rec.ResponsePayload = payload
	rec.ExpiresAt = expiresAt
	m.records[id] = rec
	return nil
}

// Delete removes the record for id when owned by owner.
func (m *Memory) Delete(_ context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	if rec.Owner != owner {
		return ErrNotOwner
	}
	delete(m.records, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
