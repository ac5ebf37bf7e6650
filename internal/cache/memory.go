package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/keystone-labs/idemgw/store"
)

type memoryEntry struct {
	key    string
	record store.Record
}

// Memory is a thread-safe in-memory LRU cache of record snapshots.
// Entries expire with the record's own ExpiresAt rather than a
// cache-level TTL, so the cache never outlives the backing row.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
}

// NewMemory creates a new in-memory LRU cache holding at most capacity
// entries.
func NewMemory(capacity int) *Memory {
	return &Memory{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached record for key, or false if missing or expired.
func (m *Memory) Get(key string) (store.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return store.Record{}, false
	}

	entry := elem.Value.(*memoryEntry)
	if entry.record.Expired(time.Now()) {
		m.removeElement(elem)
		return store.Record{}, false
	}

	m.evictList.MoveToFront(elem)
	return entry.record, true
}

// Set stores a completed record snapshot, evicting the LRU entry on
// overflow.
func (m *Memory) Set(rec store.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[rec.ID]; ok {
		m.evictList.MoveToFront(elem)
		elem.Value.(*memoryEntry).record = rec
		return
	}

	if m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	elem := m.evictList.PushFront(&memoryEntry{key: rec.ID, record: rec})
	m.items[rec.ID] = elem
}

// Delete removes an entry from the cache.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
}

// Len returns the number of entries currently in the cache.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Clear removes all entries from the cache.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
}

func (m *Memory) removeOldest() {
	elem := m.evictList.Back()
	if elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
