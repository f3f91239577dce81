package storage

import (
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Adapter. It is the default backend for tests and
// dev mode.
type Memory struct {
	mu     sync.RWMutex
	values map[string]memoryEntry
	hashes map[string]map[string]string
	now    func() time.Time
}

var _ Adapter = (*Memory)(nil)
var _ Purger = (*Memory)(nil)

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memoryEntry),
		hashes: make(map[string]map[string]string),
		now:    time.Now,
	}
}

// SetClock overrides the adapter's notion of now. Test hook.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Save(key, value string) error {
	return m.SaveWithTTL(key, value, 0)
}

func (m *Memory) SaveWithTTL(key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = entry
	return nil
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.values[key]
	if !ok || entry.expired(m.now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.values[key]
	if !ok {
		return false, nil
	}
	delete(m.values, key)
	return !entry.expired(m.now()), nil
}

func (m *Memory) Exists(key string) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

func (m *Memory) Keys(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var keys []string
	for key, entry := range m.values {
		if entry.expired(now) {
			continue
		}
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	for key := range m.hashes {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) SaveHash(key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string, len(fields))
		m.hashes[key] = hash
	}
	for field, value := range fields {
		hash[field] = value
	}
	return nil
}

func (m *Memory) GetHash(key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (m *Memory) DeleteHash(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hashes[key]; !ok {
		return false, nil
	}
	delete(m.hashes, key)
	return true, nil
}

// PurgeExpired drops expired entries eagerly. The read paths already treat
// expired entries as missing, so this only reclaims memory.
func (m *Memory) PurgeExpired(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for key, entry := range m.values {
		if entry.expired(now) {
			delete(m.values, key)
			purged++
		}
	}
	return purged, nil
}
