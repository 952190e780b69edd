package evalcache

import (
	"context"
	"sync"
)

type memoryEntry struct {
	value []byte
	tags  []string
}

// Memory is an in-process Cache with a tag index for O(entries-per-tag)
// invalidation. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	byTag   map[string]map[string]struct{}
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memoryEntry{},
		byTag:   map[string]map[string]struct{}{},
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[key]; ok {
		m.dropFromTags(key, old.tags)
	}
	m.entries[key] = memoryEntry{value: value, tags: tags}
	for _, tag := range tags {
		keys := m.byTag[tag]
		if keys == nil {
			keys = map[string]struct{}{}
			m.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.byTag[tag] {
		if entry, ok := m.entries[key]; ok {
			m.dropFromTags(key, entry.tags)
			delete(m.entries, key)
		}
	}
	delete(m.byTag, tag)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) dropFromTags(key string, tags []string) {
	for _, tag := range tags {
		if keys, ok := m.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.byTag, tag)
			}
		}
	}
}
