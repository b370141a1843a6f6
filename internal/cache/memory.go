// README: Process-local cache store.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	item     Item
	deleteAt time.Time
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mi, ok := m.items[key]
	if !ok {
		return Item{}, false, nil
	}
	return cloneItem(mi.item), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, it Item, retain time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{item: cloneItem(it), deleteAt: it.FetchedAt.Add(retain)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, mi := range m.items {
		if !now.Before(mi.deleteAt) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func cloneItem(it Item) Item {
	it.Data = append([]byte(nil), it.Data...)
	return it
}
