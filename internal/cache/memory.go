package cache

import (
	"container/list"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryTier is the bounded in-process fallback. TTL bookkeeping is delegated
// to go-cache; the LRU bound evicts by insertion timestamp when capacity is
// reached. Expired entries are pruned from the LRU index lazily, on the get
// that observes the expiry and on len. Safe for concurrent use.
type memoryTier struct {
	mu      sync.Mutex
	store   *gocache.Cache
	order   *list.List               // front = oldest insertion
	entries map[string]*list.Element // key -> order node
	maxSize int
}

func newMemoryTier(maxSize int) *memoryTier {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &memoryTier{
		store:   gocache.New(gocache.NoExpiration, 10*time.Minute),
		order:   list.New(),
		entries: make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// get returns the payload and whether it was present and unexpired
func (m *memoryTier) get(key string) ([]byte, bool) {
	v, found := m.store.Get(key)
	if !found {
		// Expired or never stored; drop any stale LRU node so expired
		// entries stop consuming capacity
		m.prune(key)
		return nil, false
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return data, true
}

// prune removes the LRU node for a key no longer present in the store
func (m *memoryTier) prune(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, exists := m.entries[key]; exists {
		m.order.Remove(el)
		delete(m.entries, key)
	}
}

// set stores the payload, evicting the oldest entries past capacity
func (m *memoryTier) set(key string, data []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, exists := m.entries[key]; exists {
		m.order.Remove(el)
		delete(m.entries, key)
	}

	m.store.Set(key, data, ttl)
	m.entries[key] = m.order.PushBack(key)

	for m.order.Len() > m.maxSize {
		oldest := m.order.Front()
		if oldest == nil {
			break
		}
		evictKey := oldest.Value.(string)
		m.order.Remove(oldest)
		delete(m.entries, evictKey)
		m.store.Delete(evictKey)
	}
}

// delete removes a single key
func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, exists := m.entries[key]; exists {
		m.order.Remove(el)
		delete(m.entries, key)
	}
	m.store.Delete(key)
}

// deleteMatching removes every key accepted by the predicate and reports the
// number removed
func (m *memoryTier) deleteMatching(match func(key string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key := range m.store.Items() {
		if match(key) {
			if el, exists := m.entries[key]; exists {
				m.order.Remove(el)
				delete(m.entries, key)
			}
			m.store.Delete(key)
			deleted++
		}
	}
	return deleted
}

// len reports the current entry count, sweeping out entries go-cache has
// expired so the count never includes dead keys
func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for el := m.order.Front(); el != nil; {
		next := el.Next()
		key := el.Value.(string)
		if _, found := m.store.Get(key); !found {
			m.order.Remove(el)
			delete(m.entries, key)
		}
		el = next
	}
	return m.order.Len()
}
