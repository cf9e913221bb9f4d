package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCache is the CacheBackend used when no Redis URL is configured.
// Entries expire lazily on read; a background sweep handles the rest
// and keeps the entry count bounded.
type MemoryCache struct {
	data          sync.Map // map[string]*memEntry
	maxSize       int
	sweepInterval time.Duration
	stopCh        chan struct{}
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache starts the sweep goroutine; call Close to stop it.
func NewMemoryCache(maxSize int, sweepInterval time.Duration) *MemoryCache {
	m := &MemoryCache{
		maxSize:       maxSize,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok := m.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*memEntry)
	if time.Now().After(entry.expiresAt) {
		m.data.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data.Store(key, &memEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

func (m *MemoryCache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	now := time.Now()
	for _, key := range keys {
		val, ok := m.data.Load(key)
		if !ok {
			continue
		}
		entry := val.(*memEntry)
		if now.After(entry.expiresAt) {
			m.data.Delete(key)
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

func (m *MemoryCache) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	for key, value := range items {
		m.data.Store(key, &memEntry{value: value, expiresAt: expiresAt})
	}
	return nil
}

func (m *MemoryCache) Close() error {
	close(m.stopCh)
	return nil
}

func (m *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops expired entries, then evicts the soonest-to-expire
// survivors until the cache fits maxSize again.
func (m *MemoryCache) sweep() {
	now := time.Now()
	type liveEntry struct {
		key       string
		expiresAt time.Time
	}
	var live []liveEntry

	m.data.Range(func(key, value interface{}) bool {
		k := key.(string)
		entry := value.(*memEntry)
		if now.After(entry.expiresAt) {
			m.data.Delete(k)
		} else {
			live = append(live, liveEntry{k, entry.expiresAt})
		}
		return true
	})

	if len(live) > m.maxSize {
		sort.Slice(live, func(i, j int) bool {
			return live[i].expiresAt.Before(live[j].expiresAt)
		})
		for _, e := range live[:len(live)-m.maxSize] {
			m.data.Delete(e.key)
		}
	}
}
