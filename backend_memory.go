package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// memoryBackend keeps values as []byte and lists as [][]byte in one keyspace.
type memoryBackend struct {
	cache *gocache.Cache
	mu    sync.Mutex
}

func newMemoryBackend() Backend {
	return &memoryBackend{
		cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval),
	}
}

func (s *memoryBackend) Driver() Driver {
	return DriverMemory
}

func (s *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("get %q: %w", key, ErrWrongKind)
	}
	return cloneBytes(body), true, nil
}

func (s *memoryBackend) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, cloneBytes(value), gocache.NoExpiration)
	return nil
}

func (s *memoryBackend) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(0)
	if item, ok := s.cache.Get(key); ok {
		body, isValue := item.([]byte)
		if !isValue {
			return 0, fmt.Errorf("increment %q: %w", key, ErrWrongKind)
		}
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache key %q does not contain a numeric value", key)
		}
		current = n
	}
	next := current + 1
	s.cache.Set(key, []byte(strconv.FormatInt(next, 10)), gocache.NoExpiration)
	return next, nil
}

func (s *memoryBackend) Push(_ context.Context, entries ...ListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every target first so a wrong-kind key leaves all lists untouched.
	lists := make(map[string][][]byte, len(entries))
	for _, entry := range entries {
		if _, seen := lists[entry.Key]; seen {
			continue
		}
		items, err := s.readList(entry.Key)
		if err != nil {
			return err
		}
		lists[entry.Key] = items
	}
	for _, entry := range entries {
		lists[entry.Key] = append(lists[entry.Key], cloneBytes(entry.Value))
	}
	for key, items := range lists {
		s.cache.Set(key, items, gocache.NoExpiration)
	}
	return nil
}

func (s *memoryBackend) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.readList(key)
	if err != nil {
		return nil, err
	}
	return sliceRange(items, start, stop), nil
}

func (s *memoryBackend) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Flush()
	return nil
}

func (s *memoryBackend) readList(key string) ([][]byte, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	items, ok := item.([][]byte)
	if !ok {
		return nil, fmt.Errorf("list %q: %w", key, ErrWrongKind)
	}
	return items, nil
}
