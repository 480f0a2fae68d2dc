package cachefake

import (
	"context"
	"sync"
	"testing"

	cache "github.com/goforj/cachejournal"
)

// Op identifies a backend command for assertions.
type Op string

const (
	OpGet   Op = "get"
	OpSet   Op = "set"
	OpIncr  Op = "incr"
	OpPush  Op = "push"
	OpRange Op = "range"
	OpFlush Op = "flush"
)

// Fake is an in-memory cache.Backend that records every command it serves.
// It wraps the memory backend so no external services are needed.
type Fake struct {
	inner  cache.Backend
	counts map[Op]map[string]int
	mu     sync.Mutex
}

var _ cache.Backend = (*Fake)(nil)

// New creates a Fake over a fresh memory backend.
func New() *Fake {
	return &Fake{
		inner:  cache.NewMemoryBackend(),
		counts: make(map[Op]map[string]int),
	}
}

// Cache builds a facade over the fake. Construction flushes, which is recorded.
func (f *Fake) Cache(ctx context.Context) (*cache.Cache, error) {
	return cache.New(ctx, f)
}

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) Driver() cache.Driver { return f.inner.Driver() }

func (f *Fake) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.record(OpGet, key)
	return f.inner.Get(ctx, key)
}

func (f *Fake) Set(ctx context.Context, key string, value []byte) error {
	f.record(OpSet, key)
	return f.inner.Set(ctx, key, value)
}

func (f *Fake) Increment(ctx context.Context, key string) (int64, error) {
	f.record(OpIncr, key)
	return f.inner.Increment(ctx, key)
}

func (f *Fake) Push(ctx context.Context, entries ...cache.ListEntry) error {
	for _, entry := range entries {
		f.record(OpPush, entry.Key)
	}
	return f.inner.Push(ctx, entries...)
}

func (f *Fake) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	f.record(OpRange, key)
	return f.inner.Range(ctx, key, start, stop)
}

func (f *Fake) Flush(ctx context.Context) error {
	f.record(OpFlush, "")
	return f.inner.Flush(ctx)
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}
