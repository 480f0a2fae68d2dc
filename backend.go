package cache

import (
	"context"
	"errors"
)

var (
	// ErrWrongKind reports a value read as a list or a list read as a value.
	ErrWrongKind = errors.New("cache: operation against a key holding the wrong kind of value")
	// ErrUnsupportedValue reports a Store argument with no native encoding.
	ErrUnsupportedValue = errors.New("cache: unsupported value type")
)

// Backend is the key-value contract every driver implements.
// Keys hold either a value (Get/Set/Increment) or a list (Push/Range).
type Backend interface {
	Driver() Driver
	// Get returns a copy of the value at key. A missing key is ok=false with a nil error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value at key with no expiry.
	Set(ctx context.Context, key string, value []byte) error
	// Increment adds one to the decimal integer at key, starting from zero.
	Increment(ctx context.Context, key string) (int64, error)
	// Push appends each entry to the tail of its list, as a single unit where the driver allows it.
	Push(ctx context.Context, entries ...ListEntry) error
	// Range returns list items start..stop inclusive. Negative indexes count from the tail.
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	// Flush removes every key the backend owns.
	Flush(ctx context.Context) error
}

// ListEntry is one value appended to one list.
type ListEntry struct {
	Key   string
	Value []byte
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// rangeBounds resolves LRANGE-style indexes against a list of n items.
// ok is false when the window is empty.
func rangeBounds(n int, start, stop int64) (lo, hi int, ok bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if size == 0 || start > stop || start >= size {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}

func sliceRange(items [][]byte, start, stop int64) [][]byte {
	lo, hi, ok := rangeBounds(len(items), start, stop)
	if !ok {
		return [][]byte{}
	}
	out := make([][]byte, 0, hi-lo)
	for _, item := range items[lo:hi] {
		out = append(out, cloneBytes(item))
	}
	return out
}
