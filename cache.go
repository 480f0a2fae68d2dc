package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoreOperation is the journal name of Cache.Store.
const StoreOperation = "Cache.Store"

// Cache stores typed values under generated keys and journals every Store call.
type Cache struct {
	backend  Backend
	observer Observer
	store    Operation
}

// New flushes backend and returns a cache facade bound to it, so every
// instance starts with empty values, counters and journals.
// @group Cache
//
// Example: cache over memory
//
//	ctx := context.Background()
//	c, _ := cache.New(ctx, cache.NewMemoryBackend())
//	fmt.Println(c.Driver()) // memory
func New(ctx context.Context, backend Backend) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}
	if err := backend.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush %s backend: %w", backend.Driver(), err)
	}
	c := &Cache{backend: backend}
	c.store = Chain(StoreOperation, c.storeValue, CountCalls(backend), CallHistory(backend))
	return c, nil
}

// Open builds the backend described by cfg and wraps it with New.
// @group Cache
//
// Example: redis on localhost, db 0
//
//	c, err := cache.Open(ctx, cache.Config{})
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, backend)
}

// WithObserver attaches an observer to receive operation events.
func (c *Cache) WithObserver(o Observer) *Cache {
	c.observer = o
	return c
}

// Backend returns the underlying backend.
func (c *Cache) Backend() Backend {
	return c.backend
}

// Driver reports the underlying backend driver.
func (c *Cache) Driver() Driver {
	return c.backend.Driver()
}

// Store writes data under a fresh random key and returns the key.
// data may be a string, []byte, any integer or float type, or an
// encoding.BinaryMarshaler. Each call is counted and journaled under
// StoreOperation. If only the journal write fails, the key is returned with the error.
// @group Cache
//
// Example: store and read back
//
//	key, _ := c.Store(ctx, "foo")
//	value, ok, _ := c.GetString(ctx, key)
//	fmt.Println(ok, value) // true foo
func (c *Cache) Store(ctx context.Context, data any) (string, error) {
	start := time.Now()
	result, err := c.store(ctx, data)
	key, _ := result.(string)
	c.observe(ctx, "store", key, false, err, start)
	return key, err
}

func (c *Cache) storeValue(ctx context.Context, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("store takes exactly one value, got %d", len(args))
	}
	body, err := EncodeValue(args[0])
	if err != nil {
		return nil, err
	}
	key := uuid.NewString()
	if err := c.backend.Set(ctx, key, body); err != nil {
		return nil, err
	}
	return key, nil
}

// Get returns the raw bytes at key. A missing key is ok=false with a nil error.
// @group Cache
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.backend.Get(ctx, key)
	c.observe(ctx, "get", key, ok, err, start)
	return body, ok, err
}

// GetAs reads key and decodes it with decode. decode only runs when the key
// exists, so a miss never surfaces a decode error.
// @group Cache
//
// Example: custom decoder
//
//	upper, ok, err := cache.GetAs(ctx, c, key, func(b []byte) (string, error) {
//		return strings.ToUpper(string(b)), nil
//	})
func GetAs[T any](ctx context.Context, c *Cache, key string, decode Decoder[T]) (T, bool, error) {
	return getDecoded(ctx, c, "get_as", key, decode)
}

// GetString reads key as UTF-8 text.
// @group Cache
func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	return getDecoded(ctx, c, "get_string", key, DecodeString)
}

// GetInt reads key as a base-10 integer.
// @group Cache
func (c *Cache) GetInt(ctx context.Context, key string) (int64, bool, error) {
	return getDecoded(ctx, c, "get_int", key, DecodeInt)
}

// GetFloat reads key as a float.
// @group Cache
func (c *Cache) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	return getDecoded(ctx, c, "get_float", key, DecodeFloat)
}

func getDecoded[T any](ctx context.Context, c *Cache, op, key string, decode Decoder[T]) (T, bool, error) {
	var zero T
	start := time.Now()
	body, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		c.observe(ctx, op, key, ok, err, start)
		return zero, ok, err
	}
	if decode == nil {
		decode = func(b []byte) (T, error) {
			out, isT := any(b).(T)
			if !isT {
				return zero, fmt.Errorf("no decoder for %T", zero)
			}
			return out, nil
		}
	}
	out, err := decode(body)
	if err != nil {
		c.observe(ctx, op, key, false, err, start)
		return zero, false, err
	}
	c.observe(ctx, op, key, true, nil, start)
	return out, true, nil
}

// Calls returns how many times the named operation has been invoked.
func (c *Cache) Calls(ctx context.Context, name string) (int64, error) {
	return Calls(ctx, c.backend, name)
}

// History returns the journaled calls of the named operation in call order.
func (c *Cache) History(ctx context.Context, name string) ([]Call, error) {
	return History(ctx, c.backend, name)
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.backend.Driver())
}
