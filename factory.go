package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// NewBackend returns a concrete backend for the requested driver.
// Construction never flushes; New does that when the Cache is built.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	backend, _ := cache.NewBackend(ctx, cache.Config{
//		Driver: cache.DriverMemory,
//	})
//	fmt.Println(backend.Driver()) // memory
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverRedis:
		client := cfg.RedisClient
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
		return newRedisBackend(client, cfg.Prefix), nil
	case DriverMemory:
		return newMemoryBackend(), nil
	case DriverSQL:
		return newSQLBackend(ctx, cfg)
	case DriverDynamo:
		return newDynamoBackend(ctx, cfg)
	case DriverNATS:
		kv := cfg.NATSKeyValue
		if kv == nil && cfg.NATSURL != "" {
			var err error
			if kv, err = connectNATSKeyValue(cfg.NATSURL, cfg.NATSBucket); err != nil {
				return nil, err
			}
		}
		return newNATSBackend(kv, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// NewBackendWith builds a backend using a driver and a set of functional options.
// @group Constructors
//
// Example: redis backend (options)
//
//	ctx := context.Background()
//	backend, _ := cache.NewBackendWith(ctx, cache.DriverRedis,
//		cache.WithRedisAddr("127.0.0.1", 6379),
//		cache.WithRedisDB(2),
//	)
//	fmt.Println(backend.Driver()) // redis
func NewBackendWith(ctx context.Context, driver Driver, opts ...Option) (Backend, error) {
	cfg := Config{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewBackend(ctx, cfg)
}

// NewMemoryBackend is a convenience for an in-process backend.
// @group Constructors
func NewMemoryBackend() Backend {
	return newMemoryBackend()
}

// NewRedisBackend is a convenience for a redis backend over an existing client.
// @group Constructors
//
// Example: redis helper
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	backend := cache.NewRedisBackend(rdb)
//	fmt.Println(backend.Driver()) // redis
func NewRedisBackend(client RedisClient, opts ...Option) Backend {
	cfg := Config{RedisClient: client}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return newRedisBackend(cfg.RedisClient, cfg.Prefix)
}

// NewSQLBackend opens a database/sql backend and ensures its tables exist.
// @group Constructors
//
// Example: sqlite file
//
//	backend, err := cache.NewSQLBackend(ctx, "sqlite", "file:/tmp/journal.db")
func NewSQLBackend(ctx context.Context, driverName, dsn string, opts ...Option) (Backend, error) {
	return NewBackendWith(ctx, DriverSQL, append([]Option{WithSQL(driverName, dsn)}, opts...)...)
}

// NewDynamoBackend is a convenience for a DynamoDB backend; the table is created when missing.
// @group Constructors
func NewDynamoBackend(ctx context.Context, opts ...Option) (Backend, error) {
	return NewBackendWith(ctx, DriverDynamo, opts...)
}

// NewNATSBackend is a convenience for a NATS key-value backend over an existing bucket.
// @group Constructors
func NewNATSBackend(kv NATSKeyValue, opts ...Option) Backend {
	cfg := Config{NATSKeyValue: kv}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return newNATSBackend(cfg.NATSKeyValue, cfg.Prefix)
}
