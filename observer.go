package cache

import (
	"context"
	"time"

	"github.com/apex/log"
)

// Observer receives events for cache operations.
// It is called from Cache helpers after each operation completes.
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

// NewLogObserver logs successful operations at debug and failures at warn.
// A nil logger uses the apex/log default.
func NewLogObserver(logger log.Interface) Observer {
	if logger == nil {
		logger = log.Log
	}
	return ObserverFunc(func(_ context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
		entry := logger.WithFields(log.Fields{
			"op":       op,
			"key":      key,
			"hit":      hit,
			"driver":   string(driver),
			"duration": dur.String(),
		})
		if err != nil {
			entry.WithError(err).Warn("cache op failed")
			return
		}
		entry.Debug("cache op")
	})
}
