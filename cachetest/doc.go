// Package cachetest provides a backend-agnostic contract suite for
// cache.Backend implementations.
//
// Driver tests call RunBackendContract with a freshly built backend:
//
//	func TestRedisBackendContract(t *testing.T) {
//		backend := cache.NewRedisBackend(client, cache.WithPrefix("contract"))
//		cachetest.RunBackendContract(t, backend, cachetest.Options{})
//	}
//
// The suite flushes the backend first and again at the end.
package cachetest
