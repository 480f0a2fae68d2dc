package cache

import (
	"context"
	"path/filepath"
	"testing"
)

// Stub-backed constructors for the external contract tests.

func NewStubRedisBackend() Backend {
	return newRedisBackend(newStubRedisClient(), "contract")
}

func NewStubDynamoBackend(t *testing.T) Backend {
	return newDynamoTestBackend(t, newDynStub(), "contract")
}

func NewStubNATSBackend() Backend {
	return newNATSBackend(newStubNATSKeyValue("contract"), "contract")
}

func NewSQLiteBackend(t *testing.T) Backend {
	t.Helper()
	backend, err := NewSQLBackend(context.Background(), "sqlite", "file:"+filepath.Join(t.TempDir(), "contract.db"))
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	return backend
}
