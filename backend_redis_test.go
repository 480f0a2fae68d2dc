package cache

import (
	"context"
	"errors"
	"testing"
)

func TestRedisBackendNilClientErrors(t *testing.T) {
	backend := newRedisBackend(nil, "")
	ctx := context.Background()
	if _, _, err := backend.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error when redis client is nil")
	}
	if err := backend.Set(ctx, "k", []byte("v")); err == nil {
		t.Fatalf("expected set error when redis client is nil")
	}
	if _, err := backend.Increment(ctx, "k"); err == nil {
		t.Fatalf("expected increment error when redis client is nil")
	}
	if err := backend.Push(ctx, ListEntry{Key: "l", Value: []byte("v")}); err == nil {
		t.Fatalf("expected push error when redis client is nil")
	}
	if _, err := backend.Range(ctx, "l", 0, -1); err == nil {
		t.Fatalf("expected range error when redis client is nil")
	}
	if err := backend.Flush(ctx); err == nil {
		t.Fatalf("expected flush error when redis client is nil")
	}
}

func TestRedisBackendOperationsWithStubClient(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	backend := newRedisBackend(client, "pfx")

	if err := backend.Set(ctx, "alpha", []byte("one")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.values["pfx:alpha"]; !ok {
		t.Fatalf("expected prefixed key, got %v", client.values)
	}
	body, ok, err := backend.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "one" {
		t.Fatalf("unexpected get result: ok=%v err=%v body=%s", ok, err, string(body))
	}

	if n, err := backend.Increment(ctx, "counter"); err != nil || n != 1 {
		t.Fatalf("increment failed: n=%d err=%v", n, err)
	}
	if n, err := backend.Increment(ctx, "counter"); err != nil || n != 2 {
		t.Fatalf("increment failed: n=%d err=%v", n, err)
	}

	if err := backend.Push(ctx, ListEntry{Key: "list", Value: []byte("a")}); err != nil {
		t.Fatalf("single push failed: %v", err)
	}
	if client.txCalls != 0 {
		t.Fatalf("expected single push without MULTI, got %d transactions", client.txCalls)
	}
	err = backend.Push(ctx,
		ListEntry{Key: "list", Value: []byte("b")},
		ListEntry{Key: "other", Value: []byte("x")},
	)
	if err != nil {
		t.Fatalf("multi push failed: %v", err)
	}
	if client.txCalls != 1 {
		t.Fatalf("expected multi push in one transaction, got %d", client.txCalls)
	}
	items, err := backend.Range(ctx, "list", 0, -1)
	if err != nil || len(items) != 2 || string(items[0]) != "a" || string(items[1]) != "b" {
		t.Fatalf("unexpected range: %q err=%v", items, err)
	}

	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if client.flushDBCalls != 0 {
		t.Fatalf("expected prefixed flush to scan instead of FLUSHDB")
	}
	if len(client.values) != 0 || len(client.lists) != 0 {
		t.Fatalf("expected prefixed keys removed, got %v %v", client.values, client.lists)
	}
}

func TestRedisBackendFlushWithoutPrefixUsesFlushDB(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	backend := newRedisBackend(client, "")
	if err := backend.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.values["k"]; !ok {
		t.Fatalf("expected bare key without prefix")
	}
	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if client.flushDBCalls != 1 {
		t.Fatalf("expected FLUSHDB, got %d calls", client.flushDBCalls)
	}
}

func TestRedisBackendGetMissing(t *testing.T) {
	backend := newRedisBackend(newStubRedisClient(), "pfx")
	body, ok, err := backend.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || body != nil {
		t.Fatalf("expected miss, got ok=%v body=%q", ok, body)
	}
}

func TestRedisBackendErrorPropagation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	client := newStubRedisClient()
	client.getErr = boom
	if _, _, err := newRedisBackend(client, "").Get(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected get error, got %v", err)
	}

	client = newStubRedisClient()
	client.setErr = boom
	if err := newRedisBackend(client, "").Set(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected set error, got %v", err)
	}

	client = newStubRedisClient()
	client.incrErr = boom
	if _, err := newRedisBackend(client, "").Increment(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected incr error, got %v", err)
	}

	client = newStubRedisClient()
	client.execErr = boom
	err := newRedisBackend(client, "").Push(ctx, ListEntry{Key: "a"}, ListEntry{Key: "b"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected exec error, got %v", err)
	}
	if len(client.lists) != 0 {
		t.Fatalf("expected failed transaction to leave lists untouched, got %v", client.lists)
	}

	client = newStubRedisClient()
	client.lrangeErr = boom
	if _, err := newRedisBackend(client, "").Range(ctx, "l", 0, -1); !errors.Is(err, boom) {
		t.Fatalf("expected lrange error, got %v", err)
	}

	client = newStubRedisClient()
	client.flushDBErr = boom
	if err := newRedisBackend(client, "").Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected flushdb error, got %v", err)
	}

	client = newStubRedisClient()
	client.scanErr = boom
	if err := newRedisBackend(client, "pfx").Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected scan error, got %v", err)
	}

	client = newStubRedisClient()
	client.delErr = boom
	client.values["pfx:a"] = "1"
	if err := newRedisBackend(client, "pfx").Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected del error, got %v", err)
	}
}

func TestRedisBackendGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	backend := newRedisBackend(client, "")
	if err := backend.Set(ctx, "k", []byte{0x00, 0xff, 'v'}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	body, ok, err := backend.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	body[0] = 'X'

	again, _, _ := backend.Get(ctx, "k")
	if string(again) != "\x00\xffv" || client.values["k"] != "\x00\xffv" {
		t.Fatalf("expected stored value unchanged, got %q", again)
	}
}
