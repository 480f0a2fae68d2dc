package cachetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	cache "github.com/goforj/cachejournal"
)

// Options configures shared backend contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "get returns a copy" assertions.
	SkipCloneCheck bool
	// SkipWrongKind disables the value/list collision checks for drivers
	// that keep values and lists in separate namespaces.
	SkipWrongKind bool
}

// RunBackendContract runs a backend-agnostic contract suite.
func RunBackendContract(t *testing.T, backend cache.Backend, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("initial flush failed: %v", err)
	}

	// Miss is not an error.
	if body, ok, err := backend.Get(ctx, key("missing")); err != nil || ok || body != nil {
		t.Fatalf("expected clean miss, got ok=%v body=%q err=%v", ok, body, err)
	}

	// Set/Get round-trip, binary safe.
	binary := []byte{0x00, 0xff, 'v', 0x10}
	if err := backend.Set(ctx, key("alpha"), binary); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := backend.Get(ctx, key("alpha"))
	if err != nil || !ok || string(body) != string(binary) {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, body, err)
	}
	if !opts.SkipCloneCheck {
		body[0] = 'X'
		again, _, _ := backend.Get(ctx, key("alpha"))
		if string(again) != string(binary) {
			t.Fatalf("expected stored value unchanged, got %q", again)
		}
	}

	// Set overwrites.
	if err := backend.Set(ctx, key("alpha"), []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if body, _, _ := backend.Get(ctx, key("alpha")); string(body) != "second" {
		t.Fatalf("expected overwrite, got %q", body)
	}

	// Increment starts from zero and is readable as text.
	for want := int64(1); want <= 3; want++ {
		got, err := backend.Increment(ctx, key("counter"))
		if err != nil || got != want {
			t.Fatalf("increment %d failed: got=%d err=%v", want, got, err)
		}
	}
	if body, ok, err := backend.Get(ctx, key("counter")); err != nil || !ok || string(body) != "3" {
		t.Fatalf("expected counter text 3, got ok=%v body=%q err=%v", ok, body, err)
	}

	// Increment continues from a decimal value written by Set.
	if err := backend.Set(ctx, key("seeded"), []byte("41")); err != nil {
		t.Fatalf("set seeded failed: %v", err)
	}
	if got, err := backend.Increment(ctx, key("seeded")); err != nil || got != 42 {
		t.Fatalf("expected seeded increment 42, got=%d err=%v", got, err)
	}

	// Increment on a non-numeric value fails.
	if _, err := backend.Increment(ctx, key("alpha")); err == nil {
		t.Fatalf("expected non-numeric increment to fail")
	}

	// Range on a missing list is empty.
	items, err := backend.Range(ctx, key("nolist"), 0, -1)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty range, got %d items err=%v", len(items), err)
	}

	// Push keeps call order.
	for _, v := range []string{"a", "b", "c"} {
		if err := backend.Push(ctx, cache.ListEntry{Key: key("list"), Value: []byte(v)}); err != nil {
			t.Fatalf("push %s failed: %v", v, err)
		}
	}
	assertRange(t, backend, key("list"), 0, -1, "a", "b", "c")
	assertRange(t, backend, key("list"), 1, 1, "b")
	assertRange(t, backend, key("list"), -2, -1, "b", "c")
	assertRange(t, backend, key("list"), 0, 100, "a", "b", "c")
	assertRange(t, backend, key("list"), 2, 1)
	assertRange(t, backend, key("list"), 5, 10)

	if !opts.SkipCloneCheck {
		items, _ := backend.Range(ctx, key("list"), 0, 0)
		if len(items) == 1 && len(items[0]) > 0 {
			items[0][0] = 'Z'
		}
		assertRange(t, backend, key("list"), 0, 0, "a")
	}

	// Multi-entry push lands in every list, in order.
	err = backend.Push(ctx,
		cache.ListEntry{Key: key("in"), Value: []byte("i1")},
		cache.ListEntry{Key: key("out"), Value: []byte("o1")},
		cache.ListEntry{Key: key("in"), Value: []byte("i2")},
	)
	if err != nil {
		t.Fatalf("multi push failed: %v", err)
	}
	assertRange(t, backend, key("in"), 0, -1, "i1", "i2")
	assertRange(t, backend, key("out"), 0, -1, "o1")

	if err := backend.Push(ctx); err != nil {
		t.Fatalf("empty push failed: %v", err)
	}

	if !opts.SkipWrongKind {
		if _, _, err := backend.Get(ctx, key("list")); err == nil {
			t.Fatalf("expected get on a list to fail")
		}
		if _, err := backend.Range(ctx, key("alpha"), 0, -1); err == nil {
			t.Fatalf("expected range on a value to fail")
		}
		if err := backend.Push(ctx, cache.ListEntry{Key: key("alpha"), Value: []byte("x")}); err == nil {
			t.Fatalf("expected push onto a value to fail")
		}
		if body, _, _ := backend.Get(ctx, key("alpha")); string(body) != "second" {
			t.Fatalf("expected value untouched by rejected push, got %q", body)
		}
	}

	// Flush clears values, counters and lists.
	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	for _, k := range []string{"alpha", "counter", "seeded"} {
		if _, ok, err := backend.Get(ctx, key(k)); err != nil || ok {
			t.Fatalf("expected %s flushed, ok=%v err=%v", k, ok, err)
		}
	}
	for _, k := range []string{"list", "in", "out"} {
		if items, err := backend.Range(ctx, key(k), 0, -1); err != nil || len(items) != 0 {
			t.Fatalf("expected list %s flushed, got %d items err=%v", k, len(items), err)
		}
	}
	if got, err := backend.Increment(ctx, key("counter")); err != nil || got != 1 {
		t.Fatalf("expected counter to restart at 1 after flush, got=%d err=%v", got, err)
	}
	if err := backend.Flush(ctx); err != nil {
		t.Fatalf("final flush failed: %v", err)
	}
}

func assertRange(t *testing.T, backend cache.Backend, key string, start, stop int64, want ...string) {
	t.Helper()
	items, err := backend.Range(context.Background(), key, start, stop)
	if err != nil {
		t.Fatalf("range %s[%d:%d] failed: %v", key, start, stop, err)
	}
	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, string(item))
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("range %s[%d:%d]: expected %v, got %v", key, start, stop, want, got)
	}
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(s)
}

