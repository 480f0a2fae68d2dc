package cache

import (
	"context"
	"fmt"
	"io"
)

// Replay writes the journal of the named operation to w, one line per call
// in call order, after a header with the call count. It only reads.
//
// Example: replay Store
//
//	_, _ = c.Store(ctx, "foo")
//	_ = cache.Replay(ctx, os.Stdout, c, cache.StoreOperation)
//	// Cache.Store was called 1 times:
//	// Cache.Store(*["foo"]) -> "2b1d..."
func Replay(ctx context.Context, w io.Writer, c *Cache, name string) error {
	calls, histErr := c.History(ctx, name)
	if calls == nil && histErr != nil {
		return histErr
	}
	if _, err := fmt.Fprintf(w, "%s was called %d times:\n", name, len(calls)); err != nil {
		return err
	}
	for _, call := range calls {
		if _, err := fmt.Fprintf(w, "%s(*%s) -> %s\n", name, call.RawArgs, call.RawResult); err != nil {
			return err
		}
	}
	return histErr
}
