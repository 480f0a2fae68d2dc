package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	cache "github.com/goforj/cachejournal"
)

var storeKinds = []string{"string", "int", "float", "bytes"}

func storeKindValidator(value string) error {
	for _, k := range storeKinds {
		if k == value {
			return nil
		}
	}
	return fmt.Errorf("must be one of %v", storeKinds)
}

// RunCommandBuilder constructs "run": store every argument, read each back,
// then print the call count and the journal replay.
func RunCommandBuilder() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "store values and replay Cache.Store",
		UsageText: "cachejournal [global options] run [--as KIND] VALUE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      "as",
				Usage:     "how to store each value: string, int, float or bytes",
				Value:     "string",
				Validator: storeKindValidator,
			},
		},
		Action: RunCommandAction,
	}
}

// RunCommandAction opens the configured cache (flushing it) and drives Store,
// the typed getters, Calls and Replay.
func RunCommandAction(ctx context.Context, cmd *cli.Command) error {
	values := cmd.Args().Slice()
	if len(values) == 0 {
		return fmt.Errorf("run needs at least one value")
	}
	kind := cmd.String("as")

	// Parse everything up front so a bad argument leaves the backend untouched.
	data := make([]any, 0, len(values))
	for _, raw := range values {
		v, err := parseValue(kind, raw)
		if err != nil {
			return err
		}
		data = append(data, v)
	}

	cfg := backendConfig(cmd)
	log.WithFields(log.Fields{"driver": cfg.Driver, "prefix": cfg.Prefix}).Debug("opening cache")
	c, err := cache.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Driver, err)
	}
	c.WithObserver(cache.NewLogObserver(log.Log))

	w := cmd.Root().Writer
	for _, v := range data {
		key, err := c.Store(ctx, v)
		if err != nil {
			return err
		}
		got, err := readBack(ctx, c, kind, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s -> %s\n", key, got)
	}

	calls, err := c.Calls(ctx, cache.StoreOperation)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "calls: %d\n", calls)
	return cache.Replay(ctx, w, c, cache.StoreOperation)
}

func parseValue(kind, raw string) (any, error) {
	switch kind {
	case "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float", raw)
		}
		return f, nil
	case "bytes":
		return []byte(raw), nil
	default:
		return raw, nil
	}
}

func readBack(ctx context.Context, c *cache.Cache, kind, key string) (string, error) {
	var (
		out string
		ok  bool
		err error
	)
	switch kind {
	case "int":
		var n int64
		n, ok, err = c.GetInt(ctx, key)
		out = strconv.FormatInt(n, 10)
	case "float":
		var f float64
		f, ok, err = c.GetFloat(ctx, key)
		out = strconv.FormatFloat(f, 'f', -1, 64)
	case "bytes":
		var b []byte
		b, ok, err = c.Get(ctx, key)
		out = fmt.Sprintf("%x", b)
	default:
		var s string
		s, ok, err = c.GetString(ctx, key)
		out = strconv.Quote(s)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("key %s vanished after store", key)
	}
	return out, nil
}
