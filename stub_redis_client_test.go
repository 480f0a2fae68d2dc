package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errStubWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// stubRedisClient is an in-memory RedisClient used for unit tests.
type stubRedisClient struct {
	values map[string]string
	lists  map[string][]string

	getErr     error
	setErr     error
	incrErr    error
	rpushErr   error
	lrangeErr  error
	execErr    error
	flushDBErr error
	scanErr    error
	delErr     error

	flushDBCalls int
	txCalls      int
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

func (c *stubRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	if val, ok := c.values[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	if expiration != 0 {
		cmd.SetErr(fmt.Errorf("unexpected expiration %v", expiration))
		return cmd
	}
	bytes, _ := value.([]byte)
	delete(c.lists, key)
	c.values[key] = string(bytes)
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedisClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.incrErr != nil {
		cmd.SetErr(c.incrErr)
		return cmd
	}
	if _, ok := c.lists[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	current := int64(0)
	if existing, ok := c.values[key]; ok {
		parsed, err := strconv.ParseInt(existing, 10, 64)
		if err != nil {
			cmd.SetErr(errors.New("ERR value is not an integer or out of range"))
			return cmd
		}
		current = parsed
	}
	current++
	c.values[key] = strconv.FormatInt(current, 10)
	cmd.SetVal(current)
	return cmd
}

func (c *stubRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.rpushErr != nil {
		cmd.SetErr(c.rpushErr)
		return cmd
	}
	if _, ok := c.values[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	for _, v := range values {
		bytes, _ := v.([]byte)
		c.lists[key] = append(c.lists[key], string(bytes))
	}
	cmd.SetVal(int64(len(c.lists[key])))
	return cmd
}

func (c *stubRedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if c.lrangeErr != nil {
		cmd.SetErr(c.lrangeErr)
		return cmd
	}
	if _, ok := c.values[key]; ok {
		cmd.SetErr(errStubWrongType)
		return cmd
	}
	items := c.lists[key]
	lo, hi, ok := rangeBounds(len(items), start, stop)
	if !ok {
		cmd.SetVal([]string{})
		return cmd
	}
	cmd.SetVal(append([]string(nil), items[lo:hi]...))
	return cmd
}

// TxPipelined queues RPush calls and applies them together unless execErr is set.
func (c *stubRedisClient) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	c.txCalls++
	pipe := &stubPipeliner{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	if c.execErr != nil {
		return nil, c.execErr
	}
	cmds := make([]redis.Cmder, 0, len(pipe.queued))
	for _, q := range pipe.queued {
		cmd := c.RPush(ctx, q.key, q.values...)
		cmds = append(cmds, cmd)
		if err := cmd.Err(); err != nil {
			return cmds, err
		}
	}
	return cmds, nil
}

func (c *stubRedisClient) FlushDB(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	c.flushDBCalls++
	if c.flushDBErr != nil {
		cmd.SetErr(c.flushDBErr)
		return cmd
	}
	c.values = make(map[string]string)
	c.lists = make(map[string][]string)
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	for key := range c.lists {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

func (c *stubRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			delete(c.values, key)
			removed++
		}
		if _, ok := c.lists[key]; ok {
			delete(c.lists, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

type queuedPush struct {
	key    string
	values []interface{}
}

// stubPipeliner records RPush calls; any other pipeline command panics.
type stubPipeliner struct {
	redis.Pipeliner
	queued []queuedPush
}

func (p *stubPipeliner) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	p.queued = append(p.queued, queuedPush{key: key, values: values})
	return redis.NewIntCmd(ctx)
}
