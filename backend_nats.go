package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSKeyValue captures the subset of nats.KeyValue used by the backend.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

const natsCASAttempts = 16

var errNATSUnavailable = errors.New("nats cache key-value unavailable")

// natsBackend keeps values and lists in separate key namespaces. Lists are
// JSON arrays updated with revision checks; a multi-list Push is applied list
// by list and is not atomic across lists.
type natsBackend struct {
	kv     NATSKeyValue
	prefix string
}

func newNATSBackend(kv NATSKeyValue, prefix string) Backend {
	return &natsBackend{kv: kv, prefix: prefix}
}

func connectNATSKeyValue(url, bucket string) (NATSKeyValue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream nats: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, History: 1})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind nats kv bucket %q: %w", bucket, err)
	}
	return kv, nil
}

func (s *natsBackend) Driver() Driver { return DriverNATS }

func (s *natsBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNATSUnavailable
	}
	entry, err := s.kv.Get(s.valueKey(key))
	if isNATSMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if isNATSTombstone(entry) {
		return nil, false, nil
	}
	return cloneBytes(entry.Value()), true, nil
}

func (s *natsBackend) Set(_ context.Context, key string, value []byte) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	_, err := s.kv.Put(s.valueKey(key), cloneBytes(value))
	return err
}

func (s *natsBackend) Increment(_ context.Context, key string) (int64, error) {
	if s.kv == nil {
		return 0, errNATSUnavailable
	}
	var next int64
	err := s.compareAndSwap(s.valueKey(key), func(current []byte) ([]byte, error) {
		n := int64(0)
		if len(current) > 0 {
			parsed, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cache key %q does not contain a numeric value", key)
			}
			n = parsed
		}
		next = n + 1
		return []byte(strconv.FormatInt(next, 10)), nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *natsBackend) Push(_ context.Context, entries ...ListEntry) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	var order []string
	grouped := make(map[string][][]byte)
	for _, entry := range entries {
		if _, ok := grouped[entry.Key]; !ok {
			order = append(order, entry.Key)
		}
		grouped[entry.Key] = append(grouped[entry.Key], cloneBytes(entry.Value))
	}
	for _, key := range order {
		err := s.compareAndSwap(s.listKey(key), func(current []byte) ([]byte, error) {
			items, err := decodeNATSList(current)
			if err != nil {
				return nil, err
			}
			return json.Marshal(append(items, grouped[key]...))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *natsBackend) Range(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	if s.kv == nil {
		return nil, errNATSUnavailable
	}
	entry, err := s.kv.Get(s.listKey(key))
	if isNATSMiss(err) {
		return [][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	if isNATSTombstone(entry) {
		return [][]byte{}, nil
	}
	items, err := decodeNATSList(entry.Value())
	if err != nil {
		return nil, err
	}
	return sliceRange(items, start, stop), nil
}

func (s *natsBackend) Flush(_ context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scopePrefix := s.scopePrefix()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scopePrefix) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

// compareAndSwap applies fn to the current body at key and writes the result
// only if nobody else wrote in between.
func (s *natsBackend) compareAndSwap(key string, fn func(current []byte) ([]byte, error)) error {
	for attempt := 0; attempt < natsCASAttempts; attempt++ {
		var (
			current  []byte
			revision uint64
		)
		entry, err := s.kv.Get(key)
		switch {
		case isNATSMiss(err):
		case err != nil:
			return err
		case isNATSTombstone(entry):
			revision = entry.Revision()
		default:
			current = entry.Value()
			revision = entry.Revision()
		}

		body, err := fn(current)
		if err != nil {
			return err
		}
		if revision == 0 {
			_, err = s.kv.Create(key, body)
		} else {
			_, err = s.kv.Update(key, body, revision)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isNATSMiss(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("nats update of %q exceeded retry limit", key)
}

func (s *natsBackend) valueKey(key string) string {
	return s.scopePrefix() + "k." + encodeNATSKeyPart(key)
}

func (s *natsBackend) listKey(key string) string {
	return s.scopePrefix() + "l." + encodeNATSKeyPart(key)
}

func (s *natsBackend) scopePrefix() string {
	return "p." + encodeNATSKeyPart(s.prefix) + "."
}

func decodeNATSList(body []byte) ([][]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var items [][]byte
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode nats list: %w", err)
	}
	return items, nil
}

func isNATSTombstone(entry nats.KeyValueEntry) bool {
	return entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// encodeNATSKeyPart keeps arbitrary keys within the NATS subject alphabet.
func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
