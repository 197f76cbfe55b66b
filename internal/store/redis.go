package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RedisOptions configures a Redis-backed store.
type RedisOptions struct {
	// Address of the Redis server.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// Prefix namespaces the hash and change channel. Defaults to "focus".
	Prefix string
}

// DefaultRedisOptions returns options for a local, unauthenticated server.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Address: "localhost:6379",
		Prefix:  "focus",
	}
}

// maxUpdateRetries bounds optimistic-lock retries when another writer
// touches the hash between WATCH and EXEC.
const maxUpdateRetries = 16

// RedisStore implements Store on a single Redis hash. Updates use
// WATCH/MULTI/EXEC and every committed write is published on a channel so
// subscribers in any process see it.
type RedisStore struct {
	client  *redis.Client
	hash    string
	channel string

	mu     sync.Mutex
	subs   subscribers
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisStore connects to Redis. The connection is lazy; the first command
// reports connectivity errors.
func NewRedisStore(opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "focus"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{
		client:  client,
		hash:    prefix + ":state",
		channel: prefix + ":changes",
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func hmget(ctx context.Context, c redis.Cmdable, hash string, keys []string) (Values, error) {
	out := Values{}
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.HMGet(ctx, hash, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = json.RawMessage(str)
		}
	}
	return out, nil
}

// Get returns the stored values for keys.
func (s *RedisStore) Get(ctx context.Context, keys ...string) (Values, error) {
	v, err := hmget(ctx, s.client, s.hash, keys)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %w", strings.Join(keys, ","), ErrStoreUnavailable, err)
	}
	return v, nil
}

// Set writes all values with a single HSET.
func (s *RedisStore) Set(ctx context.Context, values Values) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return s.Update(ctx, keys, func(Values) (Values, error) { return values, nil })
}

// Update runs fn under an optimistic lock on the state hash.
func (s *RedisStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	var fnErr error

	txf := func(tx *redis.Tx) error {
		current, err := hmget(ctx, tx, s.hash, keys)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		if len(next) == 0 {
			return nil
		}

		var extra []string
		for k := range next {
			if _, ok := current[k]; !ok {
				extra = append(extra, k)
			}
		}
		prev, err := hmget(ctx, tx, s.hash, extra)
		if err != nil {
			return err
		}
		for k, v := range prev {
			current[k] = v
		}

		changes := diff(current, next)
		fields := make([]any, 0, len(next)*2)
		for k, v := range next {
			fields = append(fields, k, string(v))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.hash, fields...)
			if len(changes) > 0 {
				pipe.Publish(ctx, s.channel, encodeChanges(changes))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, s.hash)
		if err == nil {
			return nil
		}
		if fnErr != nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update: %w: %w", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("update: %w: too many concurrent writers", ErrStoreUnavailable)
}

// OnChange subscribes to the change channel. The first subscriber opens the
// Redis subscription; the last to cancel closes it.
func (s *RedisStore) OnChange(fn func(Changes)) (cancel func()) {
	s.mu.Lock()
	id := s.subs.add(fn)
	if s.pubsub == nil {
		s.pubsub = s.client.Subscribe(context.Background(), s.channel)
		s.done = make(chan struct{})
		go s.dispatch(s.pubsub.Channel(), s.done)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.subs.remove(id)
			var ps *redis.PubSub
			var done chan struct{}
			if len(s.subs.funcs) == 0 && s.pubsub != nil {
				ps, done = s.pubsub, s.done
				s.pubsub, s.done = nil, nil
			}
			s.mu.Unlock()
			if ps != nil {
				_ = ps.Close()
				<-done
			}
		})
	}
}

func (s *RedisStore) dispatch(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		changes := decodeChanges(msg.Payload)
		if len(changes) == 0 {
			continue
		}
		s.mu.Lock()
		funcs := s.subs.snapshot()
		s.mu.Unlock()
		for _, fn := range funcs {
			fn(changes)
		}
	}
}

// Close releases the subscription and the client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	ps, done := s.pubsub, s.done
	s.pubsub, s.done = nil, nil
	s.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
		<-done
	}
	return s.client.Close()
}

// encodeChanges renders changes as {"key":{"old":...,"new":...}}.
func encodeChanges(changes Changes) string {
	payload := "{}"
	for k, c := range changes {
		path := escapePath(k)
		payload, _ = sjson.SetRaw(payload, path+".old", rawOrNull(c.Old))
		payload, _ = sjson.SetRaw(payload, path+".new", rawOrNull(c.New))
	}
	return payload
}

// decodeChanges parses a payload produced by encodeChanges. Malformed
// payloads yield no changes.
func decodeChanges(payload string) Changes {
	if !gjson.Valid(payload) {
		return nil
	}
	changes := Changes{}
	gjson.Parse(payload).ForEach(func(key, value gjson.Result) bool {
		changes[key.String()] = Change{
			Old: rawValue(value.Get("old")),
			New: rawValue(value.Get("new")),
		}
		return true
	})
	return changes
}

func rawOrNull(v json.RawMessage) string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}

func rawValue(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}

func escapePath(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(k)
}
