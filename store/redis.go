package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-octopus/octopus/types"
)

// DefaultPrefix namespaces every key written by the Redis backend.
const DefaultPrefix = "octopus"

// priorityBias shifts priorities into unsigned space so the zero-padded
// decimal encoding sorts lexically in numeric order, negatives included.
const priorityBias = int64(1) << 31

// Redis is the remote backend. State is carried by key class:
//
//	{prefix}:all:{id}           request JSON
//	{prefix}:waiting:{P}:{id}   P = 10-digit biased priority
//	{prefix}:executing:{id}
//	{prefix}:completed:{id}
//	{prefix}:failed:{id}
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration

	db       int
	password string
	external bool
}

// RedisOption configures the Redis backend.
type RedisOption func(*Redis)

// WithPrefix overrides the key prefix. Prefixes containing ':' are
// rejected because ':' separates key segments.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithDB selects a logical Redis database.
func WithDB(db int) RedisOption {
	return func(r *Redis) { r.db = db }
}

// WithPassword authenticates the connection.
func WithPassword(password string) RedisOption {
	return func(r *Redis) { r.password = password }
}

// WithClient uses an existing client instead of dialing; Close then
// leaves the client open for its owner.
func WithClient(c redis.UniversalClient) RedisOption {
	return func(r *Redis) {
		r.client = c
		r.external = true
	}
}

// NewRedis connects to addr, verifies the connection, and performs crash
// recovery by moving every executing key back to waiting.
func NewRedis(addr string, opts ...RedisOption) (*Redis, error) {
	s := &Redis{prefix: DefaultPrefix, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if strings.Contains(s.prefix, ":") {
		return nil, &types.StoreError{Op: "open", Err: fmt.Errorf("prefix %q must not contain ':'", s.prefix)}
	}
	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{Addr: addr, DB: s.db, Password: s.password})
	}

	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, &types.StoreError{Op: "open", Err: err}
	}
	if err := s.recoverExecuting(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Redis) Put(r *types.Request) error {
	ctx, cancel := s.ctx()
	defer cancel()

	r.State = types.StateWaiting
	payload, err := json.Marshal(r)
	if err != nil {
		return &types.StoreError{Op: "put", Err: err}
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.allKey(r.ID), payload, 0)
	pipe.Del(ctx, s.classKey("executing", r.ID), s.classKey("completed", r.ID), s.classKey("failed", r.ID))
	pipe.Set(ctx, s.waitingKey(r.Priority, r.ID), "1", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return &types.StoreError{Op: "put", Err: err}
	}
	return nil
}

func (s *Redis) Get() (*types.Request, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.scanKeys(ctx, s.prefix+":waiting:*")
	if err != nil {
		return nil, &types.StoreError{Op: "get", Err: err}
	}
	// Highest biased priority first; the padding makes this numeric.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	for _, top := range keys {
		id := top[strings.LastIndexByte(top, ':')+1:]
		r, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if r == nil || r.State != types.StateWaiting {
			// Orphaned or stale waiting key, e.g. left behind when a
			// re-put changed the priority. Drop it and keep looking.
			s.client.Del(ctx, top)
			continue
		}
		r.State = types.StateExecuting
		payload, err := json.Marshal(r)
		if err != nil {
			return nil, &types.StoreError{Op: "get", Err: err}
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, top)
		pipe.Set(ctx, s.classKey("executing", id), "1", 0)
		pipe.Set(ctx, s.allKey(id), payload, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, &types.StoreError{Op: "get", Err: err}
		}
		return r, nil
	}
	return nil, nil
}

func (s *Redis) Exists(id string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	n, err := s.client.Exists(ctx, s.allKey(id)).Result()
	if err != nil {
		return false, &types.StoreError{Op: "exists", Err: err}
	}
	return n > 0, nil
}

func (s *Redis) UpdateState(r *types.Request, state types.State, msg string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	r.State = state
	r.Msg = msg
	payload, err := json.Marshal(r)
	if err != nil {
		return &types.StoreError{Op: "update state", Err: err}
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.allKey(r.ID), payload, 0)
	switch state {
	case types.StateCompleted:
		pipe.Del(ctx, s.classKey("executing", r.ID))
		pipe.Set(ctx, s.classKey("completed", r.ID), "1", 0)
	case types.StateFailed:
		pipe.Del(ctx, s.classKey("executing", r.ID))
		pipe.Set(ctx, s.classKey("failed", r.ID), "1", 0)
	case types.StateWaiting:
		pipe.Del(ctx, s.classKey("executing", r.ID), s.classKey("failed", r.ID))
		pipe.Set(ctx, s.waitingKey(r.Priority, r.ID), "1", 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &types.StoreError{Op: "update state", Err: err}
	}
	return nil
}

func (s *Redis) ReplyFailed() (int, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.scanKeys(ctx, s.prefix+":failed:*")
	if err != nil {
		return 0, &types.StoreError{Op: "reply failed", Err: err}
	}
	moved := 0
	for _, key := range keys {
		id := key[strings.LastIndexByte(key, ':')+1:]
		r, err := s.load(ctx, id)
		if err != nil {
			return moved, err
		}
		if r == nil {
			s.client.Del(ctx, key)
			continue
		}
		if err := s.UpdateState(r, types.StateWaiting, "retry"); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (s *Redis) Stats() (*Stats, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	stats := &Stats{}
	counts := []struct {
		pattern string
		dst     *int64
	}{
		{s.prefix + ":all:*", &stats.All},
		{s.prefix + ":waiting:*", &stats.Waiting},
		{s.prefix + ":executing:*", &stats.Executing},
		{s.prefix + ":completed:*", &stats.Completed},
		{s.prefix + ":failed:*", &stats.Failed},
	}
	for _, c := range counts {
		keys, err := s.scanKeys(ctx, c.pattern)
		if err != nil {
			return nil, &types.StoreError{Op: "stats", Err: err}
		}
		*c.dst = int64(len(keys))
	}
	return stats, nil
}

func (s *Redis) Close() error {
	if s.external {
		return nil
	}
	return s.client.Close()
}

func (s *Redis) recoverExecuting(ctx context.Context) error {
	keys, err := s.scanKeys(ctx, s.prefix+":executing:*")
	if err != nil {
		return &types.StoreError{Op: "recover", Err: err}
	}
	for _, key := range keys {
		id := key[strings.LastIndexByte(key, ':')+1:]
		r, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			s.client.Del(ctx, key)
			continue
		}
		if err := s.UpdateState(r, types.StateWaiting, "recovered"); err != nil {
			return err
		}
	}
	return nil
}

// load fetches and decodes the request JSON, or (nil, nil) when the id
// is unknown.
func (s *Redis) load(ctx context.Context, id string) (*types.Request, error) {
	raw, err := s.client.Get(ctx, s.allKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StoreError{Op: "load", Err: err}
	}
	var r types.Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &types.StoreError{Op: "load", Err: err}
	}
	return &r, nil
}

func (s *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *Redis) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Redis) allKey(id string) string {
	return s.prefix + ":all:" + id
}

func (s *Redis) classKey(class, id string) string {
	return s.prefix + ":" + class + ":" + id
}

func (s *Redis) waitingKey(priority int, id string) string {
	return fmt.Sprintf("%s:waiting:%s:%s", s.prefix, encodePriority(priority), id)
}

// encodePriority biases the priority into [0, 2^32) and zero-pads it to
// ten digits so lexicographic key order equals numeric priority order.
func encodePriority(priority int) string {
	return fmt.Sprintf("%010d", int64(priority)+priorityBias)
}
