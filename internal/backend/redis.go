package backend

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// defaultCommitRetries bounds how often an optimistic commit is retried after
// a watched key changed underneath it.
const defaultCommitRetries = 5

// Redis is a Backend on top of a go-redis UniversalClient. The client is
// owned by the caller: Close closes it, but Redis never dials on its own.
//
// Commits without conditions are sent as one MULTI/EXEC pipeline. Commits with
// conditions WATCH the referenced keys, evaluate the conditions, and then run
// MULTI/EXEC; a concurrent write to a watched key aborts the EXEC and the
// whole attempt is retried with exponential backoff.
type Redis struct {
	client     redis.UniversalClient
	logger     *zap.Logger
	maxRetries uint64
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger used for commit retries.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) { r.logger = logger }
}

// WithCommitRetries sets how many times a conflicting commit is retried.
func WithCommitRetries(n uint64) RedisOption {
	return func(r *Redis) { r.maxRetries = n }
}

// NewRedis wraps an already configured client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		logger:     zap.NewNop(),
		maxRetries: defaultCommitRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client returns the underlying go-redis client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// ---------- strings ----------

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNil
	}
	return raw, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, keys...).Result()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// ---------- sets ----------

func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, key, toArgs(members)...).Err()
}

func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.client.SRem(ctx, key, toArgs(members)...).Err()
}

func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// ---------- hashes ----------

func (r *Redis) HSet(ctx context.Context, key, field, value string) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	value, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return value, err
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.client.HDel(ctx, key, fields...).Err()
}

// ---------- commit ----------

func (r *Redis) Commit(ctx context.Context, ops []Op, conds []Condition) error {
	if len(conds) == 0 {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			queueOps(ctx, pipe, ops)
			return nil
		})
		return err
	}

	txf := func(tx *redis.Tx) error {
		for _, c := range conds {
			ok, err := holdsRedis(ctx, tx, c)
			if err != nil {
				return err
			}
			if !ok {
				return &ConditionError{Condition: c}
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			queueOps(ctx, pipe, ops)
			return nil
		})
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := r.client.Watch(ctx, txf, conditionKeys(conds)...)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("optimistic commit conflicted, retrying",
				zap.Int("attempt", attempt), zap.Int("ops", len(ops)))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
}

// ---------- lifecycle ----------

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// ---------- internal ----------

func holdsRedis(ctx context.Context, tx *redis.Tx, c Condition) (bool, error) {
	if c.Kind == CondFieldAbsent {
		present, err := tx.HExists(ctx, c.Key, c.Field).Result()
		return !present, err
	}
	n, err := tx.Exists(ctx, c.Key).Result()
	if c.Kind == CondKeyPresent {
		return n > 0, err
	}
	return n == 0, err
}

func queueOps(ctx context.Context, pipe redis.Pipeliner, ops []Op) {
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			pipe.Set(ctx, op.Key, op.Value, 0)
		case OpDelete:
			pipe.Del(ctx, op.Key)
		case OpSAdd:
			pipe.SAdd(ctx, op.Key, op.Field)
		case OpSRem:
			pipe.SRem(ctx, op.Key, op.Field)
		case OpHSet:
			pipe.HSet(ctx, op.Key, op.Field, string(op.Value))
		case OpHDel:
			pipe.HDel(ctx, op.Key, op.Field)
		}
	}
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
