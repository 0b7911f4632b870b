// Package backend defines the key-value contract the resource store is built
// on, together with Redis, BoltDB and in-memory implementations.
//
// Every backend understands three value types living in one key space:
// plain strings, sets of members and hashes of fields. Deleting a key removes
// it whatever its type, exactly as Redis DEL does.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrNil is returned by Get and HGet when the key or field does not exist.
	ErrNil = errors.New("backend: nil value")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("backend: closed")
)

// Backend is the persistence contract of the resource store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the given keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// MGet returns one entry per key, nil where the key is absent.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Commit applies ops as one atomic unit. Every condition is evaluated
	// atomically with the writes; if one does not hold nothing is applied and
	// a *ConditionError is returned.
	Commit(ctx context.Context, ops []Op, conds []Condition) error

	Ping(ctx context.Context) error
	Close() error
}

// OpKind identifies a queued mutation.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
	OpSAdd
	OpSRem
	OpHSet
	OpHDel
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "SET"
	case OpDelete:
		return "DEL"
	case OpSAdd:
		return "SADD"
	case OpSRem:
		return "SREM"
	case OpHSet:
		return "HSET"
	case OpHDel:
		return "HDEL"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Op is a single mutation inside a commit. Field holds the set member for
// SADD/SREM and the hash field for HSET/HDEL.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value []byte
}

// CondKind identifies a commit precondition.
type CondKind int

const (
	// CondKeyAbsent holds when Key does not exist.
	CondKeyAbsent CondKind = iota
	// CondFieldAbsent holds when hash Key has no Field.
	CondFieldAbsent
	// CondKeyPresent holds when Key exists.
	CondKeyPresent
)

// Condition must hold at commit time for the commit to apply.
type Condition struct {
	Kind  CondKind
	Key   string
	Field string
}

func (c Condition) String() string {
	switch c.Kind {
	case CondFieldAbsent:
		return fmt.Sprintf("field %q absent in %s", c.Field, c.Key)
	case CondKeyPresent:
		return fmt.Sprintf("key %s present", c.Key)
	default:
		return fmt.Sprintf("key %s absent", c.Key)
	}
}

// ConditionError reports the first condition that did not hold at commit.
type ConditionError struct {
	Condition Condition
}

func (e *ConditionError) Error() string {
	return "backend: precondition failed: " + e.Condition.String()
}

// conditionKeys returns the distinct keys referenced by conds.
func conditionKeys(conds []Condition) []string {
	seen := make(map[string]bool, len(conds))
	keys := make([]string, 0, len(conds))
	for _, c := range conds {
		if !seen[c.Key] {
			seen[c.Key] = true
			keys = append(keys, c.Key)
		}
	}
	return keys
}
