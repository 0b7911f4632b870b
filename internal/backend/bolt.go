package backend

import (
	"context"
	"errors"

	bolt "go.etcd.io/bbolt"
)

var (
	stringsBucket = []byte("strings")
	setsBucket    = []byte("sets")
	hashesBucket  = []byte("hashes")
)

// Bolt persists the key space to a BoltDB file on disk.
//
// Strings live in one bucket. Every set and every hash is a nested bucket
// (named by its key) under the "sets" and "hashes" buckets respectively;
// set members are stored as keys with an empty value.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) a BoltDB database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	// Ensure the top-level buckets exist.
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{stringsBucket, setsBucket, hashesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// ---------- strings ----------

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(stringsBucket).Get([]byte(key))
		if raw == nil {
			return ErrNil
		}
		// Bolt values are only valid for the life of the transaction.
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, b.wrap(err)
}

func (b *Bolt) Set(_ context.Context, key string, value []byte) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		return setTx(tx, key, value)
	}))
}

func (b *Bolt) Delete(_ context.Context, keys ...string) (int64, error) {
	var n int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, key := range keys {
			if existsTx(tx, key) {
				n++
			}
			if err := deleteTx(tx, key); err != nil {
				return err
			}
		}
		return nil
	})
	return n, b.wrap(err)
}

func (b *Bolt) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = existsTx(tx, key)
		return nil
	})
	return ok, b.wrap(err)
}

func (b *Bolt) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(stringsBucket)
		for i, key := range keys {
			if raw := bkt.Get([]byte(key)); raw != nil {
				out[i] = append([]byte(nil), raw...)
			}
		}
		return nil
	})
	return out, b.wrap(err)
}

// ---------- sets ----------

func (b *Bolt) SAdd(_ context.Context, key string, members ...string) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		for _, member := range members {
			if err := saddTx(tx, key, member); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (b *Bolt) SRem(_ context.Context, key string, members ...string) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		for _, member := range members {
			if err := sremTx(tx, key, member); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (b *Bolt) SMembers(_ context.Context, key string) ([]string, error) {
	var members []string
	err := b.db.View(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		// Cursor order is byte order, so members come back sorted.
		return set.ForEach(func(k, _ []byte) error {
			members = append(members, string(k))
			return nil
		})
	})
	return members, b.wrap(err)
}

// ---------- hashes ----------

func (b *Bolt) HSet(_ context.Context, key, field, value string) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		return hsetTx(tx, key, field, value)
	}))
}

func (b *Bolt) HGet(_ context.Context, key, field string) (string, error) {
	var value string
	err := b.db.View(func(tx *bolt.Tx) error {
		hash := tx.Bucket(hashesBucket).Bucket([]byte(key))
		if hash == nil {
			return ErrNil
		}
		raw := hash.Get([]byte(field))
		if raw == nil {
			return ErrNil
		}
		value = string(raw)
		return nil
	})
	return value, b.wrap(err)
}

func (b *Bolt) HDel(_ context.Context, key string, fields ...string) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		for _, field := range fields {
			if err := hdelTx(tx, key, field); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ---------- commit ----------

// Commit evaluates conds and applies ops inside a single read-write
// transaction; returning an error from the closure rolls everything back.
func (b *Bolt) Commit(_ context.Context, ops []Op, conds []Condition) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		for _, c := range conds {
			if !holdsTx(tx, c) {
				return &ConditionError{Condition: c}
			}
		}
		for _, op := range ops {
			if err := applyTx(tx, op); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ---------- lifecycle ----------

func (b *Bolt) Ping(context.Context) error {
	return b.wrap(b.db.View(func(*bolt.Tx) error { return nil }))
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// ---------- internal ----------

func (b *Bolt) wrap(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func applyTx(tx *bolt.Tx, op Op) error {
	switch op.Kind {
	case OpSet:
		return setTx(tx, op.Key, op.Value)
	case OpDelete:
		return deleteTx(tx, op.Key)
	case OpSAdd:
		return saddTx(tx, op.Key, op.Field)
	case OpSRem:
		return sremTx(tx, op.Key, op.Field)
	case OpHSet:
		return hsetTx(tx, op.Key, op.Field, string(op.Value))
	case OpHDel:
		return hdelTx(tx, op.Key, op.Field)
	}
	return nil
}

func holdsTx(tx *bolt.Tx, c Condition) bool {
	switch c.Kind {
	case CondFieldAbsent:
		hash := tx.Bucket(hashesBucket).Bucket([]byte(c.Key))
		return hash == nil || hash.Get([]byte(c.Field)) == nil
	case CondKeyPresent:
		return existsTx(tx, c.Key)
	default:
		return !existsTx(tx, c.Key)
	}
}

func existsTx(tx *bolt.Tx, key string) bool {
	k := []byte(key)
	return tx.Bucket(stringsBucket).Get(k) != nil ||
		tx.Bucket(setsBucket).Bucket(k) != nil ||
		tx.Bucket(hashesBucket).Bucket(k) != nil
}

func setTx(tx *bolt.Tx, key string, value []byte) error {
	if err := deleteTx(tx, key); err != nil {
		return err
	}
	return tx.Bucket(stringsBucket).Put([]byte(key), value)
}

func deleteTx(tx *bolt.Tx, key string) error {
	k := []byte(key)
	if err := tx.Bucket(stringsBucket).Delete(k); err != nil {
		return err
	}
	for _, name := range [][]byte{setsBucket, hashesBucket} {
		if err := tx.Bucket(name).DeleteBucket(k); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
	}
	return nil
}

func saddTx(tx *bolt.Tx, key, member string) error {
	set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	return set.Put([]byte(member), []byte{})
}

func sremTx(tx *bolt.Tx, key, member string) error {
	return removeNested(tx.Bucket(setsBucket), key, member)
}

func hsetTx(tx *bolt.Tx, key, field, value string) error {
	hash, err := tx.Bucket(hashesBucket).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	return hash.Put([]byte(field), []byte(value))
}

func hdelTx(tx *bolt.Tx, key, field string) error {
	return removeNested(tx.Bucket(hashesBucket), key, field)
}

// removeNested deletes name from the nested bucket key under parent and drops
// the nested bucket once it is empty, so emptied sets and hashes stop existing.
func removeNested(parent *bolt.Bucket, key, name string) error {
	nested := parent.Bucket([]byte(key))
	if nested == nil {
		return nil
	}
	if err := nested.Delete([]byte(name)); err != nil {
		return err
	}
	if k, _ := nested.Cursor().First(); k == nil {
		return parent.DeleteBucket([]byte(key))
	}
	return nil
}
