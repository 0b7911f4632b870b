package backend

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// factories returns one constructor per Backend implementation so every test
// below runs against all of them.
func factories(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemory()
		},
		"bolt": func(t *testing.T) Backend {
			b, err := NewBolt(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("opening bolt: %v", err)
			}
			return b
		},
		"redis": func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for name, newBackend := range factories(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			defer b.Close()
			fn(t, b)
		})
	}
}

func TestGetSetDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()

		if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNil) {
			t.Fatalf("expected ErrNil for missing key, got %v", err)
		}

		if err := b.Set(ctx, "k", []byte("v1")); err != nil {
			t.Fatalf("unexpected error on Set: %v", err)
		}
		got, err := b.Get(ctx, "k")
		if err != nil {
			t.Fatalf("unexpected error on Get: %v", err)
		}
		if string(got) != "v1" {
			t.Errorf("expected v1, got %s", got)
		}

		ok, err := b.Exists(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("expected key to exist, got %v (err %v)", ok, err)
		}

		n, err := b.Delete(ctx, "k", "missing")
		if err != nil {
			t.Fatalf("unexpected error on Delete: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 deleted key, got %d", n)
		}
		if ok, _ := b.Exists(ctx, "k"); ok {
			t.Error("expected key to be gone after Delete")
		}
	})
}

func TestMGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		_ = b.Set(ctx, "a", []byte("1"))
		_ = b.Set(ctx, "c", []byte("3"))

		vals, err := b.MGet(ctx, "a", "b", "c")
		if err != nil {
			t.Fatalf("unexpected error on MGet: %v", err)
		}
		if len(vals) != 3 {
			t.Fatalf("expected 3 values, got %d", len(vals))
		}
		if string(vals[0]) != "1" || vals[1] != nil || string(vals[2]) != "3" {
			t.Errorf("unexpected MGet result: %q", vals)
		}
	})
}

func TestSets(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()

		if err := b.SAdd(ctx, "s", "x", "y", "x"); err != nil {
			t.Fatalf("unexpected error on SAdd: %v", err)
		}
		members, err := b.SMembers(ctx, "s")
		if err != nil {
			t.Fatalf("unexpected error on SMembers: %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("expected 2 members, got %v", members)
		}

		if err := b.SRem(ctx, "s", "x", "y"); err != nil {
			t.Fatalf("unexpected error on SRem: %v", err)
		}
		if ok, _ := b.Exists(ctx, "s"); ok {
			t.Error("expected an emptied set to stop existing")
		}
		members, err = b.SMembers(ctx, "s")
		if err != nil {
			t.Fatalf("unexpected error on SMembers of missing set: %v", err)
		}
		if len(members) != 0 {
			t.Errorf("expected no members, got %v", members)
		}
	})
}

func TestHashes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()

		if _, err := b.HGet(ctx, "h", "f"); !errors.Is(err, ErrNil) {
			t.Fatalf("expected ErrNil for missing field, got %v", err)
		}
		if err := b.HSet(ctx, "h", "f", "v"); err != nil {
			t.Fatalf("unexpected error on HSet: %v", err)
		}
		got, err := b.HGet(ctx, "h", "f")
		if err != nil || got != "v" {
			t.Fatalf("expected v, got %q (err %v)", got, err)
		}
		if err := b.HDel(ctx, "h", "f"); err != nil {
			t.Fatalf("unexpected error on HDel: %v", err)
		}
		if _, err := b.HGet(ctx, "h", "f"); !errors.Is(err, ErrNil) {
			t.Fatalf("expected ErrNil after HDel, got %v", err)
		}
	})
}

func TestCommitAppliesAllOps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		_ = b.Set(ctx, "old", []byte("x"))
		_ = b.SAdd(ctx, "set", "gone")

		ops := []Op{
			{Kind: OpSet, Key: "rec", Value: []byte(`{"a":1}`)},
			{Kind: OpDelete, Key: "old"},
			{Kind: OpSAdd, Key: "set", Field: "rec"},
			{Kind: OpSRem, Key: "set", Field: "gone"},
			{Kind: OpHSet, Key: "idx", Field: "a", Value: []byte("rec")},
		}
		if err := b.Commit(ctx, ops, nil); err != nil {
			t.Fatalf("unexpected error on Commit: %v", err)
		}

		if got, _ := b.Get(ctx, "rec"); string(got) != `{"a":1}` {
			t.Errorf("expected record to be written, got %s", got)
		}
		if ok, _ := b.Exists(ctx, "old"); ok {
			t.Error("expected old key to be deleted")
		}
		members, _ := b.SMembers(ctx, "set")
		if !reflect.DeepEqual(members, []string{"rec"}) {
			t.Errorf("expected set [rec], got %v", members)
		}
		if id, _ := b.HGet(ctx, "idx", "a"); id != "rec" {
			t.Errorf("expected index entry rec, got %q", id)
		}

		if err := b.Commit(ctx, []Op{{Kind: OpHDel, Key: "idx", Field: "a"}}, nil); err != nil {
			t.Fatalf("unexpected error on HDel commit: %v", err)
		}
		if _, err := b.HGet(ctx, "idx", "a"); !errors.Is(err, ErrNil) {
			t.Errorf("expected index entry removed, got %v", err)
		}
	})
}

func TestCommitConditionFailureAppliesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		_ = b.HSet(ctx, "idx", "taken", "someone")

		ops := []Op{
			{Kind: OpSet, Key: "rec", Value: []byte("v")},
			{Kind: OpHSet, Key: "idx", Field: "taken", Value: []byte("rec")},
		}
		conds := []Condition{{Kind: CondFieldAbsent, Key: "idx", Field: "taken"}}

		err := b.Commit(ctx, ops, conds)
		var condErr *ConditionError
		if !errors.As(err, &condErr) {
			t.Fatalf("expected *ConditionError, got %v", err)
		}
		if condErr.Condition.Field != "taken" {
			t.Errorf("expected failing field taken, got %q", condErr.Condition.Field)
		}

		if ok, _ := b.Exists(ctx, "rec"); ok {
			t.Error("expected no record after a failed commit")
		}
		if owner, _ := b.HGet(ctx, "idx", "taken"); owner != "someone" {
			t.Errorf("expected index owner unchanged, got %q", owner)
		}
	})
}

func TestCommitKeyAbsentCondition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		conds := []Condition{{Kind: CondKeyAbsent, Key: "unique"}}
		ops := []Op{{Kind: OpSet, Key: "unique", Value: []byte("first")}}

		if err := b.Commit(ctx, ops, conds); err != nil {
			t.Fatalf("unexpected error on first commit: %v", err)
		}
		ops[0].Value = []byte("second")
		var condErr *ConditionError
		if err := b.Commit(ctx, ops, conds); !errors.As(err, &condErr) {
			t.Fatalf("expected *ConditionError on second commit, got %v", err)
		}
		if got, _ := b.Get(ctx, "unique"); string(got) != "first" {
			t.Errorf("expected first value kept, got %s", got)
		}
	})
}

func TestCommitKeyPresentCondition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		conds := []Condition{{Kind: CondKeyPresent, Key: "record"}}
		ops := []Op{{Kind: OpSet, Key: "record", Value: []byte("v2")}}

		var condErr *ConditionError
		if err := b.Commit(ctx, ops, conds); !errors.As(err, &condErr) {
			t.Fatalf("expected *ConditionError for missing key, got %v", err)
		}
		if condErr.Condition.Kind != CondKeyPresent {
			t.Errorf("expected failing CondKeyPresent, got %v", condErr.Condition)
		}
		if ok, _ := b.Exists(ctx, "record"); ok {
			t.Fatal("expected record not to be written")
		}

		if err := b.Set(ctx, "record", []byte("v1")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := b.Commit(ctx, ops, conds); err != nil {
			t.Fatalf("unexpected error with key present: %v", err)
		}
		if got, _ := b.Get(ctx, "record"); string(got) != "v2" {
			t.Errorf("expected v2, got %s", got)
		}
	})
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	_ = m.Close()

	if _, err := m.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on Ping, got %v", err)
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	b, err := NewBolt(path)
	if err != nil {
		t.Fatalf("opening bolt: %v", err)
	}
	if err := b.Commit(ctx, []Op{
		{Kind: OpSet, Key: "rec", Value: []byte("v")},
		{Kind: OpSAdd, Key: "set", Field: "rec"},
	}, nil); err != nil {
		t.Fatalf("unexpected error on Commit: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error on Close: %v", err)
	}

	b, err = NewBolt(path)
	if err != nil {
		t.Fatalf("reopening bolt: %v", err)
	}
	defer b.Close()

	if got, _ := b.Get(ctx, "rec"); string(got) != "v" {
		t.Errorf("expected persisted record, got %q", got)
	}
	if members, _ := b.SMembers(ctx, "set"); len(members) != 1 {
		t.Errorf("expected persisted set member, got %v", members)
	}
}

func TestRedisOptions(t *testing.T) {
	o := NewRedisOptions()
	o.Complete()
	if len(o.Addrs) != 1 || o.Addrs[0] != "127.0.0.1:6379" {
		t.Errorf("expected default address, got %v", o.Addrs)
	}
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("expected valid defaults, got %v", errs)
	}

	o.SSLInsecureSkipVerify = true
	o.Database = -1
	if errs := o.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 validation errors, got %v", errs)
	}
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	o := NewRedisOptions()
	o.Addrs = []string{mr.Addr()}

	r, err := DialRedis(context.Background(), o, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error dialing miniredis: %v", err)
	}
	defer r.Close()

	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error on Ping: %v", err)
	}
}
