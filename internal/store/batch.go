package store

import (
	"context"
	"errors"
	"sync"

	"github.com/klubi/rstore/internal/backend"
)

// Batch queues mutations and preconditions and commits them as one atomic
// unit. It is safe for concurrent use, so association hooks running in
// parallel can queue into the same batch.
type Batch struct {
	be backend.Backend

	mu        sync.Mutex
	ops       []backend.Op
	conds     []backend.Condition
	conflicts []error
}

func newBatch(be backend.Backend) *Batch {
	return &Batch{be: be}
}

func (b *Batch) queue(op backend.Op) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *Batch) require(c backend.Condition, conflict error) {
	b.mu.Lock()
	b.conds = append(b.conds, c)
	b.conflicts = append(b.conflicts, conflict)
	b.mu.Unlock()
}

// Set queues a write of value at key.
func (b *Batch) Set(key string, value []byte) {
	b.queue(backend.Op{Kind: backend.OpSet, Key: key, Value: value})
}

// Delete queues removal of key.
func (b *Batch) Delete(key string) {
	b.queue(backend.Op{Kind: backend.OpDelete, Key: key})
}

// AddMember queues adding member to the set at key.
func (b *Batch) AddMember(key, member string) {
	b.queue(backend.Op{Kind: backend.OpSAdd, Key: key, Field: member})
}

// RemoveMember queues removing member from the set at key.
func (b *Batch) RemoveMember(key, member string) {
	b.queue(backend.Op{Kind: backend.OpSRem, Key: key, Field: member})
}

// HashSet queues setting field of the hash at key.
func (b *Batch) HashSet(key, field, value string) {
	b.queue(backend.Op{Kind: backend.OpHSet, Key: key, Field: field, Value: []byte(value)})
}

// HashDelete queues removing field from the hash at key.
func (b *Batch) HashDelete(key, field string) {
	b.queue(backend.Op{Kind: backend.OpHDel, Key: key, Field: field})
}

// RequireHashFieldAbsent makes the commit fail with conflict if field of
// the hash at key exists when the batch is applied.
func (b *Batch) RequireHashFieldAbsent(key, field string, conflict error) {
	b.require(backend.Condition{Kind: backend.CondFieldAbsent, Key: key, Field: field}, conflict)
}

// RequireKeyAbsent makes the commit fail with conflict if key exists when
// the batch is applied.
func (b *Batch) RequireKeyAbsent(key string, conflict error) {
	b.require(backend.Condition{Kind: backend.CondKeyAbsent, Key: key}, conflict)
}

// RequireKeyPresent makes the commit fail with conflict if key is missing
// when the batch is applied.
func (b *Batch) RequireKeyPresent(key string, conflict error) {
	b.require(backend.Condition{Kind: backend.CondKeyPresent, Key: key}, conflict)
}

// Len returns the number of queued mutations.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Commit applies every queued mutation or none of them. A violated
// precondition returns the conflict error it was registered with; any other
// failure is a *BackendError.
func (b *Batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	ops, conds, conflicts := b.ops, b.conds, b.conflicts
	b.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	err := b.be.Commit(ctx, ops, conds)
	if err == nil {
		return nil
	}

	var condErr *backend.ConditionError
	if errors.As(err, &condErr) {
		for i, c := range conds {
			if c == condErr.Condition && conflicts[i] != nil {
				return conflicts[i]
			}
		}
	}
	return &BackendError{Op: "commit", Err: err}
}
