package backend

import (
	"context"
	"sort"
	"sync"
)

// Memory is a thread-safe, in-memory Backend.
// Useful for unit tests and short-lived processes.
type Memory struct {
	mu      sync.RWMutex
	strings map[string][]byte
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	closed  bool
}

// NewMemory creates a ready-to-use in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
	}
}

// ---------- strings ----------

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	raw, ok := m.strings[key]
	if !ok {
		return nil, ErrNil
	}
	return append([]byte(nil), raw...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.setLocked(key, value)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, key := range keys {
		if m.existsLocked(key) {
			n++
		}
		m.deleteLocked(key)
	}
	return n, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrClosed
	}
	return m.existsLocked(key), nil
}

func (m *Memory) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if raw, ok := m.strings[key]; ok {
			out[i] = append([]byte(nil), raw...)
		}
	}
	return out, nil
}

// ---------- sets ----------

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, member := range members {
		m.saddLocked(key, member)
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, member := range members {
		m.sremLocked(key, member)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	set := m.sets[key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// ---------- hashes ----------

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.hsetLocked(key, field, value)
	return nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}
	value, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNil
	}
	return value, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, field := range fields {
		m.hdelLocked(key, field)
	}
	return nil
}

// ---------- commit ----------

// Commit checks every condition and applies ops while holding the write
// lock, so no other caller observes a partial commit.
func (m *Memory) Commit(_ context.Context, ops []Op, conds []Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, c := range conds {
		if !m.holdsLocked(c) {
			return &ConditionError{Condition: c}
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			m.setLocked(op.Key, op.Value)
		case OpDelete:
			m.deleteLocked(op.Key)
		case OpSAdd:
			m.saddLocked(op.Key, op.Field)
		case OpSRem:
			m.sremLocked(op.Key, op.Field)
		case OpHSet:
			m.hsetLocked(op.Key, op.Field, string(op.Value))
		case OpHDel:
			m.hdelLocked(op.Key, op.Field)
		}
	}
	return nil
}

// ---------- lifecycle ----------

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.strings = make(map[string][]byte)
	m.sets = make(map[string]map[string]struct{})
	m.hashes = make(map[string]map[string]string)
	return nil
}

// ---------- internal ----------
// All helpers below must be called with m.mu held for writing.

func (m *Memory) existsLocked(key string) bool {
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.sets[key]; ok {
		return true
	}
	_, ok := m.hashes[key]
	return ok
}

func (m *Memory) holdsLocked(c Condition) bool {
	switch c.Kind {
	case CondFieldAbsent:
		_, ok := m.hashes[c.Key][c.Field]
		return !ok
	case CondKeyPresent:
		return m.existsLocked(c.Key)
	default:
		return !m.existsLocked(c.Key)
	}
}

func (m *Memory) setLocked(key string, value []byte) {
	m.deleteLocked(key)
	m.strings[key] = append([]byte(nil), value...)
}

func (m *Memory) deleteLocked(key string) {
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.hashes, key)
}

func (m *Memory) saddLocked(key, member string) {
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
}

func (m *Memory) sremLocked(key, member string) {
	set, ok := m.sets[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(m.sets, key)
	}
}

func (m *Memory) hsetLocked(key, field, value string) {
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	hash[field] = value
}

func (m *Memory) hdelLocked(key, field string) {
	hash, ok := m.hashes[key]
	if !ok {
		return
	}
	delete(hash, field)
	if len(hash) == 0 {
		delete(m.hashes, key)
	}
}
