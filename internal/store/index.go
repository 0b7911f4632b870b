package store

import (
	"context"
	"errors"

	"github.com/klubi/rstore/internal/backend"
)

// IndexEntry identifies one secondary index mapping.
type IndexEntry struct {
	ResourceType string
	Field        string
	Value        string
	// Primary is the resource type's primary field.
	Primary string
}

// IndexLayout decides how index entries are laid out in the key space.
type IndexLayout interface {
	// Put queues the mapping e -> id and a precondition that e is unclaimed.
	Put(b *Batch, keys Keys, e IndexEntry, id string)
	Remove(b *Batch, keys Keys, e IndexEntry)
	// Lookup returns the id e maps to, or ErrNotFound.
	Lookup(ctx context.Context, be backend.Backend, keys Keys, e IndexEntry) (string, error)
}

// HashLayout keeps one hash per indexed field: root:type:field maps every
// value to its resource id.
type HashLayout struct{}

func (HashLayout) Put(b *Batch, keys Keys, e IndexEntry, id string) {
	key := keys.Key(e.ResourceType, e.Field)
	b.RequireHashFieldAbsent(key, e.Value, duplicate(e))
	b.HashSet(key, e.Value, id)
}

func (HashLayout) Remove(b *Batch, keys Keys, e IndexEntry) {
	b.HashDelete(keys.Key(e.ResourceType, e.Field), e.Value)
}

func (HashLayout) Lookup(ctx context.Context, be backend.Backend, keys Keys, e IndexEntry) (string, error) {
	id, err := be.HGet(ctx, keys.Key(e.ResourceType, e.Field), e.Value)
	if errors.Is(err, backend.ErrNil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &BackendError{Op: "hget", Err: err}
	}
	return id, nil
}

// StringLayout keeps one plain key per entry:
// root:type:field:value:primary holds the resource id.
type StringLayout struct{}

func (StringLayout) key(keys Keys, e IndexEntry) string {
	return keys.Key(e.ResourceType, e.Field, e.Value, e.Primary)
}

func (l StringLayout) Put(b *Batch, keys Keys, e IndexEntry, id string) {
	key := l.key(keys, e)
	b.RequireKeyAbsent(key, duplicate(e))
	b.Set(key, []byte(id))
}

func (l StringLayout) Remove(b *Batch, keys Keys, e IndexEntry) {
	b.Delete(l.key(keys, e))
}

func (l StringLayout) Lookup(ctx context.Context, be backend.Backend, keys Keys, e IndexEntry) (string, error) {
	raw, err := be.Get(ctx, l.key(keys, e))
	if errors.Is(err, backend.ErrNil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &BackendError{Op: "get", Err: err}
	}
	return string(raw), nil
}

func duplicate(e IndexEntry) error {
	return &DuplicateIndexError{ResourceType: e.ResourceType, Field: e.Field, Value: e.Value}
}

// IndexManager maintains the value -> id mappings of every indexed field.
type IndexManager struct {
	be     backend.Backend
	keys   Keys
	layout IndexLayout
}

func (m *IndexManager) entry(rt *ResourceType, field, value string) IndexEntry {
	return IndexEntry{ResourceType: rt.Name, Field: field, Value: value, Primary: rt.idField()}
}

// Exists reports whether value is already claimed for field.
func (m *IndexManager) Exists(ctx context.Context, rt *ResourceType, field, value string) (bool, error) {
	_, err := m.Lookup(ctx, rt, field, value)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put queues the mapping r[field] -> r[primary]. The commit fails with a
// *DuplicateIndexError if the value is claimed in the meantime.
func (m *IndexManager) Put(b *Batch, rt *ResourceType, field string, r Resource) error {
	value, ok := fieldValue(r[field])
	if !ok {
		return &ValidationError{Field: field, Reason: MissingIndexValue}
	}
	id, ok := fieldValue(r[rt.idField()])
	if !ok {
		return &ValidationError{Field: rt.idField(), Reason: MissingRequiredField}
	}
	m.layout.Put(b, m.keys, m.entry(rt, field, value), id)
	return nil
}

// Remove queues deletion of the mapping for value.
func (m *IndexManager) Remove(b *Batch, rt *ResourceType, field, value string) {
	m.layout.Remove(b, m.keys, m.entry(rt, field, value))
}

// Lookup resolves value to the owning resource id or ErrNotFound.
func (m *IndexManager) Lookup(ctx context.Context, rt *ResourceType, field, value string) (string, error) {
	return m.layout.Lookup(ctx, m.be, m.keys, m.entry(rt, field, value))
}
