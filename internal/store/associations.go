package store

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Association is a hook run while a resource is created. Implementations
// queue their side effects into the batch so they commit together with the
// resource, and must not modify the resource.
type Association interface {
	// LocalKey names the field that triggers the hook. Resources without
	// it skip the hook.
	LocalKey() string
	Create(ctx context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error
}

// AssociationRemover is implemented by associations that leave state behind
// which must be removed when the resource is deleted.
type AssociationRemover interface {
	Remove(ctx context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error
}

// runAssociations runs every applicable hook concurrently and waits for all
// of them. The first failure is returned as an *AssociationError.
func (s *Store) runAssociations(ctx context.Context, rt *ResourceType, b *Batch, r Resource) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range rt.Associations {
		if !r.Has(a.LocalKey()) {
			continue
		}
		a := a
		g.Go(func() error {
			if err := a.Create(gctx, s, b, rt, r); err != nil {
				return &AssociationError{Hook: hookName(a), Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// removeAssociations queues the cleanup of every applicable hook.
func (s *Store) removeAssociations(ctx context.Context, rt *ResourceType, b *Batch, r Resource) error {
	for _, a := range rt.Associations {
		rm, ok := a.(AssociationRemover)
		if !ok || !r.Has(a.LocalKey()) {
			continue
		}
		if err := rm.Remove(ctx, s, b, rt, r); err != nil {
			return &AssociationError{Hook: hookName(a), Err: err}
		}
	}
	return nil
}

func hookName(a Association) string {
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", a)
}

// ---------- Link ----------

// Link ties a new resource to an existing resource of type Target whose id
// is held in Field. The new resource is added to the target's Set, listable
// with Store.ListBySet(ctx, link.SetName(targetID)).
//
//	Link{Field: "developerId", Target: "developer", Set: "applications"}
type Link struct {
	Field  string
	Target string
	Set    string
}

func (l Link) LocalKey() string { return l.Field }

func (l Link) String() string { return "link(" + l.Field + "->" + l.Target + ")" }

// SetName returns the name of the set linked resources of targetID live in.
func (l Link) SetName(targetID string) string {
	return strings.Join([]string{l.Target, targetID, l.Set}, Separator)
}

func (l Link) Create(ctx context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error {
	targetID, _ := fieldValue(r[l.Field])
	ok, err := s.Exists(ctx, l.Target, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %q: %w", l.Target, targetID, ErrNotFound)
	}
	s.sets.AddMember(b, l.SetName(targetID), rt.Name, r.UUID())
	return nil
}

func (l Link) Remove(_ context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error {
	targetID, _ := fieldValue(r[l.Field])
	s.sets.RemoveMember(b, l.SetName(targetID), rt.Name, r.UUID())
	return nil
}

// ---------- CompositeKey ----------

// CompositeKey makes a combination of fields unique and resolvable, for
// example a developer's email together with an application name. The key
// root:type:name:v1:...:vn holds the resource id. Separators and
// backslashes inside values are escaped with a backslash.
type CompositeKey struct {
	Name   string
	Fields []string
}

func (c CompositeKey) LocalKey() string {
	if len(c.Fields) == 0 {
		return ""
	}
	return c.Fields[0]
}

// BoundFields returns every field the key is built from.
func (c CompositeKey) BoundFields() []string { return c.Fields }

func (c CompositeKey) String() string { return "composite(" + c.Name + ")" }

// compositeEscaper escapes the separator inside values so that distinct
// tuples never share a key.
var compositeEscaper = strings.NewReplacer(`\`, `\\`, Separator, `\`+Separator)

func (c CompositeKey) key(keys Keys, rt *ResourceType, values []string) string {
	parts := make([]any, 0, len(values)+2)
	parts = append(parts, rt.Name, c.Name)
	for _, v := range values {
		parts = append(parts, compositeEscaper.Replace(v))
	}
	return keys.Key(parts...)
}

func (c CompositeKey) values(r Resource) ([]string, error) {
	values := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		v, ok := fieldValue(r[f])
		if !ok {
			return nil, &ValidationError{Field: f, Reason: MissingIndexValue}
		}
		values[i] = v
	}
	return values, nil
}

func (c CompositeKey) Create(ctx context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error {
	values, err := c.values(r)
	if err != nil {
		return err
	}
	key := c.key(s.keys, rt, values)
	conflict := &DuplicateIndexError{ResourceType: rt.Name, Field: c.Name, Value: strings.Join(values, Separator)}

	taken, err := s.be.Exists(ctx, key)
	if err != nil {
		return &BackendError{Op: "exists", Err: err}
	}
	if taken {
		return conflict
	}
	b.RequireKeyAbsent(key, conflict)
	b.Set(key, []byte(r.UUID()))
	return nil
}

func (c CompositeKey) Remove(_ context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error {
	values, err := c.values(r)
	if err != nil {
		// Never fully written.
		return nil
	}
	b.Delete(c.key(s.keys, rt, values))
	return nil
}
