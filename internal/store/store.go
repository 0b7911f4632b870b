// Package store is a generic indexed-resource store on top of a key-value
// backend with atomic batches.
//
// Every resource of type T lives at "{root}:T:{uuid}". Unique secondary
// indexes map field values back to ids, named sets list resources, and
// association hooks link resources to each other. A create or delete writes
// the record and all derived entries in one atomic commit.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klubi/rstore/internal/backend"
	"github.com/klubi/rstore/internal/metrics"
)

// Store is safe for concurrent use. It holds no locks of its own: the
// consistency of derived entries rests on backend commits.
type Store struct {
	be      backend.Backend
	keys    Keys
	logger  *zap.Logger
	metrics *metrics.Metrics

	indexes *IndexManager
	sets    *SetMembership
	watch   watchers
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	root    string
	layout  IndexLayout
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithRoot sets the namespace every key is created under.
func WithRoot(root string) Option {
	return func(o *storeOptions) { o.root = root }
}

// WithIndexLayout selects how index entries are stored. HashLayout is the
// default.
func WithIndexLayout(l IndexLayout) Option {
	return func(o *storeOptions) { o.layout = l }
}

// WithLogger sets the logger. Only successful commits are logged, at debug
// level; errors are returned, not logged.
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) { o.logger = logger }
}

// WithMetrics records every operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *storeOptions) { o.metrics = m }
}

// New returns a store over be. The caller keeps ownership of be and closes
// it after the store.
func New(be backend.Backend, opts ...Option) *Store {
	o := storeOptions{
		root:   DefaultRoot,
		layout: HashLayout{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	keys := Keys{Root: o.root}
	return &Store{
		be:      be,
		keys:    keys,
		logger:  o.logger,
		metrics: o.metrics,
		indexes: &IndexManager{be: be, keys: keys, layout: o.layout},
		sets:    &SetMembership{be: be, keys: keys},
	}
}

// Keys returns the key builder of the store.
func (s *Store) Keys() Keys { return s.keys }

// Indexes returns the secondary index manager.
func (s *Store) Indexes() *IndexManager { return s.indexes }

// Sets returns the set membership manager.
func (s *Store) Sets() *SetMembership { return s.sets }

// NewBatch starts an empty batch against the store's backend.
func (s *Store) NewBatch() *Batch { return newBatch(s.be) }

// Close closes every watch channel. It does not close the backend.
func (s *Store) Close() error {
	s.watch.closeAll()
	return nil
}

// ---------- CRUD ----------

// Create stores a new resource and returns it as it will be read back, with
// uuid and the primary field set. r itself is not modified.
func (s *Store) Create(ctx context.Context, rt *ResourceType, r Resource) (created Resource, err error) {
	start := time.Now()
	defer func() { s.observe("create", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	fail := func(p Phase, err error) error {
		return &CreateError{ResourceType: rt.Name, Phase: p, Err: err}
	}

	res := r.clone()
	id := uuid.NewString()
	res[UUIDField] = id
	if rt.Primary != "" && rt.Primary != UUIDField {
		res[rt.Primary] = id
	}

	// Validating
	if err := rt.applyGenerators(res); err != nil {
		return nil, fail(PhaseValidating, err)
	}
	if err := rt.checkValidations(res); err != nil {
		return nil, fail(PhaseValidating, err)
	}
	if err := rt.checkRequired(res); err != nil {
		return nil, fail(PhaseValidating, err)
	}

	// IndexChecking: every value must be present before any is looked up.
	for _, field := range rt.Indexes {
		if !res.Has(field) {
			return nil, fail(PhaseIndexChecking, &ValidationError{Field: field, Reason: MissingIndexValue})
		}
	}
	for _, field := range rt.Indexes {
		value, _ := fieldValue(res[field])
		taken, err := s.indexes.Exists(ctx, rt, field, value)
		if err != nil {
			return nil, fail(PhaseIndexChecking, err)
		}
		if taken {
			return nil, fail(PhaseIndexChecking, &DuplicateIndexError{ResourceType: rt.Name, Field: field, Value: value})
		}
	}

	// AssociationRunning
	b := s.NewBatch()
	if err := s.runAssociations(ctx, rt, b, res); err != nil {
		return nil, fail(PhaseAssociationRunning, err)
	}

	// Batching
	raw, err := encodeResource(res)
	if err != nil {
		return nil, fail(PhaseBatching, &BackendError{Op: "encode", Err: err})
	}
	b.Set(s.keys.record(rt.Name, id), raw)
	for _, set := range rt.Sets {
		s.sets.AddMember(b, set, rt.Name, id)
	}
	for _, field := range rt.Indexes {
		if err := s.indexes.Put(b, rt, field, res); err != nil {
			return nil, fail(PhaseBatching, err)
		}
	}
	if err := b.Commit(ctx); err != nil {
		return nil, fail(PhaseBatching, err)
	}

	created, err = decodeResource(raw)
	if err != nil {
		return nil, &BackendError{Op: "decode", Err: err}
	}
	s.logger.Debug("created resource",
		zap.String("type", rt.Name), zap.String("id", id), zap.Int("ops", b.Len()))
	s.watch.notify(Event{Type: EventAdded, ResourceType: rt.Name, ID: id, Object: created})
	return created, nil
}

// Get returns the resource with the given uuid, or ErrNotFound.
func (s *Store) Get(ctx context.Context, rt *ResourceType, id string) (res Resource, err error) {
	start := time.Now()
	defer func() { s.observe("get", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	return s.get(ctx, rt.Name, id)
}

func (s *Store) get(ctx context.Context, resourceType, id string) (Resource, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.be.Get(ctx, s.keys.record(resourceType, id))
	if errors.Is(err, backend.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &BackendError{Op: "get", Err: err}
	}
	res, err := decodeResource(raw)
	if err != nil {
		return nil, &BackendError{Op: "decode", Err: err}
	}
	return res, nil
}

// Exists reports whether a resource of resourceType with the given uuid is
// stored.
func (s *Store) Exists(ctx context.Context, resourceType, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ok, err := s.be.Exists(ctx, s.keys.record(resourceType, id))
	if err != nil {
		return false, &BackendError{Op: "exists", Err: err}
	}
	return ok, nil
}

// Update overwrites the stored record at r's uuid with r. Indexes, sets and
// association entries are left untouched, so fields they were keyed on keep
// their stored value when r omits them and may not change: a changed value
// is a *ValidationError. Changing one requires delete and create.
func (s *Store) Update(ctx context.Context, rt *ResourceType, r Resource) (updated Resource, err error) {
	start := time.Now()
	defer func() { s.observe("update", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	id := r.UUID()
	if id == "" {
		return nil, &ValidationError{Field: UUIDField, Reason: MissingRequiredField}
	}

	res := r.clone()
	if rt.Primary != "" && rt.Primary != UUIDField {
		res[rt.Primary] = id
	}
	if err := rt.checkValidations(res); err != nil {
		return nil, err
	}

	stored, err := s.get(ctx, rt.Name, id)
	if err != nil {
		return nil, err
	}
	if err := rt.keepBoundFields(stored, res); err != nil {
		return nil, err
	}

	raw, err := encodeResource(res)
	if err != nil {
		return nil, &BackendError{Op: "encode", Err: err}
	}
	// A delete racing this update must not be undone by the write.
	key := s.keys.record(rt.Name, id)
	b := s.NewBatch()
	b.RequireKeyPresent(key, ErrNotFound)
	b.Set(key, raw)
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}

	updated, err = decodeResource(raw)
	if err != nil {
		return nil, &BackendError{Op: "decode", Err: err}
	}
	s.logger.Debug("updated resource", zap.String("type", rt.Name), zap.String("id", id))
	s.watch.notify(Event{Type: EventModified, ResourceType: rt.Name, ID: id, Object: updated})
	return updated, nil
}

// Delete removes the resource, its set memberships, its index entries and
// whatever its associations left behind, in one commit. The removed
// resource is returned.
func (s *Store) Delete(ctx context.Context, rt *ResourceType, id string) (deleted Resource, err error) {
	start := time.Now()
	defer func() { s.observe("delete", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}

	// The stored values are needed to find the index entries.
	res, err := s.get(ctx, rt.Name, id)
	if err != nil {
		return nil, err
	}

	b := s.NewBatch()
	b.Delete(s.keys.record(rt.Name, id))
	for _, set := range rt.Sets {
		s.sets.RemoveMember(b, set, rt.Name, id)
	}
	for _, field := range rt.Indexes {
		if value, ok := fieldValue(res[field]); ok {
			s.indexes.Remove(b, rt, field, value)
		}
	}
	if err := s.removeAssociations(ctx, rt, b, res); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Debug("deleted resource",
		zap.String("type", rt.Name), zap.String("id", id), zap.Int("ops", b.Len()))
	s.watch.notify(Event{Type: EventDeleted, ResourceType: rt.Name, ID: id, Object: res})
	return res, nil
}

// ---------- queries ----------

// ListBySet returns the current members of the named set. Set names embed
// resource ids, so metrics record them under the fixed label "set".
func (s *Store) ListBySet(ctx context.Context, set string) (res []Resource, err error) {
	start := time.Now()
	defer func() { s.observeLabel("list", setLabel, start, err) }()

	return s.sets.List(ctx, set)
}

// List returns every resource of rt through its list set. Types without
// sets cannot be listed and yield an empty result.
func (s *Store) List(ctx context.Context, rt *ResourceType) (res []Resource, err error) {
	start := time.Now()
	defer func() { s.observe("list", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	set := rt.ListSet()
	if set == "" {
		return []Resource{}, nil
	}
	return s.sets.List(ctx, set)
}

// LookupByIndex resolves a unique index value to its resource, or
// ErrNotFound.
func (s *Store) LookupByIndex(ctx context.Context, rt *ResourceType, field, value string) (res Resource, err error) {
	start := time.Now()
	defer func() { s.observe("lookup", rt, start, err) }()

	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	if !contains(rt.Indexes, field) {
		return nil, fmt.Errorf("%w: %s is not an index of %s", ErrInvalidConfig, field, rt.Name)
	}
	id, err := s.indexes.Lookup(ctx, rt, field, value)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, rt.Name, id)
}

// ResolveComposite resolves the values of a CompositeKey association of rt,
// in field order, to its resource.
func (s *Store) ResolveComposite(ctx context.Context, rt *ResourceType, name string, values ...string) (Resource, error) {
	if rt == nil {
		return nil, fmt.Errorf("%w: nil resource type", ErrInvalidConfig)
	}
	for _, a := range rt.Associations {
		ck, ok := a.(CompositeKey)
		if !ok || ck.Name != name {
			continue
		}
		if len(values) != len(ck.Fields) {
			return nil, fmt.Errorf("%w: composite key %s takes %d values, got %d",
				ErrInvalidConfig, name, len(ck.Fields), len(values))
		}
		raw, err := s.be.Get(ctx, ck.key(s.keys, rt, values))
		if errors.Is(err, backend.ErrNil) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, &BackendError{Op: "get", Err: err}
		}
		return s.get(ctx, rt.Name, string(raw))
	}
	return nil, fmt.Errorf("%w: %s has no composite key %s", ErrInvalidConfig, rt.Name, name)
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.be.Ping(ctx); err != nil {
		return &BackendError{Op: "ping", Err: err}
	}
	return nil
}

// ---------- internal ----------

// setLabel stands in for the resource type of set listings.
const setLabel = "set"

func (s *Store) observe(op string, rt *ResourceType, start time.Time, err error) {
	name := ""
	if rt != nil {
		name = rt.Name
	}
	s.observeLabel(op, name, start, err)
}

func (s *Store) observeLabel(op, resourceType string, start time.Time, err error) {
	s.metrics.RecordOperation(op, resourceType, time.Since(start))
	if err != nil {
		s.metrics.RecordError(op, resourceType, Classify(err).String())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
