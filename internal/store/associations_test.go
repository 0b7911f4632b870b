package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubi/rstore/internal/backend"
)

// recordingHook counts invocations and optionally fails.
type recordingHook struct {
	key   string
	err   error
	calls int32
}

func (h *recordingHook) LocalKey() string { return h.key }

func (h *recordingHook) Create(_ context.Context, s *Store, b *Batch, rt *ResourceType, r Resource) error {
	atomic.AddInt32(&h.calls, 1)
	if h.err != nil {
		return h.err
	}
	b.Set(s.Keys().Key(rt.Name, "hooked", r.UUID()), []byte("1"))
	return nil
}

func developerAndApplication(t *testing.T) (*ResourceType, *ResourceType, Link) {
	t.Helper()
	developer, err := NewResourceType("developer",
		WithRequired("email"), WithIndexes("email"), WithSets("developers"))
	require.NoError(t, err)

	link := Link{Field: "developerId", Target: "developer", Set: "applications"}
	application, err := NewResourceType("application",
		WithRequired("name"),
		WithSets("applications"),
		WithAssociations(link, CompositeKey{Name: "devapp", Fields: []string{"developerId", "name"}}),
	)
	require.NoError(t, err)
	return developer, application, link
}

func TestLinkAssociation(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store, _ backend.Backend) {
		ctx := context.Background()
		developer, application, link := developerAndApplication(t)

		dev, err := s.Create(ctx, developer, Resource{"email": "dev@example.com"})
		require.NoError(t, err)

		app, err := s.Create(ctx, application, Resource{"name": "app", "developerId": dev.UUID()})
		require.NoError(t, err)

		linked, err := s.ListBySet(ctx, link.SetName(dev.UUID()))
		require.NoError(t, err)
		require.Len(t, linked, 1)
		assert.Equal(t, app, linked[0])

		_, err = s.Delete(ctx, application, app.UUID())
		require.NoError(t, err)

		linked, err = s.ListBySet(ctx, link.SetName(dev.UUID()))
		require.NoError(t, err)
		assert.Empty(t, linked)
	})
}

func TestLinkMissingTargetAbortsCreate(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store, _ backend.Backend) {
		ctx := context.Background()
		_, application, _ := developerAndApplication(t)

		_, err := s.Create(ctx, application, Resource{"name": "app", "developerId": "ghost"})

		var assocErr *AssociationError
		require.ErrorAs(t, err, &assocErr)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, ClassAssociation, Classify(err))

		var createErr *CreateError
		require.ErrorAs(t, err, &createErr)
		assert.Equal(t, PhaseAssociationRunning, createErr.Phase)

		apps, err := s.ListBySet(ctx, "applications")
		require.NoError(t, err)
		assert.Empty(t, apps)
	})
}

func TestAssociationSkippedWithoutLocalKey(t *testing.T) {
	s := New(backend.NewMemory())
	_, application, _ := developerAndApplication(t)

	app, err := s.Create(context.Background(), application, Resource{"name": "standalone"})
	require.NoError(t, err)
	assert.NotEmpty(t, app.UUID())
}

func TestAssociationFailureCommitsNothing(t *testing.T) {
	be := backend.NewMemory()
	s := New(be)
	ctx := context.Background()

	ok := &recordingHook{key: "owner"}
	boom := &recordingHook{key: "owner", err: errors.New("boom")}
	rt := widgetType(t, WithAssociations(ok, boom))

	_, err := s.Create(ctx, rt, Resource{"name": "a", "owner": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.EqualValues(t, 1, atomic.LoadInt32(&boom.calls))

	all, err := s.ListBySet(ctx, "widgets")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.LookupByIndex(ctx, rt, "name", "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssociationWritesCommitWithResource(t *testing.T) {
	be := backend.NewMemory()
	s := New(be)
	ctx := context.Background()

	hook := &recordingHook{key: "owner"}
	rt := widgetType(t, WithAssociations(hook))

	w, err := s.Create(ctx, rt, Resource{"name": "a", "owner": "x"})
	require.NoError(t, err)

	exists, err := be.Exists(ctx, s.Keys().Key("widget", "hooked", w.UUID()))
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.Create(ctx, rt, Resource{"name": "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hook.calls), "hook runs only when its local key is set")
}

func TestCompositeKey(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store, _ backend.Backend) {
		ctx := context.Background()
		developer, application, _ := developerAndApplication(t)

		dev, err := s.Create(ctx, developer, Resource{"email": "dev@example.com"})
		require.NoError(t, err)
		app, err := s.Create(ctx, application, Resource{"name": "app", "developerId": dev.UUID()})
		require.NoError(t, err)

		got, err := s.ResolveComposite(ctx, application, "devapp", dev.UUID(), "app")
		require.NoError(t, err)
		assert.Equal(t, app, got)

		_, err = s.Create(ctx, application, Resource{"name": "app", "developerId": dev.UUID()})
		var dupErr *DuplicateIndexError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "devapp", dupErr.Field)
		assert.Equal(t, ClassConflict, Classify(err))

		_, err = s.Delete(ctx, application, app.UUID())
		require.NoError(t, err)

		_, err = s.ResolveComposite(ctx, application, "devapp", dev.UUID(), "app")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCompositeKeySeparatorInValues(t *testing.T) {
	s := New(backend.NewMemory())
	ctx := context.Background()
	pair, err := NewResourceType("pair", WithAssociations(CompositeKey{Name: "ab", Fields: []string{"a", "b"}}))
	require.NoError(t, err)

	first, err := s.Create(ctx, pair, Resource{"a": "x:y", "b": "z"})
	require.NoError(t, err)
	second, err := s.Create(ctx, pair, Resource{"a": "x", "b": "y:z"})
	require.NoError(t, err)
	third, err := s.Create(ctx, pair, Resource{"a": `x\`, "b": ":z"})
	require.NoError(t, err)

	got, err := s.ResolveComposite(ctx, pair, "ab", "x:y", "z")
	require.NoError(t, err)
	assert.Equal(t, first.UUID(), got.UUID())
	got, err = s.ResolveComposite(ctx, pair, "ab", "x", "y:z")
	require.NoError(t, err)
	assert.Equal(t, second.UUID(), got.UUID())
	got, err = s.ResolveComposite(ctx, pair, "ab", `x\`, ":z")
	require.NoError(t, err)
	assert.Equal(t, third.UUID(), got.UUID())
}

func TestResolveCompositeErrors(t *testing.T) {
	s := New(backend.NewMemory())
	_, application, _ := developerAndApplication(t)

	_, err := s.ResolveComposite(context.Background(), application, "unknown", "a")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = s.ResolveComposite(context.Background(), application, "devapp", "only-one")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAssociationWithoutLocalKeyIsInvalid(t *testing.T) {
	_, err := NewResourceType("x", WithAssociations(CompositeKey{Name: "empty"}))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
