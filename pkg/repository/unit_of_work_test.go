package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/specstore/pkg/specification"
)

func TestUnitOfWork_CommitNothingStaged(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	changed, err := uow.Commit(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUnitOfWork_RoundTrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	writer := NewUnitOfWork(manager, nil)
	g := &gadget{Name: "Sprocket", Brand: "Acme", Price: 42}
	RepositoryFor[gadget](writer).Add(g)

	changed, err := writer.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotZero(t, g.ID, "the store assigns the key on commit")

	changed, err = writer.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "a committed change is not applied twice")
	require.NoError(t, writer.Close())

	reader := NewUnitOfWork(manager, nil)
	got, err := RepositoryFor[gadget](reader).GetByID(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotSame(t, g, got)
	assert.Equal(t, "Sprocket", got.Name)
	assert.Equal(t, "Acme", got.Brand)
	assert.Equal(t, 42, got.Price)

	RepositoryFor[gadget](reader).Delete(got)
	changed, err = reader.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, reader.Close())

	check := NewUnitOfWork(manager, nil)
	defer check.Close()
	gone, err := RepositoryFor[gadget](check).GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUnitOfWork_AddThenDeleteCommitsNothing(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	repo := RepositoryFor[gadget](uow)
	g := &gadget{Name: "Ephemeral"}
	repo.Add(g)
	repo.Delete(g)

	changed, err := uow.Commit(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUnitOfWork_AddRange(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := RepositoryFor[gadget](uow)

	repo.AddRange(&gadget{Name: "a"}, &gadget{Name: "b"}, &gadget{Name: "c"})
	changed, err := uow.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := repo.Count(ctx, specification.New[gadget]())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUnitOfWork_UpdateWritesWholeRecord(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 3)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	// a detached instance carrying the full record
	RepositoryFor[gadget](uow).Update(&gadget{BaseEntity: BaseEntity{ID: 2}, Name: "Renamed", Brand: "", Price: 0})
	changed, err := uow.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, uow.Close())

	check := NewUnitOfWork(manager, nil)
	defer check.Close()
	got, err := RepositoryFor[gadget](check).GetByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Name)
	assert.Empty(t, got.Brand, "zero values are written too")
	assert.Zero(t, got.Price)
}

func TestUnitOfWork_DetectsInPlaceModification(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 3)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	g, err := RepositoryFor[gadget](uow).GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, g)

	g.Price = 999

	changed, err := uow.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = uow.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, uow.Close())

	check := NewUnitOfWork(manager, nil)
	defer check.Close()
	got, err := RepositoryFor[gadget](check).GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 999, got.Price)
}

func TestUnitOfWork_ConcurrencyConflict(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 3)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()
	RepositoryFor[gadget](uow).Update(&gadget{BaseEntity: BaseEntity{ID: 404}, Name: "ghost"})

	changed, err := uow.Commit(ctx)
	assert.False(t, changed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommitFailed)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "update", commitErr.Op)
	assert.Equal(t, "gadgets", commitErr.Table)
	assert.Equal(t, 404, commitErr.ID)

	// the rejected change stays staged
	_, err = uow.Commit(ctx)
	assert.True(t, IsConcurrencyConflict(err))
}

func TestUnitOfWork_DeleteMissingRowConflicts(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	RepositoryFor[gadget](uow).Delete(&gadget{BaseEntity: BaseEntity{ID: 7}})
	_, err := uow.Commit(context.Background())
	assert.True(t, IsConcurrencyConflict(err))
}

func TestUnitOfWork_FailedCommitRollsBack(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 5)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	repo := RepositoryFor[gadget](uow)
	repo.Add(&gadget{Name: "Never stored"})
	repo.Update(&gadget{BaseEntity: BaseEntity{ID: 404}})

	_, err := uow.Commit(ctx)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.NoError(t, uow.Close())

	check := NewUnitOfWork(manager, nil)
	defer check.Close()
	n, err := RepositoryFor[gadget](check).Count(ctx, specification.New[gadget]())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestUnitOfWork_FailedCommitResetsAssignedKeys(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 1)
	ctx := context.Background()

	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()
	repo := RepositoryFor[gadget](uow)

	fresh := &gadget{Name: "Fresh", Parts: []part{{Label: "bolt"}, {Label: "nut"}}}
	repo.Add(fresh)
	repo.Update(&gadget{BaseEntity: BaseEntity{ID: 404}, Name: "Renamed"})

	_, err := uow.Commit(ctx)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Zero(t, fresh.ID)
	assert.Zero(t, fresh.Parts[0].ID)
	assert.Zero(t, fresh.Parts[1].ID)

	// another unit of work takes the keys the rolled back insert had used and
	// creates the row the failed update expected
	other := NewUnitOfWork(manager, nil)
	intruder := &gadget{Name: "Intruder", Parts: []part{{Label: "gear"}}}
	RepositoryFor[gadget](other).AddRange(intruder, &gadget{BaseEntity: BaseEntity{ID: 404}, Name: "Placeholder"})
	_, err = other.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	changed, err := uow.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotZero(t, fresh.ID)
	assert.NotEqual(t, intruder.ID, fresh.ID)
	for _, p := range fresh.Parts {
		assert.NotZero(t, p.ID)
		assert.NotEqual(t, intruder.Parts[0].ID, p.ID)
		assert.Equal(t, fresh.ID, p.GadgetID)
	}

	check := NewUnitOfWork(manager, nil)
	defer check.Close()
	n, err := RepositoryFor[gadget](check).Count(ctx, specification.New[gadget]())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	renamed, err := RepositoryFor[gadget](check).GetByID(ctx, 404)
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, "Renamed", renamed.Name)
}

func TestUnitOfWork_DuplicateKeyFailsCommit(t *testing.T) {
	manager := newTestManager(t)
	seedGadgets(t, manager, 1)

	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()
	RepositoryFor[gadget](uow).Add(&gadget{BaseEntity: BaseEntity{ID: 1}, Name: "clash"})

	_, err := uow.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitFailed)
}

func TestRepositoryFor_SameInstance(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	const workers = 16
	repos := make([]*GenericRepository[gadget], workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repos[i] = RepositoryFor[gadget](uow)
		}(i)
	}
	wg.Wait()

	for _, repo := range repos[1:] {
		assert.Same(t, repos[0], repo)
	}

	other := NewUnitOfWork(manager, nil)
	defer other.Close()
	assert.NotSame(t, repos[0], RepositoryFor[gadget](other))
}

func TestRepositoryFor_UnregisteredPanics(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	err := recoverError(t, func() { RepositoryFor[unregistered](uow) })
	assert.ErrorIs(t, err, ErrUnregisteredEntity)
	assert.Contains(t, err.Error(), "unregistered")
}

func TestUnitOfWork_UseAfterClosePanics(t *testing.T) {
	manager := newTestManager(t)
	uow := NewUnitOfWork(manager, nil)
	repo := RepositoryFor[gadget](uow)

	require.NoError(t, uow.Close())
	require.NoError(t, uow.Close())

	ctx := context.Background()
	assert.ErrorIs(t, recoverError(t, func() { RepositoryFor[gadget](uow) }), ErrDisposed)
	assert.ErrorIs(t, recoverError(t, func() { _, _ = uow.Commit(ctx) }), ErrDisposed)
	assert.ErrorIs(t, recoverError(t, func() { _, _ = repo.GetByID(ctx, 1) }), ErrDisposed)
	assert.ErrorIs(t, recoverError(t, func() { _, _ = repo.List(ctx, specification.New[gadget]()) }), ErrDisposed)
	assert.ErrorIs(t, recoverError(t, func() { repo.Add(&gadget{}) }), ErrDisposed)
}

func TestNewUnitOfWork_RequiresManager(t *testing.T) {
	assert.Panics(t, func() { NewUnitOfWork(nil, nil) })

	uow := NewUnitOfWork(newTestManager(t), nil)
	defer uow.Close()
	assert.NotEmpty(t, uow.ID())
}
