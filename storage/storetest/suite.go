// Package storetest holds the behaviour every task store backend must share.
// Backend tests call Run with a factory that returns a fresh, empty store.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	domain "github.com/example/task-tracker-api/domain/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) domain.Store

func strPtr(s string) *string { return &s }

// NewTask builds a task with a fresh id for owner.
func NewTask(owner, name, createdAt string) *domain.Task {
	return &domain.Task{
		ID:          uuid.NewString(),
		UserID:      owner,
		Name:        name,
		Description: "",
		Status:      domain.StatusPending,
		CreatedAt:   createdAt,
	}
}

// Run executes the contract suite against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "write report", "2024-01-01T10:00:00.000000Z")
		task.Description = "quarterly"

		require.NoError(t, s.Insert(ctx, task))

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, *task, *got)
	})

	t.Run("InsertDuplicateConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "first", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Insert(ctx, task))

		dup := task.Clone()
		dup.Name = "second"
		err := s.Insert(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("OddIdsAreNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, NewTask("user-a", "A", "2024-01-01T10:00:00.000000Z")))

		for _, id := range []string{"a*b", "has space", "x>", "a..b", ".lead", "trail.", "task.>"} {
			_, err := s.Get(ctx, id)
			assert.ErrorIs(t, err, domain.ErrNotFound, "Get(%q)", id)
			_, err = s.Update(ctx, id, "user-a", domain.Patch{Name: strPtr("x")})
			assert.ErrorIs(t, err, domain.ErrNotFound, "Update(%q)", id)
			assert.ErrorIs(t, s.Delete(ctx, id, "user-a"), domain.ErrNotFound, "Delete(%q)", id)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "draft", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Put(ctx, task))

		replaced := task.Clone()
		replaced.Name = "final"
		replaced.Status = domain.StatusCompleted
		require.NoError(t, s.Put(ctx, replaced))

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, *replaced, *got)

		owned, err := s.ScanByOwner(ctx, "user-a")
		require.NoError(t, err)
		assert.Len(t, owned, 1)
	})

	t.Run("UpdateAppliesOnlyPresentFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "A", "2024-01-01T10:00:00.000000Z")
		task.Description = "B"
		require.NoError(t, s.Insert(ctx, task))

		got, err := s.Update(ctx, task.ID, "user-a", domain.Patch{Status: strPtr("Done")})
		require.NoError(t, err)

		want := *task
		want.Status = "Done"
		assert.Equal(t, want, *got)

		stored, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, want, *stored)
	})

	t.Run("UpdateCanClearDescription", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "A", "2024-01-01T10:00:00.000000Z")
		task.Description = "to be cleared"
		require.NoError(t, s.Insert(ctx, task))

		got, err := s.Update(ctx, task.ID, "user-a", domain.Patch{Description: strPtr("")})
		require.NoError(t, err)
		assert.Equal(t, "", got.Description)
		assert.Equal(t, "A", got.Name)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), uuid.NewString(), "user-a", domain.Patch{Name: strPtr("x")})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpdateWrongOwnerConflictsWithoutMutation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "mine", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Insert(ctx, task))

		_, err := s.Update(ctx, task.ID, "user-b", domain.Patch{Name: strPtr("stolen")})
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "mine", got.Name)
	})

	t.Run("DeleteThenGone", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "temp", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Insert(ctx, task))

		require.NoError(t, s.Delete(ctx, task.ID, "user-a"))

		_, err := s.Get(ctx, task.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Update(ctx, task.ID, "user-a", domain.Patch{Name: strPtr("x")})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, task.ID, "user-a"), domain.ErrNotFound)

		owned, err := s.ScanByOwner(ctx, "user-a")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("DeleteWrongOwnerConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "keep", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Insert(ctx, task))

		assert.ErrorIs(t, s.Delete(ctx, task.ID, "user-b"), domain.ErrConflict)

		_, err := s.Get(ctx, task.ID)
		assert.NoError(t, err)
	})

	t.Run("ScanByOwnerIsolatesOwners", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var aIDs []string
		for i := 0; i < 3; i++ {
			task := NewTask("user-a", fmt.Sprintf("a-%d", i), fmt.Sprintf("2024-01-01T10:00:0%d.000000Z", i))
			require.NoError(t, s.Insert(ctx, task))
			aIDs = append(aIDs, task.ID)
		}
		require.NoError(t, s.Insert(ctx, NewTask("user-b", "b-0", "2024-01-01T10:00:00.000000Z")))

		owned, err := s.ScanByOwner(ctx, "user-a")
		require.NoError(t, err)

		gotIDs := make([]string, 0, len(owned))
		for _, task := range owned {
			assert.Equal(t, "user-a", task.UserID)
			gotIDs = append(gotIDs, task.ID)
		}
		sort.Strings(gotIDs)
		sort.Strings(aIDs)
		assert.Equal(t, aIDs, gotIDs)

		none, err := s.ScanByOwner(ctx, "user-c")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ConcurrentUpdatesKeepEveryField", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		task := NewTask("user-a", "A", "2024-01-01T10:00:00.000000Z")
		require.NoError(t, s.Insert(ctx, task))

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, task.ID, "user-a", domain.Patch{Name: strPtr("renamed")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, task.ID, "user-a", domain.Patch{Status: strPtr("Done")})
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, "Done", got.Status)
	})
}
