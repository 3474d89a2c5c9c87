package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollbackOrder(t *testing.T) {
	ctx := context.Background()
	var trail []string
	value := "a"

	tx := Begin("test")
	tx.Apply(func() { value = "b" }, func() { trail = append(trail, "revert-1"); value = "a" })
	tx.Apply(func() { value = "c" }, func() { trail = append(trail, "revert-2"); value = "b" })
	assert.Equal(t, "c", value)

	require.NoError(t, tx.Do(ctx, Step{
		Name:       "remote",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { trail = append(trail, "compensate"); return nil },
	}))
	err := tx.Do(ctx, Step{
		Name:    "second",
		Execute: func(context.Context) error { return errors.New("boom") },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")

	errs := tx.Rollback(ctx)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"compensate", "revert-2", "revert-1"}, trail)
	assert.Equal(t, "a", value)

	// second rollback does nothing
	assert.Nil(t, tx.Rollback(ctx))
	assert.Len(t, trail, 3)
}

func TestRollbackCollectsCompensationErrors(t *testing.T) {
	ctx := context.Background()
	reverted := false

	tx := Begin("test")
	tx.Apply(func() {}, func() { reverted = true })
	require.NoError(t, tx.Do(ctx, Step{
		Name:       "write",
		Execute:    func(context.Context) error { return nil },
		Compensate: func(context.Context) error { return errors.New("offline") },
	}))

	errs := tx.Rollback(ctx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "compensate write")
	assert.True(t, reverted, "local revert must run even when compensation fails")
}

func TestCommitDropsUndo(t *testing.T) {
	ctx := context.Background()
	value := 1

	tx := Begin("test")
	tx.Apply(func() { value = 2 }, func() { value = 1 })
	tx.Commit()

	assert.Nil(t, tx.Rollback(ctx))
	assert.Equal(t, 2, value)
}
