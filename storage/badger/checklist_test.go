package badger

import (
	"context"
	"testing"

	"github.com/MasterVVK/neuro-expert/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChecklist(name string, parameters ...string) *core.Checklist {
	checklist := &core.Checklist{Name: name}
	for _, param := range parameters {
		checklist.Parameters = append(checklist.Parameters, core.Parameter{
			Name:        param,
			SearchQuery: param,
			Config:      core.DefaultSearchConfig(),
		})
	}
	return checklist
}

func TestAddChecklistAssignsIdentity(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()

	added, err := store.AddChecklist(ctx, testChecklist("Учредительные документы",
		"организационно-правовая форма", "уставный капитал"))
	require.NoError(t, err)

	assert.NotZero(t, added.Id)
	assert.False(t, added.InsertedAt.IsZero())
	require.Len(t, added.Parameters, 2)
	assert.NotZero(t, added.Parameters[0].Id)
	assert.NotZero(t, added.Parameters[1].Id)
	assert.NotEqual(t, added.Parameters[0].Id, added.Parameters[1].Id)
}

func TestGetChecklist(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()

	added, err := store.AddChecklist(ctx, testChecklist("Финансы", "выручка"))
	require.NoError(t, err)

	got, err := store.GetChecklist(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, "Финансы", got.Name)
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, "выручка", got.Parameters[0].Name)

	_, err = store.GetChecklist(ctx, core.ID(999))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestChecklists(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()

	_, err := store.AddChecklist(ctx, testChecklist("Первый", "a"))
	require.NoError(t, err)
	_, err = store.AddChecklist(ctx, testChecklist("Второй", "b"))
	require.NoError(t, err)

	all, err := store.Checklists(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteChecklist(t *testing.T) {
	_, store := newTestStores(t)
	ctx := context.Background()

	added, err := store.AddChecklist(ctx, testChecklist("Временный", "a"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteChecklist(ctx, added.Id))

	_, err = store.GetChecklist(ctx, added.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = store.DeleteChecklist(ctx, added.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
