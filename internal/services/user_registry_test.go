package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickings/internal/apperrors"
	"pickings/internal/models"
	"pickings/internal/store"
)

func TestUserRegistry_EmptyTableBootstrapsAdmin(t *testing.T) {
	f := newFixture(t)

	users, err := f.users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.AdminUsername, users[0].Username)
	assert.Equal(t, models.RoleResponsable, users[0].Role)
	assert.Equal(t, 0, f.rowCount(t, store.TableUsers), "bootstrap user is not persisted")

	user, err := f.users.Login(context.Background(), "Admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleResponsable, user.Role)
}

func TestUserRegistry_AddAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.List(ctx)
	require.NoError(t, err)

	user, err := f.users.Add(ctx, " Juan ", models.RoleCapturista)
	require.NoError(t, err)
	assert.Equal(t, "Juan", user.Username)

	users, err := f.users.List(ctx)
	require.NoError(t, err, "add invalidates the cached list")
	require.Len(t, users, 1)
	assert.Equal(t, "Juan", users[0].Username)
	assert.True(t, t0.Equal(users[0].CreatedAt))

	_, err = f.users.Add(ctx, "Juan", models.RoleResponsable)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Equal(t, "El usuario Juan ya existe.", apperrors.Message(err))
	assert.Equal(t, 1, f.rowCount(t, store.TableUsers))
}

func TestUserRegistry_AddValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Add(ctx, "", models.RoleCapturista)
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)
	_, err = f.users.Add(ctx, "Pedro", "ADMIN")
	assert.ErrorIs(t, err, apperrors.ErrInvalidFormat)
	assert.Equal(t, 0, f.rowCount(t, store.TableUsers))
}

func TestUserRegistry_AdminIsProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.users.Delete(ctx, "Admin")
	assert.ErrorIs(t, err, apperrors.ErrProtected)

	_, err = f.users.Add(ctx, "Admin", models.RoleResponsable)
	require.NoError(t, err)
	err = f.users.Delete(ctx, "Admin")
	assert.ErrorIs(t, err, apperrors.ErrProtected)
	assert.Equal(t, 1, f.rowCount(t, store.TableUsers))
}

func TestUserRegistry_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Juan", "Maria"} {
		_, err := f.users.Add(ctx, name, models.RoleCapturista)
		require.NoError(t, err)
	}
	_, err := f.users.List(ctx)
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, "Juan"))
	users, err := f.users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Maria", users[0].Username)

	err = f.users.Delete(ctx, "Juan")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.users.Login(ctx, "Juan")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRegistry_ListFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	f := newFixtureOn(t, mem, &brokenStore{MemoryStore: mem, table: store.TableUsers, err: errStoreDown})

	_, err := f.users.List(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, apperrors.IsExpected(err))
}
