package database

import (
	"context"
	"testing"

	"filevault/internal/models"

	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	user, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name:         "Alice",
		Email:        "alice@users.test",
		PasswordHash: "hash",
	})

	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "Alice", user.Name)
	require.Equal(t, "alice@users.test", user.Email)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotZero(t, user.CreatedAt)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	_, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "First", Email: "taken@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	_, err = testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Second", Email: "taken@users.test", PasswordHash: "hash",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateUserWithRole(t *testing.T) {
	user, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Root", Email: "root@users.test", PasswordHash: "hash", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, user.Role)
}

func TestGetUserByEmail(t *testing.T) {
	created, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Bob", Email: "bob@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	found, err := testStore.GetUserByEmail(context.Background(), "bob@users.test")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)

	found, err = testStore.GetUserByEmail(context.Background(), "nobody@users.test")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestGetUserByID(t *testing.T) {
	created, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Carol", Email: "carol@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	found, err := testStore.GetUserByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "Carol", found.Name)

	found, err = testStore.GetUserByID(context.Background(), 999999)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestUpdateUser(t *testing.T) {
	created, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Frank", Email: "frank@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	newName := "Francis"
	newRole := models.RoleAdmin
	updated, err := testStore.UpdateUser(context.Background(), created.ID, UpdateUserParams{
		Name: &newName, Role: &newRole,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, "Francis", updated.Name)
	require.Equal(t, models.RoleAdmin, updated.Role)
	// Omitted fields keep their value.
	require.Equal(t, "frank@users.test", updated.Email)

	updated, err = testStore.UpdateUser(context.Background(), 999999, UpdateUserParams{Name: &newName})
	require.NoError(t, err)
	require.Nil(t, updated)
}

func TestUpdateUserEmailTaken(t *testing.T) {
	_, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Grace", Email: "grace@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)
	victim, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Heidi", Email: "heidi@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	taken := "grace@users.test"
	_, err = testStore.UpdateUser(context.Background(), victim.ID, UpdateUserParams{Email: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestDeleteUser(t *testing.T) {
	user, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Ivan", Email: "ivan@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	folder := createTestNode(t, CreateNodeParams{
		ID: nid("del_user_folder"), OwnerID: user.ID, Name: "Theirs", IsFolder: true,
	})
	file := createTestFile(t, nid("del_user_file"), user.ID, &folder.ID, "theirs.txt")

	deleted, err := testStore.DeleteUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	found, err := testStore.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Nil(t, found)

	// Their nodes go with them.
	for _, id := range []string{folder.ID, file.ID} {
		node, err := testStore.GetNodeByID(context.Background(), id)
		require.NoError(t, err)
		require.Nil(t, node)
	}

	deleted, err = testStore.DeleteUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestCountUsersByIDs(t *testing.T) {
	a, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Dan", Email: "dan@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)
	b, err := testStore.CreateUser(context.Background(), CreateUserParams{
		Name: "Eve", Email: "eve@users.test", PasswordHash: "hash",
	})
	require.NoError(t, err)

	count, err := testStore.CountUsersByIDs(context.Background(), []int64{a.ID, b.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	count, err = testStore.CountUsersByIDs(context.Background(), []int64{a.ID, 999999})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = testStore.CountUsersByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, count)
}
