package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crowpro-api/models"
	"crowpro-api/testutil"
)

func TestUserRepositoryCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)

	user := &models.User{Email: "reader@x.com", Password: "hash", FirstName: "Rita"}
	user.SetRole(models.RoleReader)
	require.NoError(t, repo.Create(ctx, user))
	assert.True(t, user.IsActive, "active by default")

	got, err := repo.GetByEmail(ctx, "reader@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.Create(ctx, &models.User{Email: "reader@x.com", Password: "hash"})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestUserRepositoryGetActiveByIDsFiltersRoles(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)

	author := testutil.CreateUser(t, db, "author@x.com", models.RoleAuthor)
	editor := testutil.CreateUser(t, db, "editor@x.com", models.RoleEditor)
	reader := testutil.CreateUser(t, db, "reader@x.com", models.RoleReader)
	retired := testutil.CreateUser(t, db, "retired@x.com", models.RoleAuthor)
	_, err := repo.Deactivate(ctx, retired.ID)
	require.NoError(t, err)

	users, err := repo.GetActiveByIDs(ctx,
		[]uint{author.ID, editor.ID, reader.ID, retired.ID},
		models.RoleAuthor, models.RoleEditor)
	require.NoError(t, err)

	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []uint{author.ID, editor.ID}, ids)

	users, err = repo.GetActiveByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserRepositoryDeactivateBumpsTokenVersion(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	user := testutil.CreateUser(t, db, "author@x.com", models.RoleAuthor)

	changed, err := repo.Deactivate(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Deactivate(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, user.TokenVersion+1, got.TokenVersion)

	require.NoError(t, repo.IncrementTokenVersion(ctx, user.ID))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.TokenVersion+2, got.TokenVersion)
}

func TestUserRepositoryListActiveByRole(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)

	testutil.CreateUser(t, db, "a1@x.com", models.RoleAuthor)
	testutil.CreateUser(t, db, "a2@x.com", models.RoleAuthor)
	testutil.CreateUser(t, db, "e1@x.com", models.RoleEditor)
	testutil.CreateUser(t, db, "r1@x.com", models.RoleReader)

	users, total, err := repo.List(ctx, models.UserListParams{Role: models.RoleAuthor, Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, users, 1)

	_, total, err = repo.List(ctx, models.UserListParams{
		Roles: []models.UserRole{models.RoleAuthor, models.RoleEditor},
		Page:  1,
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestUserRepositoryRecordLoginShiftsAddresses(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	user := testutil.CreateUser(t, db, "author@x.com", models.RoleAuthor)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	ok, err := repo.RecordLogin(ctx, user.ID, "10.0.0.1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RecordLogin(ctx, user.ID, "10.0.0.2", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.CurrentLoginIP)
	assert.Equal(t, "10.0.0.1", got.LastLoginIP)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(at.Add(time.Hour)))

	_, err = repo.Deactivate(ctx, user.ID)
	require.NoError(t, err)
	ok, err = repo.RecordLogin(ctx, user.ID, "10.0.0.3", at)
	require.NoError(t, err)
	assert.False(t, ok, "inactive users cannot log in")
}

func TestUserRepositoryTargetedUpdatesKeepOtherColumns(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	user := testutil.CreateUser(t, db, "reader@x.com", models.RoleReader)

	stale, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateRole(ctx, user.ID, models.RoleAdmin))
	require.NoError(t, repo.IncrementTokenVersion(ctx, user.ID))

	stale.DisplayName = "Rita"
	require.NoError(t, repo.UpdateProfile(ctx, stale))
	require.NoError(t, repo.UpdateProfileImage(ctx, stale.ID, "profiles/rita.png"))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rita", got.DisplayName)
	assert.Equal(t, "profiles/rita.png", got.ProfileImage)
	assert.Equal(t, models.RoleAdmin, got.Role, "profile edits leave the role alone")
	assert.True(t, got.IsStaff)
	assert.True(t, got.IsSuperuser)
	assert.Equal(t, 1, got.TokenVersion)

	require.NoError(t, repo.UpdateRole(ctx, user.ID, models.RoleAuthor))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsStaff)
	assert.False(t, got.IsSuperuser)
}

func TestUserRepositoryUpdatePasswordSkipsInactive(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	user := testutil.CreateUser(t, db, "author@x.com", models.RoleAuthor)

	ok, err := repo.UpdatePassword(ctx, user.ID, "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Deactivate(ctx, user.ID)
	require.NoError(t, err)
	ok, err = repo.UpdatePassword(ctx, user.ID, "newer-hash")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)
	assert.False(t, got.IsActive)
}
