package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"crowpro-api/config"
	"crowpro-api/models"
	"crowpro-api/repositories"
	"crowpro-api/storage"
	"crowpro-api/testutil"
)

type fixture struct {
	db     *gorm.DB
	redis  *miniredis.Miniredis
	store  *storage.LocalStore
	users  repositories.UserRepository
	pubs   repositories.PublicationRepository
	tokens *tokenService
	auth   *authService
	user   *userService
	pub    *publicationService
	stats  *statsService
}

var testJWT = config.JWTConfig{
	Secret:          "test-secret-test-secret-test-secret",
	Issuer:          "crowpro-test",
	AccessTokenTTL:  15 * time.Minute,
	RefreshTokenTTL: 24 * time.Hour,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	client, mr := testutil.NewRedis(t)
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repositories.NewUserRepository(db)
	pubs := repositories.NewPublicationRepository(db)

	tokens := NewTokenService(testJWT, repositories.NewTokenRepository(client), users).(*tokenService)
	auth := NewAuthService(users, tokens, log).(*authService)
	auth.cost = bcrypt.MinCost

	return &fixture{
		db:     db,
		redis:  mr,
		store:  store,
		users:  users,
		pubs:   pubs,
		tokens: tokens,
		auth:   auth,
		user:   NewUserService(users, tokens, store, 1<<20, log).(*userService),
		pub:    NewPublicationService(pubs, users, store, 1<<20, log).(*publicationService),
		stats:  NewStatsService(repositories.NewStatsRepository(db)).(*statsService),
	}
}

func (f *fixture) createUser(t *testing.T, email string, role models.UserRole) *models.User {
	t.Helper()
	return testutil.CreateUser(t, f.db, email, role)
}

// refresh reloads a user so token_version and flags match storage.
func (f *fixture) refresh(t *testing.T, user *models.User) *models.User {
	t.Helper()
	fresh, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	return fresh
}
