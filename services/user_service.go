package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"crowpro-api/models"
	"crowpro-api/policy"
	"crowpro-api/repositories"
	"crowpro-api/storage"
)

type UserService interface {
	List(ctx context.Context, actor *models.User, params models.UserListParams) ([]models.User, int64, error)
	Get(ctx context.Context, actor *models.User, id uint) (*models.User, error)
	UpdateProfile(ctx context.Context, actor *models.User, req models.UpdateProfileRequest) (*models.User, error)
	UpdateProfileImage(ctx context.Context, actor *models.User, upload ImageUpload) (*models.User, error)
	Deactivate(ctx context.Context, actor *models.User, id uint) error
	ChangeRole(ctx context.Context, actor *models.User, id uint, role models.UserRole) (*models.User, error)
}

type userService struct {
	userRepo repositories.UserRepository
	tokens   TokenService
	store    storage.BlobStore
	log      *slog.Logger
	maxImage int64
}

func NewUserService(userRepo repositories.UserRepository, tokens TokenService, store storage.BlobStore, maxImage int64, log *slog.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		tokens:   tokens,
		store:    store,
		log:      log,
		maxImage: maxImage,
	}
}

func (s *userService) hydrate(ctx context.Context, user *models.User) {
	if user.ProfileImage == "" {
		return
	}
	url, err := s.store.URL(ctx, user.ProfileImage)
	if err != nil {
		s.log.WarnContext(ctx, "resolve profile image", "user_id", user.ID, "error", err)
		return
	}
	user.ProfileURL = url
}

func (s *userService) load(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// List returns active users. Only staff may list accounts.
func (s *userService) List(ctx context.Context, actor *models.User, params models.UserListParams) ([]models.User, int64, error) {
	if err := policy.Authorize(actor, policy.ManageUsers, nil); err != nil {
		return nil, 0, err
	}
	if params.Role != "" && !params.Role.Valid() {
		return nil, 0, models.ErrInvalidRole
	}

	params.Page, params.Limit = normalizePaging(params.Page, params.Limit)

	users, total, err := s.userRepo.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		s.hydrate(ctx, &users[i])
	}
	return users, total, nil
}

// Get returns a user to themselves or to staff. Inactive accounts are only visible to staff.
func (s *userService) Get(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if actor == nil || (actor.ID != id && !policy.Allowed(actor, policy.ManageUsers, nil)) {
		return nil, models.ErrPermissionDenied
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.hydrate(ctx, user)
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, actor *models.User, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email != user.Email {
			if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
				return nil, models.ErrEmailExists
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("lookup email: %w", err)
			}
			user.Email = email
		}
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrEmailExists
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.hydrate(ctx, user)
	return user, nil
}

func (s *userService) UpdateProfileImage(ctx context.Context, actor *models.User, upload ImageUpload) (*models.User, error) {
	key, contentType, err := imageKey("profiles", upload, s.maxImage)
	if err != nil {
		return nil, err
	}

	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, key, upload.Reader, upload.Size, contentType); err != nil {
		return nil, fmt.Errorf("store profile image: %w", err)
	}

	previous := user.ProfileImage
	user.ProfileImage = key
	if err := s.userRepo.UpdateProfileImage(ctx, user.ID, key); err != nil {
		return nil, fmt.Errorf("update profile image: %w", err)
	}

	if previous != "" {
		if err := s.store.Delete(ctx, previous); err != nil {
			s.log.WarnContext(ctx, "delete previous profile image", "key", previous, "error", err)
		}
	}

	s.hydrate(ctx, user)
	return user, nil
}

// Deactivate disables an account and revokes its sessions. Users may deactivate
// themselves; staff may deactivate anyone.
func (s *userService) Deactivate(ctx context.Context, actor *models.User, id uint) error {
	if actor == nil || (actor.ID != id && !policy.Allowed(actor, policy.ManageUsers, nil)) {
		return models.ErrPermissionDenied
	}

	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	if _, err := s.userRepo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	if err := s.tokens.RevokeAll(ctx, id); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "user deactivated", "user_id", id, "by", actor.ID)
	return nil
}

// ChangeRole is the only path that alters a role once the account exists.
func (s *userService) ChangeRole(ctx context.Context, actor *models.User, id uint, role models.UserRole) (*models.User, error) {
	if err := policy.Authorize(actor, policy.ChangeUserRole, nil); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, models.ErrInvalidRole
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Role == role {
		s.hydrate(ctx, user)
		return user, nil
	}

	if err := s.userRepo.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}

	// Tokens carry the role, so outstanding ones must be reissued.
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return nil, err
	}

	if user, err = s.load(ctx, id); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "user role changed", "user_id", user.ID, "role", role, "by", actor.ID)
	s.hydrate(ctx, user)
	return user, nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
