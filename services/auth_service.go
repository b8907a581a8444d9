package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"crowpro-api/models"
	"crowpro-api/repositories"
)

type AuthService interface {
	Register(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest, remoteIP string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	ChangePassword(ctx context.Context, user *models.User, req models.PasswordResetRequest) error
	CurrentUser(ctx context.Context, id uint) (*models.User, error)
}

type authService struct {
	userRepo repositories.UserRepository
	tokens   TokenService
	log      *slog.Logger
	cost     int
	now      func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, tokens TokenService, log *slog.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		log:      log,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a Reader account. Other roles are granted later by an admin.
func (s *authService) Register(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	if req.Password != req.PasswordConfirm {
		return nil, models.ErrPasswordMismatch
	}

	email := normalizeEmail(req.Email)

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, models.ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:     email,
		Password:  string(hashedPassword),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  true,
	}
	user.SetRole(models.RoleReader)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest, remoteIP string) (*models.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, models.ErrInvalidCredentials
	}

	now := s.now().UTC()
	recorded, err := s.userRepo.RecordLogin(ctx, user.ID, remoteIP, now)
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	if !recorded {
		return nil, models.ErrInvalidCredentials
	}
	user.RecordLogin(remoteIP, now)

	tokens, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return &models.AuthResponse{Tokens: *tokens, User: *user}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	user, tokens, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrTokenReplay) {
			s.log.WarnContext(ctx, "refresh token replay, family revoked")
		}
		return nil, err
	}
	return &models.AuthResponse{Tokens: *tokens, User: *user}, nil
}

func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return s.tokens.Revoke(ctx, accessToken, refreshToken)
}

// ChangePassword replaces the caller's password and signs out every session.
func (s *authService) ChangePassword(ctx context.Context, user *models.User, req models.PasswordResetRequest) error {
	if normalizeEmail(req.Email) != user.Email {
		return models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return models.ErrInvalidCredentials
	}

	if req.NewPassword == req.Password {
		return models.ErrPasswordReused
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	updated, err := s.userRepo.UpdatePassword(ctx, user.ID, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if !updated {
		return models.ErrUserNotFound
	}
	user.Password = string(hashedPassword)

	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *authService) CurrentUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
