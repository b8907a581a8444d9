package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"crowpro-api/config"
	"crowpro-api/models"
	"crowpro-api/repositories"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeBearer  = "Bearer"
)

type AccessClaims struct {
	Type         string          `json:"token_type"`
	Role         models.UserRole `json:"role"`
	TokenVersion int             `json:"token_version"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Type         string `json:"token_type"`
	FamilyID     string `json:"fid"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Issue(ctx context.Context, user *models.User) (*models.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (*models.User, *AccessClaims, error)
	Refresh(ctx context.Context, refreshToken string) (*models.User, *models.TokenPair, error)
	Revoke(ctx context.Context, accessToken, refreshToken string) error
	RevokeAll(ctx context.Context, userID uint) error
}

type tokenService struct {
	cfg      config.JWTConfig
	secret   []byte
	tokens   repositories.TokenRepository
	userRepo repositories.UserRepository
	now      func() time.Time
}

func NewTokenService(cfg config.JWTConfig, tokens repositories.TokenRepository, userRepo repositories.UserRepository) TokenService {
	return &tokenService{
		cfg:      cfg,
		secret:   []byte(cfg.Secret),
		tokens:   tokens,
		userRepo: userRepo,
		now:      time.Now,
	}
}

func (s *tokenService) Issue(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	familyID := uuid.NewString()
	refreshJTI := uuid.NewString()

	if err := s.tokens.CreateFamily(ctx, user.ID, familyID, refreshJTI, s.cfg.RefreshTokenTTL); err != nil {
		return nil, fmt.Errorf("create refresh family: %w", err)
	}

	return s.sign(user, familyID, refreshJTI)
}

func (s *tokenService) sign(user *models.User, familyID, refreshJTI string) (*models.TokenPair, error) {
	now := s.now()
	subject := strconv.FormatUint(uint64(user.ID), 10)
	accessExp := now.Add(s.cfg.AccessTokenTTL)
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Type:         tokenTypeAccess,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	})

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		Type:         tokenTypeRefresh,
		FamilyID:     familyID,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	})

	signedAccess, err := access.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	signedRefresh, err := refresh.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &models.TokenPair{
		Access:           signedAccess,
		Refresh:          signedRefresh,
		TokenType:        tokenTypeBearer,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *tokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return s.secret, nil
}

// parse validates signature, expiry and issuer. validate=false only checks the signature.
func (s *tokenService) parse(raw string, claims jwt.Claims, validate bool) error {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(raw, claims, s.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.ErrTokenExpired
		}
		return models.ErrTokenInvalid
	}
	if !token.Valid {
		return models.ErrTokenInvalid
	}
	return nil
}

func (s *tokenService) checkIssuer(claims jwt.RegisteredClaims) error {
	if s.cfg.Issuer != "" && !claims.VerifyIssuer(s.cfg.Issuer, true) {
		return models.ErrTokenInvalid
	}
	return nil
}

func (s *tokenService) loadUser(ctx context.Context, subject string, tokenVersion int) (*models.User, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("load token user: %w", err)
	}
	if !user.IsActive {
		return nil, models.ErrUserNotFound
	}
	if user.TokenVersion != tokenVersion {
		return nil, models.ErrTokenInvalid
	}

	return user, nil
}

// VerifyAccess resolves an access token to its live, active user.
func (s *tokenService) VerifyAccess(ctx context.Context, raw string) (*models.User, *AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(raw, claims, true); err != nil {
		return nil, nil, err
	}
	if claims.Type != tokenTypeAccess || claims.ID == "" {
		return nil, nil, models.ErrTokenInvalid
	}
	if err := s.checkIssuer(claims.RegisteredClaims); err != nil {
		return nil, nil, err
	}

	blacklisted, err := s.tokens.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check blacklist: %w", err)
	}
	if blacklisted {
		return nil, nil, models.ErrTokenInvalid
	}

	user, err := s.loadUser(ctx, claims.Subject, claims.TokenVersion)
	if err != nil {
		return nil, nil, err
	}

	return user, claims, nil
}

// Refresh rotates a refresh token. The presented token stops working in the same
// step that makes the new one valid.
func (s *tokenService) Refresh(ctx context.Context, raw string) (*models.User, *models.TokenPair, error) {
	if raw == "" {
		return nil, nil, models.ErrTokenMissing
	}

	claims := &RefreshClaims{}
	if err := s.parse(raw, claims, true); err != nil {
		return nil, nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.ID == "" || claims.FamilyID == "" || claims.ExpiresAt == nil {
		return nil, nil, models.ErrTokenInvalid
	}
	if err := s.checkIssuer(claims.RegisteredClaims); err != nil {
		return nil, nil, err
	}

	user, err := s.loadUser(ctx, claims.Subject, claims.TokenVersion)
	if err != nil {
		return nil, nil, err
	}

	nextJTI := uuid.NewString()
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	err = s.tokens.Rotate(ctx, user.ID, claims.FamilyID, claims.ID, nextJTI, s.cfg.RefreshTokenTTL, remaining)
	switch {
	case errors.Is(err, repositories.ErrFamilyReplay):
		return nil, nil, models.ErrTokenReplay
	case errors.Is(err, repositories.ErrFamilyNotFound):
		return nil, nil, models.ErrTokenInvalid
	case err != nil:
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	pair, err := s.sign(user, claims.FamilyID, nextJTI)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// Revoke blacklists the access token for the rest of its lifetime and ends the
// refresh family. Either token may be empty.
func (s *tokenService) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		claims := &AccessClaims{}
		if err := s.parse(accessToken, claims, false); err == nil && claims.ID != "" && claims.ExpiresAt != nil {
			if err := s.tokens.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now())); err != nil {
				return fmt.Errorf("blacklist access token: %w", err)
			}
		}
	}

	if refreshToken != "" {
		claims := &RefreshClaims{}
		if err := s.parse(refreshToken, claims, false); err == nil && claims.FamilyID != "" {
			id, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil {
				return models.ErrTokenInvalid
			}
			if err := s.tokens.RevokeFamily(ctx, uint(id), claims.FamilyID); err != nil {
				return fmt.Errorf("revoke refresh family: %w", err)
			}
		}
	}

	return nil
}

// RevokeAll invalidates every token issued to the user so far.
func (s *tokenService) RevokeAll(ctx context.Context, userID uint) error {
	if err := s.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh families: %w", err)
	}
	return nil
}
