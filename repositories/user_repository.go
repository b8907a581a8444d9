package repositories

import (
	"context"
	"time"

	"crowpro-api/models"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetActiveByIDs(ctx context.Context, ids []uint, roles ...models.UserRole) ([]models.User, error)
	List(ctx context.Context, params models.UserListParams) ([]models.User, int64, error)
	RecordLogin(ctx context.Context, id uint, ip string, at time.Time) (bool, error)
	UpdatePassword(ctx context.Context, id uint, hash string) (bool, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateProfileImage(ctx context.Context, id uint, key string) error
	UpdateRole(ctx context.Context, id uint, role models.UserRole) error
	Deactivate(ctx context.Context, id uint) (bool, error)
	IncrementTokenVersion(ctx context.Context, id uint) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetActiveByIDs returns the active users among ids, optionally restricted to roles.
func (r *userRepository) GetActiveByIDs(ctx context.Context, ids []uint, roles ...models.UserRole) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}

	query := r.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true)
	if len(roles) > 0 {
		query = query.Where("role IN ?", roles)
	}

	err := query.Order("id asc").Find(&users).Error
	return users, err
}

// List returns active users, newest first.
func (r *userRepository) List(ctx context.Context, params models.UserListParams) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	query := r.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true)

	if params.Role != "" {
		query = query.Where("role = ?", params.Role)
	}
	if len(params.Roles) > 0 {
		query = query.Where("role IN ?", params.Roles)
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.Limit
	err := query.Order("created_at desc").Order("id desc").Offset(offset).Limit(params.Limit).Find(&users).Error

	return users, total, err
}

// RecordLogin shifts current_login_ip into last_login_ip and stamps the new
// login. Only active users are touched; false means the account is gone or inactive.
func (r *userRepository) RecordLogin(ctx context.Context, id uint, ip string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"last_login_ip":    gorm.Expr("current_login_ip"),
			"current_login_ip": ip,
			"last_login":       at,
		})
	return res.RowsAffected > 0, res.Error
}

// UpdatePassword stores a new hash for an active user.
func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("password", hash)
	return res.RowsAffected > 0, res.Error
}

// UpdateProfile writes the self-editable columns only.
func (r *userRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Model(user).
		Select("email", "first_name", "last_name", "display_name").
		Updates(user).Error
}

func (r *userRepository) UpdateProfileImage(ctx context.Context, id uint, key string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("profile_image", key).Error
}

// UpdateRole sets the role and the staff flags derived from it.
func (r *userRepository) UpdateRole(ctx context.Context, id uint, role models.UserRole) error {
	var derived models.User
	derived.SetRole(role)
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"role":         derived.Role,
			"is_staff":     derived.IsStaff,
			"is_superuser": derived.IsSuperuser,
		}).Error
}

// Deactivate clears is_active and bumps token_version so outstanding tokens stop verifying.
// It reports false when the user was missing or already inactive.
func (r *userRepository) Deactivate(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"token_version": gorm.Expr("token_version + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *userRepository) IncrementTokenVersion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
}
