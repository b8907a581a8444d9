package models

import "time"

type SignupRequest struct {
	FirstName       string `json:"first_name" binding:"required,max=255"`
	LastName        string `json:"last_name" binding:"required,max=255"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type PasswordResetRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type AuthResponse struct {
	Tokens TokenPair `json:"tokens"`
	User   User      `json:"user"`
}

type UpdateProfileRequest struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	FirstName   *string `json:"first_name" binding:"omitempty,max=255"`
	LastName    *string `json:"last_name" binding:"omitempty,max=255"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=255"`
}

type ChangeRoleRequest struct {
	Role UserRole `json:"role" binding:"required"`
}

type CreatePublicationRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=128"`
	Slug    string `json:"slug" binding:"omitempty,max=128"`
	Content string `json:"content" binding:"required"`
}

// UpdatePublicationRequest is a partial update; nil fields are left alone.
// Published toggles publish/unpublish through the state machine.
type UpdatePublicationRequest struct {
	Title     *string `json:"title" binding:"omitempty,min=1,max=128"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
}

type UpdateAuthorsRequest struct {
	AuthorIDs []uint `json:"author_ids" binding:"required"`
}

type PublishRequest struct {
	PublishAt *time.Time `json:"publish_at"`
}

// PublicationListParams filters listings. Status is one of published, scheduled,
// in_progress, in_review, approved, rejected, published_today, published_month
// or published_year.
type PublicationListParams struct {
	Type       PublicationType `form:"-"`
	Status     string          `form:"status"`
	CreatedBy  uint            `form:"created_by"`
	ApprovedBy uint            `form:"approved_by"`
	AuthorID   uint            `form:"-"`
	PublicOnly bool            `form:"-"`
	// VisibleTo restricts results to publicly visible rows plus those the user authored.
	VisibleTo uint   `form:"-"`
	Page      int    `form:"page,default=1"`
	Limit     int    `form:"limit,default=10"`
	SortBy    string `form:"sort_by,default=created_at"`
	SortOrder string `form:"sort_order,default=desc"`
}

type UserListParams struct {
	Role  UserRole   `form:"role"`
	Roles []UserRole `form:"-"`
	Page  int        `form:"page,default=1"`
	Limit int        `form:"limit,default=20"`
}

type RequestLogListParams struct {
	UserID uint   `form:"user_id"`
	Method string `form:"method"`
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=50"`
}

const (
	StatusPublished  = "published"
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusInReview   = "in_review"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"

	StatusPublishedToday = "published_today"
	StatusPublishedMonth = "published_month"
	StatusPublishedYear  = "published_year"
)
