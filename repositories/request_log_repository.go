package repositories

import (
	"context"

	"crowpro-api/models"

	"gorm.io/gorm"
)

// RequestLogRepository is append-only: rows are never updated or deleted.
type RequestLogRepository interface {
	Create(ctx context.Context, entry *models.RequestLog) error
	GetList(ctx context.Context, params models.RequestLogListParams) ([]models.RequestLog, int64, error)
}

type requestLogRepository struct {
	db *gorm.DB
}

func NewRequestLogRepository(db *gorm.DB) RequestLogRepository {
	return &requestLogRepository{db: db}
}

func (r *requestLogRepository) Create(ctx context.Context, entry *models.RequestLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *requestLogRepository) GetList(ctx context.Context, params models.RequestLogListParams) ([]models.RequestLog, int64, error) {
	var entries []models.RequestLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RequestLog{})

	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.Method != "" {
		query = query.Where("method = ?", params.Method)
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.Limit
	err := query.Order("created_at desc").Order("id desc").Offset(offset).Limit(params.Limit).Find(&entries).Error

	return entries, total, err
}
