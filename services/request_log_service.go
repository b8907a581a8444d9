package services

import (
	"context"
	"fmt"

	"crowpro-api/models"
	"crowpro-api/policy"
	"crowpro-api/repositories"
)

type RequestLogService interface {
	Record(ctx context.Context, entry *models.RequestLog) error
	List(ctx context.Context, actor *models.User, params models.RequestLogListParams) ([]models.RequestLog, int64, error)
}

type requestLogService struct {
	logRepo repositories.RequestLogRepository
}

func NewRequestLogService(logRepo repositories.RequestLogRepository) RequestLogService {
	return &requestLogService{logRepo: logRepo}
}

func (s *requestLogService) Record(ctx context.Context, entry *models.RequestLog) error {
	return s.logRepo.Create(ctx, entry)
}

func (s *requestLogService) List(ctx context.Context, actor *models.User, params models.RequestLogListParams) ([]models.RequestLog, int64, error) {
	if err := policy.Authorize(actor, policy.ViewRequestLogs, nil); err != nil {
		return nil, 0, err
	}

	params.Page, params.Limit = normalizePaging(params.Page, params.Limit)

	entries, total, err := s.logRepo.GetList(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list request logs: %w", err)
	}
	return entries, total, nil
}
