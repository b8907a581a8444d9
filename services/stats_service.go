package services

import (
	"context"
	"fmt"
	"time"

	"crowpro-api/models"
	"crowpro-api/policy"
	"crowpro-api/repositories"
)

type StatsService interface {
	Get(ctx context.Context, actor *models.User) (*models.Statistics, error)
}

type statsService struct {
	statsRepo repositories.StatsRepository
	now       func() time.Time
}

func NewStatsService(statsRepo repositories.StatsRepository) StatsService {
	return &statsService{statsRepo: statsRepo, now: time.Now}
}

func (s *statsService) Get(ctx context.Context, actor *models.User) (*models.Statistics, error) {
	if err := policy.Authorize(actor, policy.ViewStatistics, nil); err != nil {
		return nil, err
	}

	stats, err := s.statsRepo.Collect(ctx, repositories.NewStatsWindow(s.now()))
	if err != nil {
		return nil, fmt.Errorf("collect statistics: %w", err)
	}
	return stats, nil
}
