package repositories

import (
	"context"
	"database/sql"
	"time"

	"crowpro-api/models"

	"gorm.io/gorm"
)

// StatsWindow carries the instants the aggregate compares against.
type StatsWindow struct {
	Now        time.Time
	StartDay   time.Time
	StartMonth time.Time
	StartYear  time.Time
}

// NewStatsWindow anchors the day, month and year buckets in UTC.
func NewStatsWindow(now time.Time) StatsWindow {
	now = now.UTC()
	year, month, day := now.Date()
	return StatsWindow{
		Now:        now,
		StartDay:   time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		StartMonth: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		StartYear:  time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

type StatsRepository interface {
	Collect(ctx context.Context, window StatsWindow) (*models.Statistics, error)
}

type statsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

const statsQuery = `
SELECT
	(SELECT COUNT(*) FROM publications WHERE publication_type = @article) AS total_articles,
	(SELECT COUNT(*) FROM publications WHERE publication_type = @editorial) AS total_editorials,
	(SELECT COUNT(*) FROM publications WHERE published = @yes AND hide = @no AND published_on <= @now) AS total_published,
	(SELECT COUNT(*) FROM publications WHERE published = @yes AND hide = @no AND published_on > @now) AS total_scheduled,
	(SELECT COUNT(*) FROM publications WHERE approved_by_id IS NULL AND hide = @no) AS asking_approval,
	(SELECT COUNT(*) FROM publications WHERE approved_by_id IS NOT NULL AND hide = @no) AS total_approved,
	(SELECT COUNT(*) FROM publications WHERE approved_by_id IS NULL) AS total_unapproved,
	(SELECT COUNT(*) FROM publications WHERE hide = @yes) AS total_hidden,
	(SELECT COUNT(*) FROM publications WHERE published = @yes AND hide = @no AND published_on >= @start_day AND published_on <= @now) AS today_published,
	(SELECT COUNT(*) FROM publications WHERE published = @yes AND hide = @no AND published_on >= @start_month AND published_on <= @now) AS this_month_published,
	(SELECT COUNT(*) FROM publications WHERE published = @yes AND hide = @no AND published_on >= @start_year AND published_on <= @now) AS this_year_published,
	(SELECT COUNT(*) FROM users WHERE is_active = @yes AND role IN @author_roles) AS active_authors,
	(SELECT COUNT(*) FROM users WHERE is_active = @yes AND role = @reader) AS active_readers
`

type statsRow struct {
	models.ArticleStats
	ActiveAuthors int64
	ActiveReaders int64
}

// Collect reads every figure inside one read-only snapshot. The counts come from
// a single statement so they cannot straddle a concurrent write.
func (r *statsRepository) Collect(ctx context.Context, window StatsWindow) (*models.Statistics, error) {
	stats := &models.Statistics{GeneratedAt: window.Now}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row statsRow
		err := tx.Raw(statsQuery, map[string]interface{}{
			"article":      models.TypeArticle,
			"editorial":    models.TypeEditorial,
			"yes":          true,
			"no":           false,
			"now":          window.Now,
			"start_day":    window.StartDay,
			"start_month":  window.StartMonth,
			"start_year":   window.StartYear,
			"author_roles": []models.UserRole{models.RoleAuthor, models.RoleEditor},
			"reader":       models.RoleReader,
		}).Scan(&row).Error
		if err != nil {
			return err
		}

		stats.Article = row.ArticleStats
		stats.UserStats = models.UserStats{
			ActiveAuthors: row.ActiveAuthors,
			ActiveReaders: row.ActiveReaders,
		}

		var latest []models.Publication
		err = tx.Select("id", "published_on").
			Where("published = ? AND hide = ? AND published_on <= ?", true, false, window.Now).
			Order("published_on desc").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return err
		}
		if len(latest) > 0 {
			stats.LatestPublishedOn = latest[0].PublishedOn
		}

		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
