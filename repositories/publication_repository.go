package repositories

import (
	"context"
	"fmt"
	"time"

	"crowpro-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PublicationRepository interface {
	Create(ctx context.Context, publication *models.Publication) error
	GetByID(ctx context.Context, id uint) (*models.Publication, error)
	GetBySlug(ctx context.Context, slug string, pubType models.PublicationType) (*models.Publication, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetList(ctx context.Context, params models.PublicationListParams, now time.Time) ([]models.Publication, int64, error)
	UpdateContent(ctx context.Context, id uint, fields map[string]interface{}) (bool, error)
	UpdateThumbnail(ctx context.Context, id uint, key string) error
	ReplaceAuthors(ctx context.Context, id uint, authorIDs []uint) error
	Approve(ctx context.Context, id, editorID uint, at time.Time) (bool, error)
	Publish(ctx context.Context, id uint, at time.Time) (bool, error)
	Unpublish(ctx context.Context, id uint) (bool, error)
	Hide(ctx context.Context, id uint) (bool, error)
}

type publicationRepository struct {
	db *gorm.DB
}

func NewPublicationRepository(db *gorm.DB) PublicationRepository {
	return &publicationRepository{db: db}
}

var publicationSortColumns = map[string]string{
	"created_at":   "publications.created_at",
	"updated_at":   "publications.updated_at",
	"published_on": "publications.published_on",
	"title":        "publications.title",
}

// Create inserts the publication and its author rows in one transaction.
// Associated users are never written through this path.
func (r *publicationRepository) Create(ctx context.Context, publication *models.Publication) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(publication).Error; err != nil {
			return err
		}
		return insertAuthors(tx, publication.ID, publication.AuthorIDs())
	})
}

func (r *publicationRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("CreatedBy").
		Preload("ApprovedBy").
		Preload("Authors", func(db *gorm.DB) *gorm.DB {
			return db.Order("users.id asc")
		})
}

func (r *publicationRepository) GetByID(ctx context.Context, id uint) (*models.Publication, error) {
	var publication models.Publication
	if err := r.preloaded(ctx).First(&publication, id).Error; err != nil {
		return nil, err
	}
	return &publication, nil
}

// GetBySlug looks a publication up by slug. An empty pubType matches any type.
func (r *publicationRepository) GetBySlug(ctx context.Context, slug string, pubType models.PublicationType) (*models.Publication, error) {
	var publication models.Publication

	query := r.preloaded(ctx).Where("slug = ?", slug)
	if pubType != "" {
		query = query.Where("publication_type = ?", pubType)
	}

	if err := query.First(&publication).Error; err != nil {
		return nil, err
	}
	return &publication, nil
}

func (r *publicationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Publication{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *publicationRepository) GetList(ctx context.Context, params models.PublicationListParams, now time.Time) ([]models.Publication, int64, error) {
	var publications []models.Publication
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Publication{})

	if params.Type != "" {
		query = query.Where("publications.publication_type = ?", params.Type)
	}

	if params.PublicOnly {
		query = query.Where("publications.published = ? AND publications.hide = ? AND publications.published_on <= ?", true, false, now)
	} else if params.VisibleTo > 0 {
		query = query.Where(
			r.db.Where("publications.published = ? AND publications.hide = ? AND publications.published_on <= ?", true, false, now).
				Or("publications.created_by_id = ?", params.VisibleTo).
				Or("publications.id IN (?)", authoredBy(r.db, params.VisibleTo)),
		)
	}

	query = applyStatus(query, params.Status, now)

	if params.CreatedBy > 0 {
		query = query.Where("publications.created_by_id = ?", params.CreatedBy)
	}

	if params.ApprovedBy > 0 {
		query = query.Where("publications.approved_by_id = ?", params.ApprovedBy)
	}

	if params.AuthorID > 0 {
		query = query.Where(
			r.db.Where("publications.created_by_id = ?", params.AuthorID).
				Or("publications.id IN (?)", authoredBy(r.db, params.AuthorID)),
		)
	}

	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortColumn, ok := publicationSortColumns[params.SortBy]
	if !ok {
		sortColumn = publicationSortColumns["created_at"]
	}

	sortOrder := "desc"
	if params.SortOrder == "asc" {
		sortOrder = "asc"
	}

	offset := (params.Page - 1) * params.Limit
	err := query.
		Preload("CreatedBy").
		Preload("Authors", func(db *gorm.DB) *gorm.DB {
			return db.Order("users.id asc")
		}).
		Order(fmt.Sprintf("%s %s", sortColumn, sortOrder)).
		Order("publications.id desc").
		Offset(offset).
		Limit(params.Limit).
		Find(&publications).Error

	return publications, total, err
}

// applyStatus narrows the query to a workflow status. Hidden rows only appear
// under the rejected status.
func applyStatus(query *gorm.DB, status string, now time.Time) *gorm.DB {
	switch status {
	case models.StatusRejected:
		return query.Where("publications.hide = ?", true)
	case models.StatusPublished:
		query = query.Where("publications.published = ? AND publications.published_on <= ?", true, now)
	case models.StatusScheduled:
		query = query.Where("publications.published = ? AND publications.published_on > ?", true, now)
	case models.StatusInProgress:
		query = query.Where("publications.published = ?", false)
	case models.StatusInReview:
		query = query.Where("publications.published = ? AND publications.approved_by_id IS NULL", false)
	case models.StatusApproved:
		query = query.Where("publications.published = ? AND publications.approved_by_id IS NOT NULL", false)
	case models.StatusPublishedToday, models.StatusPublishedMonth, models.StatusPublishedYear:
		window := NewStatsWindow(now)
		since := window.StartDay
		switch status {
		case models.StatusPublishedMonth:
			since = window.StartMonth
		case models.StatusPublishedYear:
			since = window.StartYear
		}
		query = query.Where("publications.published = ? AND publications.published_on >= ? AND publications.published_on <= ?", true, since, window.Now)
	}
	return query.Where("publications.hide = ?", false)
}

func authoredBy(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&models.PublicationAuthor{}).Select("publication_id").Where("user_id = ?", userID)
}

// UpdateContent applies a partial edit to a visible publication.
func (r *publicationRepository) UpdateContent(ctx context.Context, id uint, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ? AND hide = ?", id, false).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *publicationRepository) UpdateThumbnail(ctx context.Context, id uint, key string) error {
	return r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ?", id).
		Update("thumbnail", key).Error
}

// ReplaceAuthors swaps the author rows of a publication atomically.
func (r *publicationRepository) ReplaceAuthors(ctx context.Context, id uint, authorIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("publication_id = ?", id).Delete(&models.PublicationAuthor{}).Error; err != nil {
			return err
		}
		if err := insertAuthors(tx, id, authorIDs); err != nil {
			return err
		}
		return tx.Model(&models.Publication{}).Where("id = ?", id).Update("updated_at", tx.NowFunc()).Error
	})
}

func insertAuthors(tx *gorm.DB, publicationID uint, authorIDs []uint) error {
	if len(authorIDs) == 0 {
		return nil
	}
	rows := make([]models.PublicationAuthor, 0, len(authorIDs))
	for _, userID := range authorIDs {
		rows = append(rows, models.PublicationAuthor{PublicationID: publicationID, UserID: userID})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// Approve stamps the first approval. It reports false when the row is missing,
// hidden or already approved.
func (r *publicationRepository) Approve(ctx context.Context, id, editorID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ? AND approved_by_id IS NULL AND hide = ?", id, false).
		Updates(map[string]interface{}{
			"approved_by_id": editorID,
			"approved_on":    at,
		})
	return res.RowsAffected > 0, res.Error
}

// Publish flips an approved, unpublished row to published. It reports false
// when any precondition no longer holds.
func (r *publicationRepository) Publish(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ? AND approved_by_id IS NOT NULL AND published = ? AND hide = ?", id, false, false).
		Updates(map[string]interface{}{
			"published":    true,
			"published_on": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *publicationRepository) Unpublish(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ? AND hide = ?", id, false).
		Updates(map[string]interface{}{
			"published":    false,
			"published_on": nil,
		})
	return res.RowsAffected > 0, res.Error
}

// Hide soft-deletes the row. It reports false when nothing changed.
func (r *publicationRepository) Hide(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Publication{}).
		Where("id = ? AND hide = ?", id, false).
		Update("hide", true)
	return res.RowsAffected > 0, res.Error
}
