package repository

import (
	"context"
	"errors"
	"time"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// ArticleRepositoryImpl implements the ArticleRepository interface
type ArticleRepositoryImpl struct {
	*BaseRepository[models.Article, models.ArticleFilter]
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &ArticleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Article, models.ArticleFilter](db),
	}
}

// ByName retrieves an article by its unique name
func (r *ArticleRepositoryImpl) ByName(ctx context.Context, name string) (*models.Article, error) {
	db := r.getDB(ctx)

	var article models.Article
	err := db.Where("name = ?", name).First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &article, nil
}

// Update updates an article
func (r *ArticleRepositoryImpl) Update(ctx context.Context, article models.Article) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	article.UpdatedAt = &now

	err = db.Save(&article).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateFields updates the given columns of an article
func (r *ArticleRepositoryImpl) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	db := r.getDB(ctx)

	fields["updated_at"] = utils.UTCNow()
	return db.Model(&models.Article{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ClaimProcessing atomically moves an article into the processing state.
// The check-and-set rejects the claim while another run holds the article,
// so at most one pipeline run is active per article. Returns false when the
// article is already processing.
func (r *ArticleRepositoryImpl) ClaimProcessing(ctx context.Context, id uint) (bool, error) {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	res := db.Model(&models.Article{}).
		Where("id = ? AND processing_status <> ?", id, models.ProcessingStatusProcessing).
		Updates(map[string]any{
			"processing_status":       models.ProcessingStatusProcessing,
			"processing_error":        nil,
			"processing_error_kind":   nil,
			"processing_started_at":   now,
			"processing_completed_at": nil,
			"updated_at":              now,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// ListStuckProcessing lists articles that have stayed in the processing
// state since before the given time
func (r *ArticleRepositoryImpl) ListStuckProcessing(ctx context.Context, startedBefore time.Time) ([]*models.Article, error) {
	status := models.ProcessingStatusProcessing
	filter := models.ArticleFilter{
		ProcessingStatus: &status,
		StartedBefore:    &startedBefore,
	}
	return r.ByFilter(ctx, filter, "processing_started_at ASC", 0, 0)
}

// Delete removes an article. Cost-model rows cascade, orders keep their
// row with article_id cleared.
func (r *ArticleRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	return db.Delete(&models.Article{}, id).Error
}

// ByFilter retrieves articles based on filter criteria
func (r *ArticleRepositoryImpl) ByFilter(ctx context.Context, filter models.ArticleFilter, orderBy string, limit, offset int) ([]*models.Article, error) {
	db := r.getDB(ctx)

	var articles []*models.Article
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&articles).Error
	if err != nil {
		return nil, err
	}

	return articles, nil
}

// Count returns the number of articles matching the filter
func (r *ArticleRepositoryImpl) Count(ctx context.Context, filter models.ArticleFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Article{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any article matching the filter exists
func (r *ArticleRepositoryImpl) Exists(ctx context.Context, filter models.ArticleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ArticleRepositoryImpl) applyFilter(db *gorm.DB, filter models.ArticleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.ProcessingStatus != nil {
		db = db.Where("processing_status = ?", *filter.ProcessingStatus)
	}
	if filter.StartedBefore != nil {
		db = db.Where("processing_started_at < ?", *filter.StartedBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
