package repository

import (
	"context"
	"errors"

	"github.com/werkpilot/cost-model-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CostModelRepositoryImpl implements the CostModelRepository interface
type CostModelRepositoryImpl struct {
	*BaseRepository[models.CostModel, models.CostModelFilter]
}

// NewCostModelRepository creates a new cost-model repository
func NewCostModelRepository(db *gorm.DB) CostModelRepository {
	return &CostModelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CostModel, models.CostModelFilter](db),
	}
}

// List retrieves every cost-model row with both referenced entities
// preloaded, newest first
func (r *CostModelRepositoryImpl) List(ctx context.Context) ([]*models.CostModel, error) {
	db := r.getDB(ctx)

	var rows []*models.CostModel
	err := db.Preload("Article").
		Preload("Index").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ByArticleID retrieves all cost-model rows of an article with their
// referenced index observations preloaded
func (r *CostModelRepositoryImpl) ByArticleID(ctx context.Context, articleID uint) ([]*models.CostModel, error) {
	db := r.getDB(ctx)

	var rows []*models.CostModel
	err := db.Where("article_id = ?", articleID).
		Preload("Index").
		Order("index_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ByArticleAndIndex retrieves the single row of an (article, index) pair
func (r *CostModelRepositoryImpl) ByArticleAndIndex(ctx context.Context, articleID, indexID uint) (*models.CostModel, error) {
	db := r.getDB(ctx)

	var row models.CostModel
	err := db.Where("article_id = ? AND index_id = ?", articleID, indexID).
		Preload("Index").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &row, nil
}

// Upsert inserts a row or overwrites the contribution of an existing
// (article, index) pair
func (r *CostModelRepositoryImpl) Upsert(ctx context.Context, row *models.CostModel) error {
	db := r.getDB(ctx)

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "article_id"}, {Name: "index_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"part":            clause.Expr{SQL: "EXCLUDED.part"},
			"direct_cost_eur": clause.Expr{SQL: "EXCLUDED.direct_cost_eur"},
		}),
	}).Create(row).Error
}

// Update overwrites an existing row
func (r *CostModelRepositoryImpl) Update(ctx context.Context, row models.CostModel) error {
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

	err = db.Model(&models.CostModel{}).
		Where("article_id = ? AND index_id = ?", row.ArticleID, row.IndexID).
		Updates(map[string]any{
			"part":            row.Part,
			"direct_cost_eur": row.DirectCostEUR,
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// ReplaceForArticle deletes every row of an article and inserts the given
// rows in their place. Callers run it inside a transaction so readers never
// observe the article half-replaced.
func (r *CostModelRepositoryImpl) ReplaceForArticle(ctx context.Context, articleID uint, rows []*models.CostModel) error {
	if err := r.DeleteForArticle(ctx, articleID); err != nil {
		return err
	}
	return r.SaveBatch(ctx, rows)
}

// DeleteForArticle removes every cost-model row of an article
func (r *CostModelRepositoryImpl) DeleteForArticle(ctx context.Context, articleID uint) error {
	db := r.getDB(ctx)
	return db.Where("article_id = ?", articleID).Delete(&models.CostModel{}).Error
}

// Delete removes the row of an (article, index) pair
func (r *CostModelRepositoryImpl) Delete(ctx context.Context, articleID, indexID uint) error {
	db := r.getDB(ctx)
	return db.Where("article_id = ? AND index_id = ?", articleID, indexID).
		Delete(&models.CostModel{}).Error
}
