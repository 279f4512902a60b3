package repository

import (
	"context"
	"errors"
	"time"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// OrderRepositoryImpl implements the OrderRepository interface
type OrderRepositoryImpl struct {
	*BaseRepository[models.Order, models.OrderFilter]
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &OrderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Order, models.OrderFilter](db),
	}
}

// articleScope matches orders belonging to an article by id or, for
// imported rows without a reference, by name
func articleScope(db *gorm.DB, articleID uint, articleName string) *gorm.DB {
	return db.Where("article_id = ? OR article_name = ?", articleID, articleName)
}

// LatestForArticle retrieves the most recent observed price for an article
func (r *OrderRepositoryImpl) LatestForArticle(ctx context.Context, articleID uint, articleName string) (*models.Order, error) {
	db := r.getDB(ctx)

	var order models.Order
	err := articleScope(db, articleID, articleName).
		Order("order_date DESC, id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &order, nil
}

// HistoryForArticle retrieves every observed price for an article, oldest
// first
func (r *OrderRepositoryImpl) HistoryForArticle(ctx context.Context, articleID uint, articleName string) ([]*models.Order, error) {
	db := r.getDB(ctx)

	var orders []*models.Order
	err := articleScope(db, articleID, articleName).
		Order("order_date ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// FindDuplicate retrieves an imported row by its natural key so loaders can
// refresh it instead of inserting a duplicate
func (r *OrderRepositoryImpl) FindDuplicate(ctx context.Context, articleName string, orderDate time.Time, price float64) (*models.Order, error) {
	db := r.getDB(ctx)

	var order models.Order
	err := db.Where("article_name = ? AND order_date = ? AND price = ?", articleName, utils.DateOnly(orderDate), price).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &order, nil
}

// ClearArticleRef detaches all orders from an article, keeping the rows
func (r *OrderRepositoryImpl) ClearArticleRef(ctx context.Context, articleID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.Order{}).
		Where("article_id = ?", articleID).
		Update("article_id", nil).Error
}

// Update persists changes to an existing order
func (r *OrderRepositoryImpl) Update(ctx context.Context, order models.Order) error {
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

	order.OrderDate = utils.DateOnly(order.OrderDate)

	err = db.Save(&order).Error
	if err != nil {
		return err
	}

	return nil
}

// Delete removes an order
func (r *OrderRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	return db.Delete(&models.Order{}, id).Error
}

// ByFilter retrieves orders based on filter criteria
func (r *OrderRepositoryImpl) ByFilter(ctx context.Context, filter models.OrderFilter, orderBy string, limit, offset int) ([]*models.Order, error) {
	db := r.getDB(ctx)

	var orders []*models.Order
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

	err := query.Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// Count returns the number of orders matching the filter
func (r *OrderRepositoryImpl) Count(ctx context.Context, filter models.OrderFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Order{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any order matching the filter exists
func (r *OrderRepositoryImpl) Exists(ctx context.Context, filter models.OrderFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *OrderRepositoryImpl) applyFilter(db *gorm.DB, filter models.OrderFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ArticleID != nil {
		db = db.Where("article_id = ?", *filter.ArticleID)
	}
	if filter.ArticleName != nil {
		db = db.Where("article_name = ?", *filter.ArticleName)
	}
	if filter.OrderAfter != nil {
		db = db.Where("order_date >= ?", utils.DateOnly(*filter.OrderAfter))
	}
	if filter.OrderBefore != nil {
		db = db.Where("order_date <= ?", utils.DateOnly(*filter.OrderBefore))
	}

	return db
}
