// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/werkpilot/cost-model-service/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ArticleRepository defines operations for articles
type ArticleRepository interface {
	Repository[models.Article, models.ArticleFilter]
	ByName(ctx context.Context, name string) (*models.Article, error)
	Update(ctx context.Context, article models.Article) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	ClaimProcessing(ctx context.Context, id uint) (bool, error)
	ListStuckProcessing(ctx context.Context, startedBefore time.Time) ([]*models.Article, error)
	Delete(ctx context.Context, id uint) error
}

// IndexRepository defines operations for price indices
type IndexRepository interface {
	Repository[models.Index, models.IndexFilter]
	ByNameAndDate(ctx context.Context, name string, date time.Time) (*models.Index, error)
	LatestByName(ctx context.Context, name string) (*models.Index, error)
	LatestPerName(ctx context.Context) ([]*models.Index, error)
	LatestForIDs(ctx context.Context, ids []uint) (map[uint]*models.Index, error)
	HistoryForNames(ctx context.Context, names []string) ([]*models.Index, error)
	DistinctNames(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, index *models.Index) error
	Update(ctx context.Context, index models.Index) error
	Delete(ctx context.Context, id uint) error
}

// OrderRepository defines operations for observed order prices
type OrderRepository interface {
	Repository[models.Order, models.OrderFilter]
	LatestForArticle(ctx context.Context, articleID uint, articleName string) (*models.Order, error)
	HistoryForArticle(ctx context.Context, articleID uint, articleName string) ([]*models.Order, error)
	FindDuplicate(ctx context.Context, articleName string, orderDate time.Time, price float64) (*models.Order, error)
	ClearArticleRef(ctx context.Context, articleID uint) error
	Update(ctx context.Context, order models.Order) error
	Delete(ctx context.Context, id uint) error
}

// CostModelRepository defines operations for article cost-model rows
type CostModelRepository interface {
	List(ctx context.Context) ([]*models.CostModel, error)
	ByArticleID(ctx context.Context, articleID uint) ([]*models.CostModel, error)
	ByArticleAndIndex(ctx context.Context, articleID, indexID uint) (*models.CostModel, error)
	Upsert(ctx context.Context, row *models.CostModel) error
	Update(ctx context.Context, row models.CostModel) error
	ReplaceForArticle(ctx context.Context, articleID uint, rows []*models.CostModel) error
	DeleteForArticle(ctx context.Context, articleID uint) error
	Delete(ctx context.Context, articleID, indexID uint) error
}
