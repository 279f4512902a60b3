package businessflow

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
)

// CostModelFlow handles the manual cost-model row management
type CostModelFlow interface {
	CreateCostModel(ctx context.Context, req *dto.CreateCostModelRequest, metadata *ClientMetadata) (*dto.CreateCostModelResponse, error)
	ListCostModels(ctx context.Context) (*dto.ListCostModelsResponse, error)
	ListCostModelsForArticle(ctx context.Context, articleID uint) (*dto.ListCostModelsResponse, error)
	UpdateCostModel(ctx context.Context, req *dto.UpdateCostModelRequest, metadata *ClientMetadata) (*dto.CostModelDTO, error)
	DeleteCostModel(ctx context.Context, articleID, indexID uint) error
}

// CostModelFlowImpl implements the cost model business flow
type CostModelFlowImpl struct {
	costModelRepo repository.CostModelRepository
	articleRepo   repository.ArticleRepository
	indexRepo     repository.IndexRepository
	cacheConfig   *config.CacheConfig
	rc            *redis.Client
}

// NewCostModelFlow creates a new cost model flow instance
func NewCostModelFlow(
	costModelRepo repository.CostModelRepository,
	articleRepo repository.ArticleRepository,
	indexRepo repository.IndexRepository,
	cacheConfig *config.CacheConfig,
	rc *redis.Client,
) CostModelFlow {
	return &CostModelFlowImpl{
		costModelRepo: costModelRepo,
		articleRepo:   articleRepo,
		indexRepo:     indexRepo,
		cacheConfig:   cacheConfig,
		rc:            rc,
	}
}

// CreateCostModel attaches an index contribution to an article. Both
// referenced rows must exist and the (article, index) pair must be new.
func (s *CostModelFlowImpl) CreateCostModel(ctx context.Context, req *dto.CreateCostModelRequest, metadata *ClientMetadata) (*dto.CreateCostModelResponse, error) {
	if _, err := getArticle(ctx, s.articleRepo, req.ArticleID); err != nil {
		return nil, err
	}
	if _, err := getIndex(ctx, s.indexRepo, req.IndexID); err != nil {
		return nil, err
	}

	existing, err := s.costModelRepo.ByArticleAndIndex(ctx, req.ArticleID, req.IndexID)
	if err != nil {
		return nil, NewBusinessError("COST_MODEL_LOOKUP_FAILED", "Failed to check cost model row", err)
	}
	if existing != nil {
		return nil, NewBusinessError("COST_MODEL_EXISTS", "A cost model row for this article and index already exists", ErrCostModelExists)
	}

	row := &models.CostModel{
		ArticleID:     req.ArticleID,
		IndexID:       req.IndexID,
		Part:          req.Part,
		DirectCostEUR: req.DirectCostEUR,
	}
	if err := s.costModelRepo.Upsert(ctx, row); err != nil {
		return nil, NewBusinessError("COST_MODEL_CREATION_FAILED", "Failed to create cost model row", err)
	}

	s.invalidateBreakdown(ctx, req.ArticleID)

	return &dto.CreateCostModelResponse{
		Message:   "Cost model row created successfully",
		CostModel: ToCostModelDTO(*row),
	}, nil
}

// ListCostModels retrieves every cost model row with its article and index,
// newest first
func (s *CostModelFlowImpl) ListCostModels(ctx context.Context) (*dto.ListCostModelsResponse, error) {
	rows, err := s.costModelRepo.List(ctx)
	if err != nil {
		return nil, NewBusinessError("LIST_COST_MODELS_FAILED", "Failed to list cost model rows", err)
	}

	items := make([]dto.CostModelDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToCostModelDTO(*row))
	}

	return &dto.ListCostModelsResponse{
		Message: "Cost model rows retrieved successfully",
		Items:   items,
	}, nil
}

// ListCostModelsForArticle retrieves the cost model rows of one article
func (s *CostModelFlowImpl) ListCostModelsForArticle(ctx context.Context, articleID uint) (*dto.ListCostModelsResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	rows, err := s.costModelRepo.ByArticleID(ctx, article.ID)
	if err != nil {
		return nil, NewBusinessError("LIST_COST_MODELS_FAILED", "Failed to list cost model rows", err)
	}

	items := make([]dto.CostModelDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToCostModelDTO(*row))
	}

	return &dto.ListCostModelsResponse{
		Message: "Cost model rows retrieved successfully",
		Items:   items,
	}, nil
}

// UpdateCostModel changes the part or direct cost of an existing row
func (s *CostModelFlowImpl) UpdateCostModel(ctx context.Context, req *dto.UpdateCostModelRequest, metadata *ClientMetadata) (*dto.CostModelDTO, error) {
	row, err := getCostModel(ctx, s.costModelRepo, req.ArticleID, req.IndexID)
	if err != nil {
		return nil, err
	}

	if req.Part != nil {
		row.Part = *req.Part
	}
	if req.DirectCostEUR != nil {
		row.DirectCostEUR = req.DirectCostEUR
	}

	if err := s.costModelRepo.Update(ctx, *row); err != nil {
		return nil, NewBusinessError("COST_MODEL_UPDATE_FAILED", "Failed to update cost model row", err)
	}

	s.invalidateBreakdown(ctx, req.ArticleID)

	out := ToCostModelDTO(*row)
	return &out, nil
}

// DeleteCostModel removes one cost model row
func (s *CostModelFlowImpl) DeleteCostModel(ctx context.Context, articleID, indexID uint) error {
	row, err := getCostModel(ctx, s.costModelRepo, articleID, indexID)
	if err != nil {
		return err
	}

	if err := s.costModelRepo.Delete(ctx, row.ArticleID, row.IndexID); err != nil {
		return NewBusinessError("COST_MODEL_DELETION_FAILED", "Failed to delete cost model row", err)
	}

	s.invalidateBreakdown(ctx, articleID)
	return nil
}

// invalidateBreakdown drops the cached breakdown of an article after its
// cost model changed. A missed delete expires with the cache TTL.
func (s *CostModelFlowImpl) invalidateBreakdown(ctx context.Context, articleID uint) {
	if s.rc == nil || s.cacheConfig == nil || !s.cacheConfig.Enabled {
		return
	}
	_ = s.rc.Del(ctx, breakdownCacheKey(*s.cacheConfig, articleID)).Err()
}

// getCostModel loads a cost model row by its composite key, mapping absence
// to the not-found error
func getCostModel(ctx context.Context, repo repository.CostModelRepository, articleID, indexID uint) (*models.CostModel, error) {
	row, err := repo.ByArticleAndIndex(ctx, articleID, indexID)
	if err != nil {
		return nil, NewBusinessError("COST_MODEL_LOOKUP_FAILED", "Failed to lookup cost model row", err)
	}
	if row == nil {
		return nil, NewBusinessError("COST_MODEL_NOT_FOUND", "Cost model row not found", ErrCostModelNotFound)
	}
	return row, nil
}
