// Package businessflow contains the core business logic and use cases for article workflows
package businessflow

import (
	"context"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// ArticleFlow handles the article CRUD business logic
type ArticleFlow interface {
	CreateArticle(ctx context.Context, req *dto.CreateArticleRequest, metadata *ClientMetadata) (*dto.CreateArticleResponse, error)
	ListArticles(ctx context.Context, req *dto.ListArticlesRequest) (*dto.ListArticlesResponse, error)
	GetArticle(ctx context.Context, articleID uint) (*dto.ArticleDTO, error)
	UpdateArticle(ctx context.Context, req *dto.UpdateArticleRequest, metadata *ClientMetadata) (*dto.ArticleDTO, error)
	DeleteArticle(ctx context.Context, articleID uint) error
	GetArticleStatus(ctx context.Context, articleID uint) (*dto.ArticleStatusResponse, error)
}

// ArticleFlowImpl implements the article business flow
type ArticleFlowImpl struct {
	articleRepo repository.ArticleRepository
	db          *gorm.DB
}

// NewArticleFlow creates a new article flow instance
func NewArticleFlow(
	articleRepo repository.ArticleRepository,
	db *gorm.DB,
) ArticleFlow {
	return &ArticleFlowImpl{
		articleRepo: articleRepo,
		db:          db,
	}
}

// CreateArticle registers a new article without scheduling any processing
func (s *ArticleFlowImpl) CreateArticle(ctx context.Context, req *dto.CreateArticleRequest, metadata *ClientMetadata) (*dto.CreateArticleResponse, error) {
	existing, err := s.articleRepo.ByName(ctx, req.Name)
	if err != nil {
		return nil, NewBusinessError("ARTICLE_LOOKUP_FAILED", "Failed to check article name", err)
	}
	if existing != nil {
		return nil, NewBusinessError("ARTICLE_NAME_EXISTS", "An article with this name already exists", ErrArticleNameExists)
	}

	article := &models.Article{
		Name:        req.Name,
		Description: req.Description,
		Comment:     req.Comment,
		UnitWeight:  req.UnitWeight,
	}
	if err := s.articleRepo.Save(ctx, article); err != nil {
		return nil, NewBusinessError("ARTICLE_CREATION_FAILED", "Failed to create article", err)
	}

	return &dto.CreateArticleResponse{
		Message: "Article created successfully",
		Article: ToArticleDTO(*article),
	}, nil
}

// ListArticles retrieves articles with pagination and optional filters
func (s *ArticleFlowImpl) ListArticles(ctx context.Context, req *dto.ListArticlesRequest) (*dto.ListArticlesResponse, error) {
	// Normalize pagination
	page := max(1, req.Page)
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	// Build filter
	filter := models.ArticleFilter{}
	if req.Name != nil && *req.Name != "" {
		filter.Name = req.Name
	}
	if req.Status != nil && *req.Status != "" {
		status := models.ProcessingStatus(*req.Status)
		if status.Valid() {
			filter.ProcessingStatus = &status
		}
	}

	total, err := s.articleRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_ARTICLES_FAILED", "Failed to count articles", err)
	}

	rows, err := s.articleRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_ARTICLES_FAILED", "Failed to list articles", err)
	}

	items := make([]dto.ArticleDTO, 0, len(rows))
	for _, a := range rows {
		items = append(items, ToArticleDTO(*a))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &dto.ListArticlesResponse{
		Message: "Articles retrieved successfully",
		Items:   items,
		Pagination: dto.PaginationInfo{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}, nil
}

// GetArticle retrieves a single article by id
func (s *ArticleFlowImpl) GetArticle(ctx context.Context, articleID uint) (*dto.ArticleDTO, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	out := ToArticleDTO(*article)
	return &out, nil
}

// UpdateArticle applies a partial update to an existing article
func (s *ArticleFlowImpl) UpdateArticle(ctx context.Context, req *dto.UpdateArticleRequest, metadata *ClientMetadata) (*dto.ArticleDTO, error) {
	article, err := getArticle(ctx, s.articleRepo, req.ID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if req.Name != nil && *req.Name != "" && *req.Name != article.Name {
		other, err := s.articleRepo.ByName(ctx, *req.Name)
		if err != nil {
			return nil, NewBusinessError("ARTICLE_LOOKUP_FAILED", "Failed to check article name", err)
		}
		if other != nil && other.ID != article.ID {
			return nil, NewBusinessError("ARTICLE_NAME_EXISTS", "An article with this name already exists", ErrArticleNameExists)
		}
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Comment != nil {
		fields["comment"] = *req.Comment
	}
	if req.UnitWeight != nil {
		fields["unit_weight"] = *req.UnitWeight
	}

	if len(fields) > 0 {
		fields["updated_at"] = utils.UTCNow()
		if err := s.articleRepo.UpdateFields(ctx, article.ID, fields); err != nil {
			return nil, NewBusinessError("ARTICLE_UPDATE_FAILED", "Failed to update article", err)
		}
	}

	updated, err := s.articleRepo.ByID(ctx, article.ID)
	if err != nil || updated == nil {
		return nil, NewBusinessError("ARTICLE_LOOKUP_FAILED", "Failed to reload article", err)
	}

	out := ToArticleDTO(*updated)
	return &out, nil
}

// DeleteArticle removes an article. Cost-model rows cascade with it and
// orders keep their article_name with a cleared reference.
func (s *ArticleFlowImpl) DeleteArticle(ctx context.Context, articleID uint) error {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return err
	}

	if err := s.articleRepo.Delete(ctx, article.ID); err != nil {
		return NewBusinessError("ARTICLE_DELETION_FAILED", "Failed to delete article", err)
	}
	return nil
}

// GetArticleStatus returns the lightweight processing status for polling
func (s *ArticleFlowImpl) GetArticleStatus(ctx context.Context, articleID uint) (*dto.ArticleStatusResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ArticleStatusResponse{
		ArticleID:             article.ID,
		ProcessingStatus:      string(article.ProcessingStatus),
		ProcessingError:       article.ProcessingError,
		ProcessingStartedAt:   article.ProcessingStartedAt,
		ProcessingCompletedAt: article.ProcessingCompletedAt,
		SimilarArticles:       article.SimilarArticles,
	}
	if article.ProcessingErrorKind != nil {
		resp.ProcessingErrorKind = utils.ToPtr(article.ProcessingErrorKind.String())
	}
	return resp, nil
}

// getArticle loads an article by id, mapping absence to the not-found error
func getArticle(ctx context.Context, repo repository.ArticleRepository, articleID uint) (*models.Article, error) {
	if articleID == 0 {
		return nil, NewBusinessError("ARTICLE_NOT_FOUND", "Article not found", ErrArticleNotFound)
	}
	article, err := repo.ByID(ctx, articleID)
	if err != nil {
		return nil, NewBusinessError("ARTICLE_LOOKUP_FAILED", "Failed to lookup article", err)
	}
	if article == nil {
		return nil, NewBusinessError("ARTICLE_NOT_FOUND", "Article not found", ErrArticleNotFound)
	}
	return article, nil
}
