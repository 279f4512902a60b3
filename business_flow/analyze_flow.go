// Package businessflow contains the core business logic and use cases for article analysis workflows
package businessflow

import (
	"context"
	"log"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/app/services"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// AnalyzeFlow handles the upload-and-process business logic
type AnalyzeFlow interface {
	AnalyzeArticle(ctx context.Context, req *dto.AnalyzeArticleRequest, metadata *ClientMetadata) (*dto.AnalyzeArticleResponse, error)
}

// AnalyzeFlowImpl implements the analyze business flow
type AnalyzeFlowImpl struct {
	articleRepo  repository.ArticleRepository
	processor    *services.ArticleProcessor
	openAIConfig config.OpenAIConfig
	db           *gorm.DB
	logger       *log.Logger
}

// NewAnalyzeFlow creates a new analyze flow instance
func NewAnalyzeFlow(
	articleRepo repository.ArticleRepository,
	processor *services.ArticleProcessor,
	openAIConfig config.OpenAIConfig,
	db *gorm.DB,
	logger *log.Logger,
) AnalyzeFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &AnalyzeFlowImpl{
		articleRepo:  articleRepo,
		processor:    processor,
		openAIConfig: openAIConfig,
		db:           db,
		logger:       logger,
	}
}

// AnalyzeArticle stores the uploaded specification, claims the article for
// processing and dispatches the pipeline. A new name creates the article;
// an existing name is refreshed in place and re-analyzed.
func (s *AnalyzeFlowImpl) AnalyzeArticle(ctx context.Context, req *dto.AnalyzeArticleRequest, metadata *ClientMetadata) (*dto.AnalyzeArticleResponse, error) {
	if len(req.SpecFile) == 0 {
		return nil, NewBusinessError("VALIDATION_ERROR", "A specification file is required", ErrSpecFileRequired)
	}
	// Reject before writing anything: the pipeline cannot run without a key.
	if s.openAIConfig.APIKey == "" {
		return nil, NewBusinessError("MISSING_API_KEY", "OPENAI_API_KEY is not configured", ErrMissingAPIKey)
	}

	var (
		article *models.Article
		created bool
	)

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		existing, err := s.articleRepo.ByName(txCtx, req.ArticleName)
		if err != nil {
			return err
		}

		if existing == nil {
			article = &models.Article{
				Name:             req.ArticleName,
				Description:      req.Description,
				Comment:          req.Comment,
				UnitWeight:       req.UnitWeight,
				SpecFile:         req.SpecFile,
				SpecFilename:     utils.ToPtr(req.SpecFilename),
				ProcessingStatus: models.ProcessingStatusPending,
			}
			if len(req.DrawingFile) > 0 {
				article.DrawingFile = req.DrawingFile
				article.DrawingFilename = utils.ToPtr(req.DrawingFilename)
			}
			if err := s.articleRepo.Save(txCtx, article); err != nil {
				return err
			}
			created = true
		} else {
			article = existing
			fields := map[string]any{
				"spec_file":     req.SpecFile,
				"spec_filename": req.SpecFilename,
				"updated_at":    utils.UTCNow(),
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
			if len(req.DrawingFile) > 0 {
				fields["drawing_file"] = req.DrawingFile
				fields["drawing_filename"] = req.DrawingFilename
			}
			if err := s.articleRepo.UpdateFields(txCtx, article.ID, fields); err != nil {
				return err
			}
		}

		claimed, err := s.articleRepo.ClaimProcessing(txCtx, article.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrArticleAlreadyProcessing
		}
		return nil
	})
	if err != nil {
		if IsArticleAlreadyProcessing(err) {
			return nil, NewBusinessError("ARTICLE_ALREADY_PROCESSING", "A processing run is already active for this article", err)
		}
		return nil, NewBusinessError("ANALYZE_FAILED", "Failed to schedule article processing", err)
	}

	// Dispatch only after the claim is committed, on a fresh context that
	// outlives the request.
	articleID := article.ID
	go s.processor.Process(context.Background(), articleID)

	s.logger.Printf("analyze: scheduled processing for article id=%d created=%t", articleID, created)

	return &dto.AnalyzeArticleResponse{
		Message:          "Article processing scheduled",
		ArticleID:        articleID,
		ProcessingStatus: string(models.ProcessingStatusProcessing),
		Created:          created,
	}, nil
}
