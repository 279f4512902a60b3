package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/app/services"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/repository"
)

// EstimateFlow handles free-text cost estimation requests
type EstimateFlow interface {
	GenerateCostEstimate(ctx context.Context, req *dto.CostEstimateRequest, metadata *ClientMetadata) (*dto.CostEstimateResponse, error)
}

// EstimateFlowImpl implements the estimate business flow
type EstimateFlowImpl struct {
	articleRepo   repository.ArticleRepository
	costModelRepo repository.CostModelRepository
	extraction    services.ExtractionClient
	openAIConfig  config.OpenAIConfig
}

// NewEstimateFlow creates a new estimate flow instance
func NewEstimateFlow(
	articleRepo repository.ArticleRepository,
	costModelRepo repository.CostModelRepository,
	extraction services.ExtractionClient,
	openAIConfig config.OpenAIConfig,
) EstimateFlow {
	return &EstimateFlowImpl{
		articleRepo:   articleRepo,
		costModelRepo: costModelRepo,
		extraction:    extraction,
		openAIConfig:  openAIConfig,
	}
}

// GenerateCostEstimate summarizes an article and its cost model rows into a
// plain-text prompt and returns the model's free-text answer verbatim
func (s *EstimateFlowImpl) GenerateCostEstimate(ctx context.Context, req *dto.CostEstimateRequest, metadata *ClientMetadata) (*dto.CostEstimateResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, req.ArticleID)
	if err != nil {
		return nil, err
	}

	if s.openAIConfig.APIKey == "" {
		return nil, NewBusinessError("MISSING_API_KEY", "OPENAI_API_KEY is not configured", ErrMissingAPIKey)
	}

	rows, err := s.costModelRepo.ByArticleID(ctx, article.ID)
	if err != nil {
		return nil, NewBusinessError("COST_MODEL_LOOKUP_FAILED", "Failed to load cost model rows", err)
	}

	lines := []string{
		"Article: " + article.Name,
		"Description: " + textOrNA(article.Description),
	}
	if article.UnitWeight != nil {
		lines = append(lines, "Unit weight: "+fmtFloat(*article.UnitWeight))
	}
	if len(rows) > 0 {
		lines = append(lines, "Cost model contributions:")
		for _, row := range rows {
			if row.Index != nil {
				factor := "n/a"
				if row.Index.PriceFactor != nil {
					factor = fmtFloat(*row.Index.PriceFactor)
				}
				lines = append(lines, fmt.Sprintf("- %s (%s) factor %s share %s",
					row.Index.Name, textOrNA(row.Index.Unit), factor, fmtFloat(row.Part)))
			} else {
				lines = append(lines, fmt.Sprintf("- Index ID %d share %s", row.IndexID, fmtFloat(row.Part)))
			}
		}
	} else {
		lines = append(lines, "No index contributions linked yet.")
	}
	if req.Context != "" {
		lines = append(lines, "Additional context: "+req.Context)
	}
	prompt := strings.Join(lines, "\n")

	raw, err := s.extraction.EstimateText(ctx, prompt)
	if err != nil {
		return nil, NewBusinessError("UPSTREAM_LLM_FAILED", "Failed to generate cost estimate", err)
	}

	return &dto.CostEstimateResponse{
		ArticleID:   article.ID,
		Prompt:      prompt,
		RawResponse: &raw,
	}, nil
}

func textOrNA(s *string) string {
	if s == nil || *s == "" {
		return "n/a"
	}
	return *s
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
