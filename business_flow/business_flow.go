// Package businessflow contains the business logic for the application.
package businessflow

import (
	"strconv"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for request logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

func breakdownCacheKey(cfg config.CacheConfig, articleID uint) string {
	return redisKey(cfg, utils.BreakdownCacheKey) + strconv.FormatUint(uint64(articleID), 10)
}

// ToArticleDTO converts an article model to its API representation
func ToArticleDTO(article models.Article) dto.ArticleDTO {
	out := dto.ArticleDTO{
		ID:                    article.ID,
		UUID:                  article.UUID.String(),
		Name:                  article.Name,
		Description:           article.Description,
		Comment:               article.Comment,
		UnitWeight:            article.UnitWeight,
		SpecFilename:          article.SpecFilename,
		DrawingFilename:       article.DrawingFilename,
		ProcessingStatus:      string(article.ProcessingStatus),
		ProcessingError:       article.ProcessingError,
		ProcessingStartedAt:   article.ProcessingStartedAt,
		ProcessingCompletedAt: article.ProcessingCompletedAt,
		SimilarArticles:       article.SimilarArticles,
		CreatedAt:             article.CreatedAt,
		UpdatedAt:             article.UpdatedAt,
	}
	if article.ProcessingErrorKind != nil {
		out.ProcessingErrorKind = utils.ToPtr(article.ProcessingErrorKind.String())
	}
	return out
}

// ToIndexDTO converts an index model to its API representation
func ToIndexDTO(index models.Index) dto.IndexDTO {
	return dto.IndexDTO{
		ID:           index.ID,
		Name:         index.Name,
		Value:        index.Value,
		ValuePerGram: index.ValuePerGram,
		Date:         index.Date,
		PriceFactor:  index.PriceFactor,
		Unit:         index.Unit,
		CreatedAt:    index.CreatedAt,
		UpdatedAt:    index.UpdatedAt,
	}
}

// ToOrderDTO converts an order model to its API representation
func ToOrderDTO(order models.Order) dto.OrderDTO {
	return dto.OrderDTO{
		ID:          order.ID,
		ArticleID:   order.ArticleID,
		ArticleName: order.ArticleName,
		Price:       order.Price,
		PriceFactor: order.PriceFactor,
		Unit:        order.Unit,
		OrderDate:   order.OrderDate,
		CreatedAt:   order.CreatedAt,
	}
}

// ToCostModelDTO converts a cost model row to its API representation,
// including the referenced article and index when preloaded
func ToCostModelDTO(cm models.CostModel) dto.CostModelDTO {
	out := dto.CostModelDTO{
		ArticleID:     cm.ArticleID,
		IndexID:       cm.IndexID,
		Part:          cm.Part,
		DirectCostEUR: cm.DirectCostEUR,
		CreatedAt:     cm.CreatedAt,
	}
	if cm.Article != nil {
		article := ToArticleDTO(*cm.Article)
		out.Article = &article
	}
	if cm.Index != nil {
		index := ToIndexDTO(*cm.Index)
		out.Index = &index
	}
	return out
}
