// Package businessflow contains the core business logic and use cases for cost computation workflows
package businessflow

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
)

// OverheadRate is the fixed share of the cost subtotal added as
// manufacturing overhead.
const OverheadRate = 0.15

// CostingFlow handles the computed read endpoints of an article
type CostingFlow interface {
	GetCostBreakdown(ctx context.Context, articleID uint) (*dto.CostBreakdownResponse, error)
	GetIndicesValues(ctx context.Context, articleID uint) (*dto.ArticleIndicesValuesResponse, error)
	GetPriceHistory(ctx context.Context, articleID uint) (*dto.ArticlePriceHistoryResponse, error)
}

// CostingFlowImpl implements the costing business flow
type CostingFlowImpl struct {
	articleRepo      repository.ArticleRepository
	indexRepo        repository.IndexRepository
	costModelRepo    repository.CostModelRepository
	orderRepo        repository.OrderRepository
	processingConfig config.ProcessingConfig
	cacheConfig      *config.CacheConfig
	rc               *redis.Client
}

// NewCostingFlow creates a new costing flow instance
func NewCostingFlow(
	articleRepo repository.ArticleRepository,
	indexRepo repository.IndexRepository,
	costModelRepo repository.CostModelRepository,
	orderRepo repository.OrderRepository,
	processingConfig config.ProcessingConfig,
	cacheConfig *config.CacheConfig,
	rc *redis.Client,
) CostingFlow {
	return &CostingFlowImpl{
		articleRepo:      articleRepo,
		indexRepo:        indexRepo,
		costModelRepo:    costModelRepo,
		orderRepo:        orderRepo,
		processingConfig: processingConfig,
		cacheConfig:      cacheConfig,
		rc:               rc,
	}
}

// CostBuckets holds the computed amounts of one breakdown
type CostBuckets struct {
	Materials   float64
	Labor       float64
	Electricity float64
	Overhead    float64
	Base        float64
	Total       float64
	Margin      float64
}

// ComputeCostBuckets routes each cost-model row's contribution into the
// labor, electricity or materials bucket by canonical index name, applies
// the fixed overhead and settles the total against the observed price.
// Rows whose index observation is missing contribute nothing.
func ComputeCostBuckets(rows []*models.CostModel, latestByID map[uint]*models.Index, laborName, electricityName string, price *float64) CostBuckets {
	var b CostBuckets
	for _, row := range rows {
		idx := latestByID[row.IndexID]
		if idx == nil {
			continue
		}
		cost := row.Cost(idx)
		switch idx.Name {
		case laborName:
			b.Labor += cost
		case electricityName:
			b.Electricity += cost
		default:
			b.Materials += cost
		}
	}

	subtotal := b.Materials + b.Labor + b.Electricity
	b.Overhead = OverheadRate * subtotal
	b.Base = subtotal + b.Overhead
	if price != nil {
		b.Total = *price
		b.Margin = *price - b.Base
	} else {
		b.Total = b.Base
	}
	return b
}

// GetCostBreakdown computes the bucketed should-cost of an article against
// the latest observation of every referenced index series
func (s *CostingFlowImpl) GetCostBreakdown(ctx context.Context, articleID uint) (*dto.CostBreakdownResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if s.rc != nil && s.cacheConfig != nil && s.cacheConfig.Enabled {
		cacheKey = breakdownCacheKey(*s.cacheConfig, article.ID)
		if bs, err := s.rc.Get(ctx, cacheKey).Bytes(); err == nil && len(bs) > 0 {
			var out dto.CostBreakdownResponse
			if err := json.Unmarshal(bs, &out); err == nil {
				return &out, nil
			}
		}
	}

	rows, err := s.costModelRepo.ByArticleID(ctx, article.ID)
	if err != nil {
		return nil, NewBusinessError("COST_BREAKDOWN_FAILED", "Failed to load cost-model rows", err)
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.IndexID)
	}
	latestByID, err := s.indexRepo.LatestForIDs(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("COST_BREAKDOWN_FAILED", "Failed to load index observations", err)
	}

	var price *float64
	latestOrder, err := s.orderRepo.LatestForArticle(ctx, article.ID, article.Name)
	if err != nil {
		return nil, NewBusinessError("COST_BREAKDOWN_FAILED", "Failed to load order history", err)
	}
	if latestOrder != nil {
		price = &latestOrder.Price
	}

	buckets := ComputeCostBuckets(rows, latestByID, s.processingConfig.LaborIndexName, s.processingConfig.ElectricityIndexName, price)

	resp := &dto.CostBreakdownResponse{
		ArticleID:       article.ID,
		ArticleName:     article.Name,
		Currency:        "EUR",
		ArticlePrice:    price,
		MaterialsCost:   buckets.Materials,
		LaborCost:       buckets.Labor,
		ElectricityCost: buckets.Electricity,
		OverheadCost:    buckets.Overhead,
		BaseCost:        buckets.Base,
		ProfitMargin:    buckets.Margin,
		TotalCost:       buckets.Total,
	}

	if cacheKey != "" {
		if bs, err := json.Marshal(resp); err == nil {
			_ = s.rc.Set(ctx, cacheKey, bs, s.cacheConfig.DefaultTTL).Err()
		}
	}
	return resp, nil
}

// GetIndicesValues returns the historical value series of every index
// referenced by the article's cost model, with the per-date cost the
// article's fixed quantity would have incurred
func (s *CostingFlowImpl) GetIndicesValues(ctx context.Context, articleID uint) (*dto.ArticleIndicesValuesResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	rows, err := s.costModelRepo.ByArticleID(ctx, article.ID)
	if err != nil {
		return nil, NewBusinessError("INDICES_VALUES_FAILED", "Failed to load cost-model rows", err)
	}

	resp := &dto.ArticleIndicesValuesResponse{
		ArticleID:   article.ID,
		ArticleName: article.Name,
		Indices:     []dto.ArticleIndexSeries{},
	}
	if len(rows) == 0 {
		return resp, nil
	}

	// One series per referenced index name, carrying the referenced row for
	// the per-date cost computation.
	rowByName := make(map[string]*models.CostModel)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Index == nil {
			continue
		}
		if _, seen := rowByName[row.Index.Name]; !seen {
			names = append(names, row.Index.Name)
		}
		rowByName[row.Index.Name] = row
	}

	history, err := s.indexRepo.HistoryForNames(ctx, names)
	if err != nil {
		return nil, NewBusinessError("INDICES_VALUES_FAILED", "Failed to load index history", err)
	}

	seriesByName := make(map[string]*dto.ArticleIndexSeries, len(names))
	order := make([]string, 0, len(names))
	for _, h := range history {
		row := rowByName[h.Name]
		if row == nil {
			continue
		}
		series, ok := seriesByName[h.Name]
		if !ok {
			referenced := row.Index
			unit := ""
			if referenced.Unit != nil {
				unit = *referenced.Unit
			}
			isMaterial := models.IsMassUnit(unit)
			quantityUnit := unit
			if isMaterial {
				quantityUnit = "g"
			}
			series = &dto.ArticleIndexSeries{
				IndexID:       referenced.ID,
				IndexName:     referenced.Name,
				Unit:          unit,
				QuantityValue: row.Part,
				QuantityUnit:  quantityUnit,
				IsMaterial:    isMaterial,
				Values:        []dto.IndexValuePoint{},
			}
			seriesByName[h.Name] = series
			order = append(order, h.Name)
		}
		series.Values = append(series.Values, dto.IndexValuePoint{
			Date:      h.Date,
			Value:     row.Cost(h),
			UnitValue: h.Value,
		})
	}

	for _, name := range order {
		resp.Indices = append(resp.Indices, *seriesByName[name])
	}
	return resp, nil
}

// GetPriceHistory returns every observed order of the article, matched by
// id or by name, oldest first
func (s *CostingFlowImpl) GetPriceHistory(ctx context.Context, articleID uint) (*dto.ArticlePriceHistoryResponse, error) {
	article, err := getArticle(ctx, s.articleRepo, articleID)
	if err != nil {
		return nil, err
	}

	orders, err := s.orderRepo.HistoryForArticle(ctx, article.ID, article.Name)
	if err != nil {
		return nil, NewBusinessError("PRICE_HISTORY_FAILED", "Failed to load order history", err)
	}

	points := make([]dto.ArticlePricePoint, 0, len(orders))
	for _, order := range orders {
		points = append(points, dto.ArticlePricePoint{
			OrderID:     order.ID,
			OrderDate:   order.OrderDate,
			Price:       order.Price,
			PriceFactor: order.PriceFactor,
			Unit:        order.Unit,
		})
	}

	return &dto.ArticlePriceHistoryResponse{
		ArticleID:   article.ID,
		ArticleName: article.Name,
		Points:      points,
	}, nil
}
