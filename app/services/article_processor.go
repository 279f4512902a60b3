package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
)

var (
	articlesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_processed_total",
			Help: "Finished article processing runs partitioned by outcome",
		},
		[]string{"outcome"},
	)

	articleProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "article_processing_duration_seconds",
			Help:    "End to end article processing latency in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	extractionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_extraction_requests_total",
			Help: "Structured extraction calls partitioned by result",
		},
		[]string{"result"},
	)

	similarityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_requests_total",
			Help: "Vector similarity operations partitioned by operation and result",
		},
		[]string{"operation", "result"},
	)
)

const similarityStepTimeout = 90 * time.Second

// ArticleProcessor runs the article analysis pipeline: similarity lookup,
// structured extraction, and cost-model persistence. One instance is shared
// by all requests; Process runs in a goroutine per article.
type ArticleProcessor struct {
	articleRepo   repository.ArticleRepository
	indexRepo     repository.IndexRepository
	costModelRepo repository.CostModelRepository
	orderRepo     repository.OrderRepository
	extraction    ExtractionClient
	similarity    SimilarityClient
	db            *gorm.DB
	redisClient   *redis.Client
	cachePrefix   string
	cfg           config.ProcessingConfig
	logger        *log.Logger
}

func NewArticleProcessor(
	articleRepo repository.ArticleRepository,
	indexRepo repository.IndexRepository,
	costModelRepo repository.CostModelRepository,
	orderRepo repository.OrderRepository,
	extraction ExtractionClient,
	similarity SimilarityClient,
	db *gorm.DB,
	redisClient *redis.Client,
	cachePrefix string,
	cfg config.ProcessingConfig,
	logger *log.Logger,
) *ArticleProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &ArticleProcessor{
		articleRepo:   articleRepo,
		indexRepo:     indexRepo,
		costModelRepo: costModelRepo,
		orderRepo:     orderRepo,
		extraction:    extraction,
		similarity:    similarity,
		db:            db,
		redisClient:   redisClient,
		cachePrefix:   cachePrefix,
		cfg:           cfg,
		logger:        logger,
	}
}

// Process runs the full pipeline for one article. The caller has already
// moved the article to processing via the status check-and-set; every exit
// path leaves it in a terminal status.
func (p *ArticleProcessor) Process(ctx context.Context, articleID uint) {
	runID := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("processor run=%s: panic while processing article id=%d: %v", runID, articleID, r)
			p.markFailed(articleID, models.ProcessingErrorInternal, fmt.Sprintf("panic: %v", r))
			articlesProcessedTotal.WithLabelValues("failed").Inc()
		}
	}()

	if p.cfg.StuckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StuckTimeout)
		defer cancel()
	}

	p.logger.Printf("processor run=%s: starting article id=%d", runID, articleID)

	// 1) Re-fetch the article on the processor's own DB session.
	article, err := p.articleRepo.ByID(ctx, articleID)
	if err != nil {
		p.markFailed(articleID, models.ProcessingErrorInternal, fmt.Sprintf("load article: %v", err))
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}
	if article == nil {
		p.logger.Printf("processor run=%s: article id=%d not found", runID, articleID)
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}

	// 2) Similarity context, best effort.
	p.runSimilarity(ctx, article, runID)

	// 3) Structured extraction, fatal on failure.
	if len(article.SpecFile) == 0 {
		p.markFailed(articleID, models.ProcessingErrorNoSpecFile, "article has no specification document")
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}
	result, err := p.runExtraction(ctx, article, runID)
	if err != nil {
		kind := models.ProcessingErrorExtractionFailed
		if IsUpstreamError(err) {
			kind = models.ProcessingErrorUpstreamUnavailable
		}
		p.logger.Printf("processor run=%s: extraction failed for article id=%d: %v", runID, articleID, err)
		p.markFailed(articleID, kind, err.Error())
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}

	// 4) Persist weight and cost-model rows in one transaction.
	if err := p.persistResult(ctx, article, result, runID); err != nil {
		p.logger.Printf("processor run=%s: persistence failed for article id=%d: %v", runID, articleID, err)
		p.markFailed(articleID, models.ProcessingErrorPersistenceFailed, err.Error())
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}

	// 5) Mark completed and drop the cached breakdown.
	if err := p.articleRepo.UpdateFields(ctx, articleID, map[string]any{
		"processing_status":       models.ProcessingStatusCompleted,
		"processing_error":        nil,
		"processing_error_kind":   nil,
		"processing_completed_at": utils.UTCNow(),
	}); err != nil {
		p.markFailed(articleID, models.ProcessingErrorPersistenceFailed, fmt.Sprintf("mark completed: %v", err))
		articlesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}
	p.invalidateBreakdownCache(articleID)

	articlesProcessedTotal.WithLabelValues("completed").Inc()
	articleProcessingDuration.Observe(time.Since(start).Seconds())
	p.logger.Printf("processor run=%s: completed article id=%d in %s", runID, articleID, time.Since(start).Round(time.Millisecond))
}

// runSimilarity ingests the specification document and caches the ids of
// comparable articles. Every failure is logged and skipped.
func (p *ArticleProcessor) runSimilarity(ctx context.Context, article *models.Article, runID string) {
	if p.similarity == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, similarityStepTimeout)
	defer cancel()

	if len(article.SpecFile) > 0 {
		filename := ""
		if article.SpecFilename != nil {
			filename = *article.SpecFilename
		}
		if p.similarity.Ingest(callCtx, article.ID, article.Name, article.SpecFile, filename) {
			similarityRequestsTotal.WithLabelValues("ingest", "ok").Inc()
		} else {
			similarityRequestsTotal.WithLabelValues("ingest", "skipped").Inc()
		}
	}

	ids := p.similarity.FindSimilar(callCtx, article.ID, p.cfg.SimilarTopK, p.cfg.SimilarThreshold)
	if len(ids) == 0 {
		similarityRequestsTotal.WithLabelValues("query", "empty").Inc()
		return
	}
	similarityRequestsTotal.WithLabelValues("query", "ok").Inc()

	if err := p.articleRepo.UpdateFields(ctx, article.ID, map[string]any{
		"similar_articles": pq.Int64Array(ids),
	}); err != nil {
		p.logger.Printf("processor run=%s: storing similar articles for id=%d failed: %v", runID, article.ID, err)
		return
	}
	article.SimilarArticles = pq.Int64Array(ids)
	p.logger.Printf("processor run=%s: found %d similar articles for id=%d", runID, len(ids), article.ID)
}

// runExtraction assembles the extraction input from everything known about
// the article and calls the model.
func (p *ArticleProcessor) runExtraction(ctx context.Context, article *models.Article, runID string) (*ExtractionResult, error) {
	in := ExtractionInput{
		ArticleName:  article.Name,
		Document:     article.SpecFile,
		UnitWeightKg: article.UnitWeight,
	}
	if article.SpecFilename != nil {
		in.Filename = *article.SpecFilename
	}
	if article.Description != nil {
		in.Description = *article.Description
	}
	if article.Comment != nil {
		in.Comment = *article.Comment
	}

	if latest, err := p.orderRepo.LatestForArticle(ctx, article.ID, article.Name); err != nil {
		p.logger.Printf("processor run=%s: latest order lookup for id=%d failed: %v", runID, article.ID, err)
	} else if latest != nil {
		in.LatestOrderPrice = &latest.Price
	}

	in.SimilarArticles = p.similarContext(ctx, article, runID)

	result, err := p.extraction.ExtractCostModel(ctx, in)
	if err != nil {
		extractionRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	extractionRequestsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

// similarContext renders one prompt line per cached similar article.
func (p *ArticleProcessor) similarContext(ctx context.Context, article *models.Article, runID string) []string {
	if len(article.SimilarArticles) == 0 {
		return nil
	}
	lines := make([]string, 0, len(article.SimilarArticles))
	for _, id := range article.SimilarArticles {
		similar, err := p.articleRepo.ByID(ctx, uint(id))
		if err != nil || similar == nil {
			continue
		}
		line := similar.Name
		if similar.UnitWeight != nil {
			line = fmt.Sprintf("%s (unit weight %.3f kg)", line, *similar.UnitWeight)
		}
		if order, err := p.orderRepo.LatestForArticle(ctx, similar.ID, similar.Name); err == nil && order != nil {
			line = fmt.Sprintf("%s, last ordered at %.2f EUR", line, order.Price)
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		p.logger.Printf("processor run=%s: passing %d comparable articles to extraction for id=%d", runID, len(lines), article.ID)
	}
	return lines
}

// persistResult writes the extracted weight and cost-model rows in a single
// transaction. Entries that cannot be resolved are logged and skipped; an
// extraction without a single usable row leaves the previous rows in place.
func (p *ArticleProcessor) persistResult(ctx context.Context, article *models.Article, result *ExtractionResult, runID string) error {
	latest, err := p.indexRepo.LatestPerName(ctx)
	if err != nil {
		return fmt.Errorf("load index snapshot: %w", err)
	}
	latestByName := make(map[string]*models.Index, len(latest))
	for _, idx := range latest {
		latestByName[idx.Name] = idx
	}
	allowed := make(map[string]bool, len(p.cfg.CanonicalIndexNames))
	for _, name := range p.cfg.CanonicalIndexNames {
		allowed[name] = true
	}

	rows := make([]*models.CostModel, 0, len(result.Indices)+3)
	byIndexID := make(map[uint]*models.CostModel)

	for _, entry := range result.Indices {
		if entry.QuantityGrams <= 0 {
			p.logger.Printf("processor run=%s: skipping %q for id=%d: non-positive quantity", runID, entry.IndexName, article.ID)
			continue
		}
		idx := p.resolveExtractedIndex(entry.IndexName, latestByName, allowed)
		if idx == nil {
			p.logger.Printf("processor run=%s: skipping %q for id=%d: no matching index", runID, entry.IndexName, article.ID)
			continue
		}
		if existing, ok := byIndexID[idx.ID]; ok {
			// The model occasionally reports the same material twice.
			existing.Part = utils.Round4(existing.Part + entry.QuantityGrams)
			continue
		}
		row := &models.CostModel{
			ArticleID: article.ID,
			IndexID:   idx.ID,
			Part:      utils.Round4(entry.QuantityGrams),
		}
		byIndexID[idx.ID] = row
		rows = append(rows, row)
	}

	appendDirect := func(indexName, category string, amount *float64, part float64) {
		if amount == nil {
			return
		}
		if indexName == "" {
			p.logger.Printf("processor run=%s: no index configured for %s cost, skipping", runID, category)
			return
		}
		idx := latestByName[indexName]
		if idx == nil {
			p.logger.Printf("processor run=%s: %s index %q not loaded, skipping category for id=%d", runID, category, indexName, article.ID)
			return
		}
		if _, ok := byIndexID[idx.ID]; ok {
			p.logger.Printf("processor run=%s: index %q already used, skipping %s cost for id=%d", runID, indexName, category, article.ID)
			return
		}
		cost := utils.Round4(*amount)
		row := &models.CostModel{
			ArticleID:     article.ID,
			IndexID:       idx.ID,
			Part:          part,
			DirectCostEUR: &cost,
		}
		byIndexID[idx.ID] = row
		rows = append(rows, row)
	}
	appendDirect(p.cfg.LaborIndexName, "labor", result.LaborCostEUR, 1.0)
	appendDirect(p.cfg.ElectricityIndexName, "electricity", result.ElectricityCostEUR, 1.0)
	appendDirect(p.cfg.OtherCostIndexName, "other manufacturing", result.OtherManufacturingCostsEUR, 0.0)

	return repository.WithTransaction(ctx, p.db, func(txCtx context.Context) error {
		if result.TotalWeightGrams > 0 {
			weight := result.TotalWeightGrams / 1000.0
			if err := p.articleRepo.UpdateFields(txCtx, article.ID, map[string]any{
				"unit_weight": weight,
			}); err != nil {
				return fmt.Errorf("update unit weight: %w", err)
			}
		}
		if len(rows) == 0 {
			p.logger.Printf("processor run=%s: no usable cost-model rows for id=%d, keeping existing rows", runID, article.ID)
			return nil
		}
		if err := p.costModelRepo.ReplaceForArticle(txCtx, article.ID, rows); err != nil {
			return fmt.Errorf("replace cost-model rows: %w", err)
		}
		p.logger.Printf("processor run=%s: wrote %d cost-model rows for id=%d", runID, len(rows), article.ID)
		return nil
	})
}

// resolveExtractedIndex maps an extracted index name onto a loaded index row.
// Exact series names win; free-text material names fall back to alias
// matching so an answer like "stainless steel" still lands on the steel
// series. The resolved name must sit on the configured allow-list.
func (p *ArticleProcessor) resolveExtractedIndex(name string, latestByName map[string]*models.Index, allowed map[string]bool) *models.Index {
	idx := latestByName[name]
	if idx == nil {
		idx = ResolveIndex(name, latestByName)
	}
	if idx == nil {
		return nil
	}
	if len(allowed) > 0 && !allowed[idx.Name] {
		return nil
	}
	return idx
}

// markFailed records a terminal failure on a fresh context, so a cancelled
// pipeline can still persist its own failure. A secondary failure here is
// logged and swallowed.
func (p *ArticleProcessor) markFailed(articleID uint, kind models.ProcessingErrorKind, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.articleRepo.UpdateFields(ctx, articleID, map[string]any{
		"processing_status":       models.ProcessingStatusFailed,
		"processing_error_kind":   kind,
		"processing_error":        message,
		"processing_completed_at": utils.UTCNow(),
	}); err != nil {
		p.logger.Printf("processor: recording failure for article id=%d failed: %v", articleID, err)
	}
}

func (p *ArticleProcessor) invalidateBreakdownCache(articleID uint) {
	if p.redisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := p.cachePrefix + utils.BreakdownCacheKey + strconv.FormatUint(uint64(articleID), 10)
	if err := p.redisClient.Del(ctx, key).Err(); err != nil {
		p.logger.Printf("processor: invalidating breakdown cache for article id=%d failed: %v", articleID, err)
	}
}
