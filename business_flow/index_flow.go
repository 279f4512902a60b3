package businessflow

import (
	"context"

	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// IndexFlow handles the price-index CRUD business logic
type IndexFlow interface {
	UpsertIndex(ctx context.Context, req *dto.CreateIndexRequest, metadata *ClientMetadata) (*dto.UpsertIndexResponse, error)
	ListIndices(ctx context.Context, req *dto.ListIndicesRequest) (*dto.ListIndicesResponse, error)
	GetIndexNames(ctx context.Context) (*dto.IndexNamesResponse, error)
	GetIndex(ctx context.Context, indexID uint) (*dto.IndexDTO, error)
	UpdateIndex(ctx context.Context, req *dto.UpdateIndexRequest, metadata *ClientMetadata) (*dto.IndexDTO, error)
	DeleteIndex(ctx context.Context, indexID uint) error
}

// IndexFlowImpl implements the index business flow
type IndexFlowImpl struct {
	indexRepo repository.IndexRepository
	db        *gorm.DB
}

// NewIndexFlow creates a new index flow instance
func NewIndexFlow(
	indexRepo repository.IndexRepository,
	db *gorm.DB,
) IndexFlow {
	return &IndexFlowImpl{
		indexRepo: indexRepo,
		db:        db,
	}
}

// UpsertIndex records a price observation. Posting an existing (name, date)
// pair overwrites that row instead of failing, so bulk loaders and manual
// corrections share one write path.
func (s *IndexFlowImpl) UpsertIndex(ctx context.Context, req *dto.CreateIndexRequest, metadata *ClientMetadata) (*dto.UpsertIndexResponse, error) {
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		return nil, NewBusinessErrorf("INVALID_DATE", "Cannot parse date %q", ErrInvalidDate, req.Date)
	}

	index := models.Index{
		Name:         req.Name,
		Value:        req.Value,
		ValuePerGram: req.ValuePerGram,
		Date:         date,
		PriceFactor:  req.PriceFactor,
		Unit:         req.Unit,
	}
	normalizeIndex(&index)

	existing, err := s.indexRepo.ByNameAndDate(ctx, index.Name, index.Date)
	if err != nil {
		return nil, NewBusinessError("INDEX_LOOKUP_FAILED", "Failed to check index observation", err)
	}

	if err := s.indexRepo.Upsert(ctx, &index); err != nil {
		return nil, NewBusinessError("INDEX_UPSERT_FAILED", "Failed to save index observation", err)
	}

	saved, err := s.indexRepo.ByNameAndDate(ctx, index.Name, index.Date)
	if err != nil || saved == nil {
		return nil, NewBusinessError("INDEX_LOOKUP_FAILED", "Failed to reload index observation", err)
	}

	message := "Index observation updated successfully"
	if existing == nil {
		message = "Index observation created successfully"
	}

	return &dto.UpsertIndexResponse{
		Message: message,
		Created: existing == nil,
		Index:   ToIndexDTO(*saved),
	}, nil
}

// normalizeIndex fills the derived pricing fields the caller left out.
// Mass-unit series get their grams-per-unit price factor and a precomputed
// per-gram value; everything else prices one unit at a time.
func normalizeIndex(index *models.Index) {
	if index.Unit != nil && models.IsMassUnit(*index.Unit) {
		grams := models.GramsPerUnit(*index.Unit)
		if index.PriceFactor == nil {
			index.PriceFactor = utils.ToPtr(grams)
		}
		if index.ValuePerGram == nil && grams > 0 {
			index.ValuePerGram = utils.ToPtr(utils.Round6(index.Value / grams))
		}
		return
	}
	if index.PriceFactor == nil {
		index.PriceFactor = utils.ToPtr(1.0)
	}
}

// ListIndices retrieves index rows, optionally narrowed to one series or
// collapsed to the most recent observation per series
func (s *IndexFlowImpl) ListIndices(ctx context.Context, req *dto.ListIndicesRequest) (*dto.ListIndicesResponse, error) {
	var (
		rows []*models.Index
		err  error
	)

	switch {
	case req.Latest && req.Name != nil && *req.Name != "":
		var row *models.Index
		row, err = s.indexRepo.LatestByName(ctx, *req.Name)
		if row != nil {
			rows = append(rows, row)
		}
	case req.Latest:
		rows, err = s.indexRepo.LatestPerName(ctx)
	default:
		filter := models.IndexFilter{}
		if req.Name != nil && *req.Name != "" {
			filter.Name = req.Name
		}
		rows, err = s.indexRepo.ByFilter(ctx, filter, "date DESC, name ASC", 0, 0)
	}
	if err != nil {
		return nil, NewBusinessError("LIST_INDICES_FAILED", "Failed to list indices", err)
	}

	items := make([]dto.IndexDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToIndexDTO(*row))
	}

	return &dto.ListIndicesResponse{
		Message: "Indices retrieved successfully",
		Items:   items,
	}, nil
}

// GetIndexNames lists the distinct series names known to the store
func (s *IndexFlowImpl) GetIndexNames(ctx context.Context) (*dto.IndexNamesResponse, error) {
	names, err := s.indexRepo.DistinctNames(ctx)
	if err != nil {
		return nil, NewBusinessError("LIST_INDICES_FAILED", "Failed to list index names", err)
	}

	return &dto.IndexNamesResponse{
		Message: "Index names retrieved successfully",
		Names:   names,
	}, nil
}

// GetIndex retrieves a single index row by id
func (s *IndexFlowImpl) GetIndex(ctx context.Context, indexID uint) (*dto.IndexDTO, error) {
	index, err := getIndex(ctx, s.indexRepo, indexID)
	if err != nil {
		return nil, err
	}

	out := ToIndexDTO(*index)
	return &out, nil
}

// UpdateIndex applies a partial update to an existing index row. Fields are
// written as given, without re-deriving value_per_gram.
func (s *IndexFlowImpl) UpdateIndex(ctx context.Context, req *dto.UpdateIndexRequest, metadata *ClientMetadata) (*dto.IndexDTO, error) {
	index, err := getIndex(ctx, s.indexRepo, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Value != nil {
		index.Value = *req.Value
	}
	if req.ValuePerGram != nil {
		index.ValuePerGram = req.ValuePerGram
	}
	if req.Date != nil {
		date, err := utils.ParseDate(*req.Date)
		if err != nil {
			return nil, NewBusinessErrorf("INVALID_DATE", "Cannot parse date %q", ErrInvalidDate, *req.Date)
		}
		index.Date = date
	}
	if req.PriceFactor != nil {
		index.PriceFactor = req.PriceFactor
	}
	if req.Unit != nil {
		index.Unit = req.Unit
	}

	if err := s.indexRepo.Update(ctx, *index); err != nil {
		return nil, NewBusinessError("INDEX_UPDATE_FAILED", "Failed to update index", err)
	}

	updated, err := s.indexRepo.ByID(ctx, index.ID)
	if err != nil || updated == nil {
		return nil, NewBusinessError("INDEX_LOOKUP_FAILED", "Failed to reload index", err)
	}

	out := ToIndexDTO(*updated)
	return &out, nil
}

// DeleteIndex removes an index row. Cost-model rows referencing it cascade.
func (s *IndexFlowImpl) DeleteIndex(ctx context.Context, indexID uint) error {
	index, err := getIndex(ctx, s.indexRepo, indexID)
	if err != nil {
		return err
	}

	if err := s.indexRepo.Delete(ctx, index.ID); err != nil {
		return NewBusinessError("INDEX_DELETION_FAILED", "Failed to delete index", err)
	}
	return nil
}

// getIndex loads an index row by id, mapping absence to the not-found error
func getIndex(ctx context.Context, repo repository.IndexRepository, indexID uint) (*models.Index, error) {
	if indexID == 0 {
		return nil, NewBusinessError("INDEX_NOT_FOUND", "Index not found", ErrIndexNotFound)
	}
	index, err := repo.ByID(ctx, indexID)
	if err != nil {
		return nil, NewBusinessError("INDEX_LOOKUP_FAILED", "Failed to lookup index", err)
	}
	if index == nil {
		return nil, NewBusinessError("INDEX_NOT_FOUND", "Index not found", ErrIndexNotFound)
	}
	return index, nil
}
