package repository

import (
	"context"
	"errors"
	"time"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexRepositoryImpl implements the IndexRepository interface
type IndexRepositoryImpl struct {
	*BaseRepository[models.Index, models.IndexFilter]
}

// NewIndexRepository creates a new index repository
func NewIndexRepository(db *gorm.DB) IndexRepository {
	return &IndexRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Index, models.IndexFilter](db),
	}
}

// ByNameAndDate retrieves the observation of a series at an exact date
func (r *IndexRepositoryImpl) ByNameAndDate(ctx context.Context, name string, date time.Time) (*models.Index, error) {
	db := r.getDB(ctx)

	var index models.Index
	err := db.Where("name = ? AND date = ?", name, utils.DateOnly(date)).First(&index).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &index, nil
}

// LatestByName retrieves the most recent observation of a series
func (r *IndexRepositoryImpl) LatestByName(ctx context.Context, name string) (*models.Index, error) {
	db := r.getDB(ctx)

	var index models.Index
	err := db.Where("name = ?", name).Order("date DESC").First(&index).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &index, nil
}

// LatestPerName retrieves the most recent observation of every series
func (r *IndexRepositoryImpl) LatestPerName(ctx context.Context) ([]*models.Index, error) {
	db := r.getDB(ctx)

	var indices []*models.Index
	err := db.Select("DISTINCT ON (name) *").
		Order("name, date DESC").
		Find(&indices).Error
	if err != nil {
		return nil, err
	}

	return indices, nil
}

// LatestForIDs maps each referenced index id to the most recent observation
// of the series that id belongs to. Cost-model rows reference one fixed
// observation, but contributions are always priced at the latest one.
func (r *IndexRepositoryImpl) LatestForIDs(ctx context.Context, ids []uint) (map[uint]*models.Index, error) {
	out := make(map[uint]*models.Index)
	if len(ids) == 0 {
		return out, nil
	}

	db := r.getDB(ctx)

	var referenced []*models.Index
	if err := db.Where("id IN ?", ids).Find(&referenced).Error; err != nil {
		return nil, err
	}
	if len(referenced) == 0 {
		return out, nil
	}

	names := make([]string, 0, len(referenced))
	for _, idx := range referenced {
		names = append(names, idx.Name)
	}

	var latest []*models.Index
	err := db.Select("DISTINCT ON (name) *").
		Where("name IN ?", names).
		Order("name, date DESC").
		Find(&latest).Error
	if err != nil {
		return nil, err
	}

	latestByName := make(map[string]*models.Index, len(latest))
	for _, idx := range latest {
		latestByName[idx.Name] = idx
	}

	for _, ref := range referenced {
		if idx, ok := latestByName[ref.Name]; ok {
			out[ref.ID] = idx
		}
	}

	return out, nil
}

// HistoryForNames retrieves every observation of the given series, ordered
// by name then date ascending
func (r *IndexRepositoryImpl) HistoryForNames(ctx context.Context, names []string) ([]*models.Index, error) {
	if len(names) == 0 {
		return nil, nil
	}

	db := r.getDB(ctx)

	var indices []*models.Index
	err := db.Where("name IN ?", names).
		Order("name ASC, date ASC").
		Find(&indices).Error
	if err != nil {
		return nil, err
	}

	return indices, nil
}

// DistinctNames lists every known series name
func (r *IndexRepositoryImpl) DistinctNames(ctx context.Context) ([]string, error) {
	db := r.getDB(ctx)

	var names []string
	err := db.Model(&models.Index{}).
		Distinct("name").
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}

	return names, nil
}

// Upsert inserts an observation or, when (name, date) already exists,
// overwrites its value fields. The second write wins.
func (r *IndexRepositoryImpl) Upsert(ctx context.Context, index *models.Index) error {
	db := r.getDB(ctx)

	index.Date = utils.DateOnly(index.Date)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":          clause.Expr{SQL: "EXCLUDED.value"},
			"value_per_gram": clause.Expr{SQL: "EXCLUDED.value_per_gram"},
			"price_factor":   clause.Expr{SQL: "EXCLUDED.price_factor"},
			"unit":           clause.Expr{SQL: "EXCLUDED.unit"},
			"updated_at":     utils.UTCNow(),
		}),
	}).Create(index).Error
}

// Update updates an observation
func (r *IndexRepositoryImpl) Update(ctx context.Context, index models.Index) error {
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

	now := utils.UTCNow()
	index.UpdatedAt = &now
	index.Date = utils.DateOnly(index.Date)

	err = db.Save(&index).Error
	if err != nil {
		return err
	}

	return nil
}

// Delete removes an observation. Dependent cost-model rows cascade.
func (r *IndexRepositoryImpl) Delete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	return db.Delete(&models.Index{}, id).Error
}

// ByFilter retrieves indices based on filter criteria
func (r *IndexRepositoryImpl) ByFilter(ctx context.Context, filter models.IndexFilter, orderBy string, limit, offset int) ([]*models.Index, error) {
	db := r.getDB(ctx)

	var indices []*models.Index
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

	err := query.Find(&indices).Error
	if err != nil {
		return nil, err
	}

	return indices, nil
}

// Count returns the number of indices matching the filter
func (r *IndexRepositoryImpl) Count(ctx context.Context, filter models.IndexFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Index{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any index matching the filter exists
func (r *IndexRepositoryImpl) Exists(ctx context.Context, filter models.IndexFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *IndexRepositoryImpl) applyFilter(db *gorm.DB, filter models.IndexFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	if filter.Date != nil {
		db = db.Where("date = ?", utils.DateOnly(*filter.Date))
	}
	if filter.DateAfter != nil {
		db = db.Where("date >= ?", utils.DateOnly(*filter.DateAfter))
	}
	if filter.DateBefore != nil {
		db = db.Where("date <= ?", utils.DateOnly(*filter.DateBefore))
	}

	return db
}
