// Package testing provides test utilities and database setup for testing the cost model service
package testing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestArticle creates a pending article with the given name
func (tf *TestFixtures) CreateTestArticle(name string) (*models.Article, error) {
	article := &models.Article{
		UUID:             uuid.New(),
		Name:             name,
		ProcessingStatus: models.ProcessingStatusPending,
	}

	if err := tf.DB.DB.Create(article).Error; err != nil {
		return nil, fmt.Errorf("failed to create test article: %w", err)
	}

	return article, nil
}

// CreateProcessedArticle creates an article that has completed processing
// with the given unit weight in kilograms
func (tf *TestFixtures) CreateProcessedArticle(name string, unitWeight float64) (*models.Article, error) {
	started := utils.UTCNow().Add(-10 * time.Minute)
	completed := utils.UTCNow().Add(-9 * time.Minute)

	article := &models.Article{
		UUID:                  uuid.New(),
		Name:                  name,
		UnitWeight:            utils.ToPtr(unitWeight),
		SpecFile:              []byte("specification"),
		SpecFilename:          utils.ToPtr(name + ".pdf"),
		ProcessingStatus:      models.ProcessingStatusCompleted,
		ProcessingStartedAt:   &started,
		ProcessingCompletedAt: &completed,
	}

	if err := tf.DB.DB.Create(article).Error; err != nil {
		return nil, fmt.Errorf("failed to create processed test article: %w", err)
	}

	return article, nil
}

// CreateStuckArticle creates an article claimed for processing at the given time
func (tf *TestFixtures) CreateStuckArticle(name string, startedAt time.Time) (*models.Article, error) {
	article := &models.Article{
		UUID:                uuid.New(),
		Name:                name,
		SpecFile:            []byte("specification"),
		ProcessingStatus:    models.ProcessingStatusProcessing,
		ProcessingStartedAt: &startedAt,
	}

	if err := tf.DB.DB.Create(article).Error; err != nil {
		return nil, fmt.Errorf("failed to create stuck test article: %w", err)
	}

	return article, nil
}

// CreateTestIndex creates one index observation. Unit, price factor and
// value per gram follow the mass-unit normalization when unit is a mass unit.
func (tf *TestFixtures) CreateTestIndex(name string, value float64, date time.Time, unit string) (*models.Index, error) {
	index := &models.Index{
		Name:  name,
		Value: value,
		Date:  utils.DateOnly(date),
	}
	if unit != "" {
		index.Unit = utils.ToPtr(unit)
	}
	if grams := models.GramsPerUnit(unit); grams > 0 {
		index.PriceFactor = utils.ToPtr(grams)
		index.ValuePerGram = utils.ToPtr(utils.Round6(value / grams))
	} else {
		index.PriceFactor = utils.ToPtr(1.0)
	}

	if err := tf.DB.DB.Create(index).Error; err != nil {
		return nil, fmt.Errorf("failed to create test index: %w", err)
	}

	return index, nil
}

// CreateIndexSeries creates count daily observations for a series ending at
// endDate, with values stepping up by valueStep per day
func (tf *TestFixtures) CreateIndexSeries(name string, unit string, endDate time.Time, count int, startValue, valueStep float64) ([]*models.Index, error) {
	indices := make([]*models.Index, 0, count)
	for i := 0; i < count; i++ {
		date := endDate.AddDate(0, 0, -(count - 1 - i))
		value := startValue + float64(i)*valueStep
		index, err := tf.CreateTestIndex(name, value, date, unit)
		if err != nil {
			return nil, err
		}
		indices = append(indices, index)
	}
	return indices, nil
}

// CreateTestOrder creates one order price point
func (tf *TestFixtures) CreateTestOrder(articleID *uint, articleName string, price float64, orderDate time.Time) (*models.Order, error) {
	order := &models.Order{
		ArticleID:   articleID,
		ArticleName: articleName,
		Price:       price,
		PriceFactor: utils.ToPtr(1.0),
		Unit:        utils.ToPtr("piece"),
		OrderDate:   utils.DateOnly(orderDate),
	}

	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create test order: %w", err)
	}

	return order, nil
}

// CreateTestCostModel links an index to an article with the given mass share
func (tf *TestFixtures) CreateTestCostModel(articleID, indexID uint, part float64, directCostEUR *float64) (*models.CostModel, error) {
	costModel := &models.CostModel{
		ArticleID:     articleID,
		IndexID:       indexID,
		Part:          part,
		DirectCostEUR: directCostEUR,
	}

	if err := tf.DB.DB.Create(costModel).Error; err != nil {
		return nil, fmt.Errorf("failed to create test cost model: %w", err)
	}

	return costModel, nil
}
