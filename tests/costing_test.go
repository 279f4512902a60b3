// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	testingutil "github.com/werkpilot/cost-model-service/testing"
	"github.com/werkpilot/cost-model-service/utils"
)

const (
	testLaborIndexName       = "Arbeitskosten [€/h]"
	testElectricityIndexName = "Strom [€/MWh]"
)

func testProcessingConfig() config.ProcessingConfig {
	return config.ProcessingConfig{
		LaborIndexName:       testLaborIndexName,
		ElectricityIndexName: testElectricityIndexName,
	}
}

func TestComputeCostBuckets(t *testing.T) {
	steel := &models.Index{ID: 1, Name: "Stahl HRB [€/t]", Value: 1000.0, ValuePerGram: utils.ToPtr(0.001)}
	labor := &models.Index{ID: 2, Name: testLaborIndexName, Value: 42.0}
	electricity := &models.Index{ID: 3, Name: testElectricityIndexName, Value: 85.0}

	rows := []*models.CostModel{
		{IndexID: 1, Part: 1000.0},
		{IndexID: 2, Part: 1.0, DirectCostEUR: utils.ToPtr(2.0)},
		{IndexID: 3, Part: 1.0, DirectCostEUR: utils.ToPtr(0.5)},
		// No observation loaded for this row, it must contribute nothing
		{IndexID: 4, Part: 9999.0},
	}
	latestByID := map[uint]*models.Index{1: steel, 2: labor, 3: electricity}

	t.Run("WithoutPrice", func(t *testing.T) {
		b := businessflow.ComputeCostBuckets(rows, latestByID, testLaborIndexName, testElectricityIndexName, nil)
		assert.InDelta(t, 1.0, b.Materials, 1e-9)
		assert.InDelta(t, 2.0, b.Labor, 1e-9)
		assert.InDelta(t, 0.5, b.Electricity, 1e-9)
		assert.InDelta(t, 0.525, b.Overhead, 1e-9)
		assert.InDelta(t, 4.025, b.Base, 1e-9)
		assert.InDelta(t, 4.025, b.Total, 1e-9)
		assert.InDelta(t, 0.0, b.Margin, 1e-9)
	})

	t.Run("WithPrice", func(t *testing.T) {
		b := businessflow.ComputeCostBuckets(rows, latestByID, testLaborIndexName, testElectricityIndexName, utils.ToPtr(5.0))
		assert.InDelta(t, 4.025, b.Base, 1e-9)
		assert.InDelta(t, 5.0, b.Total, 1e-9)
		assert.InDelta(t, 0.975, b.Margin, 1e-9)
	})

	t.Run("OverheadTracksSubtotal", func(t *testing.T) {
		b := businessflow.ComputeCostBuckets(rows, latestByID, testLaborIndexName, testElectricityIndexName, nil)
		assert.InDelta(t, businessflow.OverheadRate*(b.Materials+b.Labor+b.Electricity), b.Overhead, 1e-9)
	})

	t.Run("Empty", func(t *testing.T) {
		b := businessflow.ComputeCostBuckets(nil, nil, testLaborIndexName, testElectricityIndexName, nil)
		assert.Zero(t, b.Base)
		assert.Zero(t, b.Total)
	})
}

func TestCostingFlowBreakdown(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		indexRepo := repository.NewIndexRepository(testDB.DB)
		costModelRepo := repository.NewCostModelRepository(testDB.DB)
		orderRepo := repository.NewOrderRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewCostingFlow(articleRepo, indexRepo, costModelRepo, orderRepo, testProcessingConfig(), nil, nil)

		end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		article, err := fixtures.CreateProcessedArticle("Bracket 100", 1.6)
		require.NoError(t, err)

		// Two steel observations; the cost model references the older one but
		// pricing must use the latest.
		steelSeries, err := fixtures.CreateIndexSeries("Stahl HRB [€/t]", "t", end, 2, 400.0, 100.0)
		require.NoError(t, err)
		labor, err := fixtures.CreateTestIndex(testLaborIndexName, 42.0, end, "h")
		require.NoError(t, err)
		electricity, err := fixtures.CreateTestIndex(testElectricityIndexName, 85.0, end, "MWh")
		require.NoError(t, err)

		_, err = fixtures.CreateTestCostModel(article.ID, steelSeries[0].ID, 1500.0, nil)
		require.NoError(t, err)
		_, err = fixtures.CreateTestCostModel(article.ID, labor.ID, 1.0, utils.ToPtr(2.50))
		require.NoError(t, err)
		_, err = fixtures.CreateTestCostModel(article.ID, electricity.ID, 1.0, utils.ToPtr(0.40))
		require.NoError(t, err)

		t.Run("WithoutOrders", func(t *testing.T) {
			resp, err := flow.GetCostBreakdown(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, article.ID, resp.ArticleID)
			assert.Equal(t, "Bracket 100", resp.ArticleName)
			assert.Equal(t, "EUR", resp.Currency)
			assert.Nil(t, resp.ArticlePrice)

			// 1500 g of steel at the latest 500 €/t observation
			assert.InDelta(t, 0.75, resp.MaterialsCost, 1e-9)
			assert.InDelta(t, 2.50, resp.LaborCost, 1e-9)
			assert.InDelta(t, 0.40, resp.ElectricityCost, 1e-9)
			assert.InDelta(t, 0.5475, resp.OverheadCost, 1e-9)
			assert.InDelta(t, 4.1975, resp.BaseCost, 1e-9)
			assert.InDelta(t, 4.1975, resp.TotalCost, 1e-9)
			assert.InDelta(t, 0.0, resp.ProfitMargin, 1e-9)
		})

		t.Run("WithLatestOrder", func(t *testing.T) {
			_, err := fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 4.60, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 5.00, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			resp, err := flow.GetCostBreakdown(ctx, article.ID)
			require.NoError(t, err)
			require.NotNil(t, resp.ArticlePrice)
			assert.InDelta(t, 5.00, *resp.ArticlePrice, 1e-9)
			assert.InDelta(t, 4.1975, resp.BaseCost, 1e-9)
			assert.InDelta(t, 5.00, resp.TotalCost, 1e-9)
			assert.InDelta(t, 0.8025, resp.ProfitMargin, 1e-9)
		})

		t.Run("ArticleWithoutRows", func(t *testing.T) {
			empty, err := fixtures.CreateTestArticle("Bracket 101")
			require.NoError(t, err)

			resp, err := flow.GetCostBreakdown(ctx, empty.ID)
			require.NoError(t, err)
			assert.Zero(t, resp.MaterialsCost)
			assert.Zero(t, resp.BaseCost)
			assert.Zero(t, resp.TotalCost)
		})

		t.Run("ArticleNotFound", func(t *testing.T) {
			_, err := flow.GetCostBreakdown(ctx, 99999)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCostingFlowIndicesValues(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		indexRepo := repository.NewIndexRepository(testDB.DB)
		costModelRepo := repository.NewCostModelRepository(testDB.DB)
		orderRepo := repository.NewOrderRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewCostingFlow(articleRepo, indexRepo, costModelRepo, orderRepo, testProcessingConfig(), nil, nil)

		end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		article, err := fixtures.CreateProcessedArticle("Bracket 200", 1.6)
		require.NoError(t, err)

		steelSeries, err := fixtures.CreateIndexSeries("Stahl HRB [€/t]", "t", end, 2, 400.0, 100.0)
		require.NoError(t, err)
		labor, err := fixtures.CreateTestIndex(testLaborIndexName, 42.0, end, "h")
		require.NoError(t, err)

		_, err = fixtures.CreateTestCostModel(article.ID, steelSeries[0].ID, 1500.0, nil)
		require.NoError(t, err)
		_, err = fixtures.CreateTestCostModel(article.ID, labor.ID, 1.0, utils.ToPtr(2.50))
		require.NoError(t, err)

		t.Run("SeriesWithPerDateCosts", func(t *testing.T) {
			resp, err := flow.GetIndicesValues(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, article.ID, resp.ArticleID)
			require.Len(t, resp.Indices, 2)

			// Series are returned in name order
			laborSeries := resp.Indices[0]
			assert.Equal(t, testLaborIndexName, laborSeries.IndexName)
			assert.False(t, laborSeries.IsMaterial)
			assert.Equal(t, "h", laborSeries.QuantityUnit)
			require.Len(t, laborSeries.Values, 1)
			// A direct EUR cost is flat across observations
			assert.InDelta(t, 2.50, laborSeries.Values[0].Value, 1e-9)
			assert.InDelta(t, 42.0, laborSeries.Values[0].UnitValue, 1e-9)

			steel := resp.Indices[1]
			assert.Equal(t, "Stahl HRB [€/t]", steel.IndexName)
			assert.True(t, steel.IsMaterial)
			assert.Equal(t, "g", steel.QuantityUnit)
			assert.Equal(t, "t", steel.Unit)
			assert.InDelta(t, 1500.0, steel.QuantityValue, 1e-9)
			require.Len(t, steel.Values, 2)
			assert.InDelta(t, 0.60, steel.Values[0].Value, 1e-9)
			assert.InDelta(t, 400.0, steel.Values[0].UnitValue, 1e-9)
			assert.InDelta(t, 0.75, steel.Values[1].Value, 1e-9)
			assert.InDelta(t, 500.0, steel.Values[1].UnitValue, 1e-9)
		})

		t.Run("ArticleWithoutRows", func(t *testing.T) {
			empty, err := fixtures.CreateTestArticle("Bracket 201")
			require.NoError(t, err)

			resp, err := flow.GetIndicesValues(ctx, empty.ID)
			require.NoError(t, err)
			assert.NotNil(t, resp.Indices)
			assert.Empty(t, resp.Indices)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCostingFlowPriceHistory(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		indexRepo := repository.NewIndexRepository(testDB.DB)
		costModelRepo := repository.NewCostModelRepository(testDB.DB)
		orderRepo := repository.NewOrderRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewCostingFlow(articleRepo, indexRepo, costModelRepo, orderRepo, testProcessingConfig(), nil, nil)

		article, err := fixtures.CreateTestArticle("Bracket 300")
		require.NoError(t, err)

		t.Run("OldestFirstWithNameMatches", func(t *testing.T) {
			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 4.80, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			// Imported row without a reference still counts via the name
			_, err = fixtures.CreateTestOrder(nil, article.Name, 4.20, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			resp, err := flow.GetPriceHistory(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, article.ID, resp.ArticleID)
			require.Len(t, resp.Points, 2)
			assert.InDelta(t, 4.20, resp.Points[0].Price, 1e-9)
			assert.InDelta(t, 4.80, resp.Points[1].Price, 1e-9)
			assert.Equal(t, "2024-01-01", resp.Points[0].OrderDate.Format("2006-01-02"))
		})

		t.Run("NoOrders", func(t *testing.T) {
			lonely, err := fixtures.CreateTestArticle("Bracket 301")
			require.NoError(t, err)

			resp, err := flow.GetPriceHistory(ctx, lonely.ID)
			require.NoError(t, err)
			assert.Empty(t, resp.Points)
		})

		t.Run("ArticleNotFound", func(t *testing.T) {
			_, err := flow.GetPriceHistory(ctx, 99999)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}
