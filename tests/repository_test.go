// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	testingutil "github.com/werkpilot/cost-model-service/testing"
	"github.com/werkpilot/cost-model-service/utils"
)

func TestArticleRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("SaveAndByID", func(t *testing.T) {
			article := &models.Article{
				Name:        "Flange 20",
				Description: utils.ToPtr("forged flange"),
			}
			err := repo.Save(ctx, article)
			require.NoError(t, err)
			require.NotZero(t, article.ID)

			loaded, err := repo.ByID(ctx, article.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, "Flange 20", loaded.Name)
			assert.Equal(t, models.ProcessingStatusPending, loaded.ProcessingStatus)
		})

		t.Run("ByIDNotFound", func(t *testing.T) {
			loaded, err := repo.ByID(ctx, 99999)
			assert.NoError(t, err)
			assert.Nil(t, loaded)
		})

		t.Run("ByName", func(t *testing.T) {
			_, err := fixtures.CreateTestArticle("Flange 21")
			require.NoError(t, err)

			loaded, err := repo.ByName(ctx, "Flange 21")
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, "Flange 21", loaded.Name)

			missing, err := repo.ByName(ctx, "No Such Article")
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ByFilterAndCount", func(t *testing.T) {
			_, err := fixtures.CreateProcessedArticle("Flange 22", 1.5)
			require.NoError(t, err)

			status := models.ProcessingStatusCompleted
			rows, err := repo.ByFilter(ctx, models.ArticleFilter{ProcessingStatus: &status}, "created_at DESC", 0, 0)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Flange 22", rows[0].Name)

			count, err := repo.Count(ctx, models.ArticleFilter{ProcessingStatus: &status})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			exists, err := repo.Exists(ctx, models.ArticleFilter{Name: utils.ToPtr("Flange 22")})
			require.NoError(t, err)
			assert.True(t, exists)
		})

		t.Run("UpdateFields", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flange 23")
			require.NoError(t, err)

			err = repo.UpdateFields(ctx, article.ID, map[string]any{
				"unit_weight": 2.75,
				"comment":     "weighed on the line",
			})
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, article.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded.UnitWeight)
			assert.Equal(t, 2.75, *loaded.UnitWeight)
			require.NotNil(t, loaded.Comment)
			assert.Equal(t, "weighed on the line", *loaded.Comment)
			assert.NotNil(t, loaded.UpdatedAt)
		})

		t.Run("ClaimProcessing", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flange 24")
			require.NoError(t, err)

			claimed, err := repo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			assert.True(t, claimed)

			loaded, err := repo.ByID(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ProcessingStatusProcessing, loaded.ProcessingStatus)
			assert.NotNil(t, loaded.ProcessingStartedAt)
			assert.Nil(t, loaded.ProcessingCompletedAt)

			// A second claim while the first run is live must lose
			claimed, err = repo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			assert.False(t, claimed)
		})

		t.Run("ClaimProcessingResetsFailure", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flange 25")
			require.NoError(t, err)
			err = repo.UpdateFields(ctx, article.ID, map[string]any{
				"processing_status":       models.ProcessingStatusFailed,
				"processing_error_kind":   models.ProcessingErrorExtractionFailed,
				"processing_error":        "model returned garbage",
				"processing_completed_at": utils.UTCNow(),
			})
			require.NoError(t, err)

			claimed, err := repo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			assert.True(t, claimed)

			loaded, err := repo.ByID(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ProcessingStatusProcessing, loaded.ProcessingStatus)
			assert.Nil(t, loaded.ProcessingError)
			assert.Nil(t, loaded.ProcessingErrorKind)
			assert.Nil(t, loaded.ProcessingCompletedAt)
		})

		t.Run("ListStuckProcessing", func(t *testing.T) {
			stuck, err := fixtures.CreateStuckArticle("Flange 26", utils.UTCNow().Add(-2*time.Hour))
			require.NoError(t, err)
			_, err = fixtures.CreateStuckArticle("Flange 27", utils.UTCNow().Add(-time.Minute))
			require.NoError(t, err)

			rows, err := repo.ListStuckProcessing(ctx, utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, stuck.ID, rows[0].ID)
		})

		t.Run("Delete", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flange 28")
			require.NoError(t, err)

			err = repo.Delete(ctx, article.ID)
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, article.ID)
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestIndexRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewIndexRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

		t.Run("ByNameAndDate", func(t *testing.T) {
			date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			created, err := fixtures.CreateTestIndex("Kupfer [€/t]", 9200.0, date, "t")
			require.NoError(t, err)

			loaded, err := repo.ByNameAndDate(ctx, "Kupfer [€/t]", date)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, created.ID, loaded.ID)

			missing, err := repo.ByNameAndDate(ctx, "Kupfer [€/t]", date.AddDate(0, 0, 1))
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("LatestByName", func(t *testing.T) {
			series, err := fixtures.CreateIndexSeries("Stahl HRB [€/t]", "t", end, 3, 500.0, 20.0)
			require.NoError(t, err)
			require.Len(t, series, 3)

			latest, err := repo.LatestByName(ctx, "Stahl HRB [€/t]")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, end.Format("2006-01-02"), latest.Date.Format("2006-01-02"))
			assert.Equal(t, 540.0, latest.Value)

			missing, err := repo.LatestByName(ctx, "No Such Series")
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("LatestPerName", func(t *testing.T) {
			rows, err := repo.LatestPerName(ctx)
			require.NoError(t, err)

			byName := make(map[string]*models.Index, len(rows))
			for _, row := range rows {
				byName[row.Name] = row
			}
			require.Contains(t, byName, "Stahl HRB [€/t]")
			assert.Equal(t, 540.0, byName["Stahl HRB [€/t]"].Value)
			require.Contains(t, byName, "Kupfer [€/t]")
		})

		t.Run("LatestForIDs", func(t *testing.T) {
			series, err := fixtures.CreateIndexSeries("Alu [€/t]", "t", end, 3, 2300.0, 50.0)
			require.NoError(t, err)
			oldest := series[0]

			// Referencing an old observation still resolves to the latest one
			// of the same series
			latest, err := repo.LatestForIDs(ctx, []uint{oldest.ID})
			require.NoError(t, err)
			require.Contains(t, latest, oldest.ID)
			assert.Equal(t, 2400.0, latest[oldest.ID].Value)
			assert.Equal(t, end.Format("2006-01-02"), latest[oldest.ID].Date.Format("2006-01-02"))

			empty, err := repo.LatestForIDs(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})

		t.Run("HistoryForNames", func(t *testing.T) {
			rows, err := repo.HistoryForNames(ctx, []string{"Stahl HRB [€/t]"})
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.True(t, rows[0].Date.Before(rows[1].Date))
			assert.True(t, rows[1].Date.Before(rows[2].Date))
			assert.Equal(t, 500.0, rows[0].Value)

			none, err := repo.HistoryForNames(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, none)
		})

		t.Run("DistinctNames", func(t *testing.T) {
			names, err := repo.DistinctNames(ctx)
			require.NoError(t, err)
			assert.Contains(t, names, "Stahl HRB [€/t]")
			assert.Contains(t, names, "Kupfer [€/t]")
			assert.Contains(t, names, "Alu [€/t]")
			assert.IsIncreasing(t, names)
		})

		t.Run("UpsertOverwritesSameDay", func(t *testing.T) {
			date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
			first := &models.Index{
				Name:        "PP [€/kg]",
				Value:       1.20,
				Date:        date,
				PriceFactor: utils.ToPtr(1000.0),
				Unit:        utils.ToPtr("kg"),
			}
			err := repo.Upsert(ctx, first)
			require.NoError(t, err)

			second := &models.Index{
				Name:         "PP [€/kg]",
				Value:        1.30,
				ValuePerGram: utils.ToPtr(0.0013),
				Date:         date,
				PriceFactor:  utils.ToPtr(1000.0),
				Unit:         utils.ToPtr("kg"),
			}
			err = repo.Upsert(ctx, second)
			require.NoError(t, err)

			count, err := repo.Count(ctx, models.IndexFilter{Name: utils.ToPtr("PP [€/kg]"), Date: &date})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			loaded, err := repo.ByNameAndDate(ctx, "PP [€/kg]", date)
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, 1.30, loaded.Value)
			require.NotNil(t, loaded.ValuePerGram)
			assert.InDelta(t, 0.0013, *loaded.ValuePerGram, 1e-9)
		})

		t.Run("Update", func(t *testing.T) {
			index, err := fixtures.CreateTestIndex("Zink [€/t]", 2600.0, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), "t")
			require.NoError(t, err)

			index.Value = 2650.0
			err = repo.Update(ctx, *index)
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, index.ID)
			require.NoError(t, err)
			assert.Equal(t, 2650.0, loaded.Value)
			assert.NotNil(t, loaded.UpdatedAt)
		})

		t.Run("Delete", func(t *testing.T) {
			index, err := fixtures.CreateTestIndex("Blei [€/t]", 2000.0, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), "t")
			require.NoError(t, err)

			err = repo.Delete(ctx, index.ID)
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, index.ID)
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestOrderRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewOrderRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("LatestForArticle", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Valve 1")
			require.NoError(t, err)

			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 4.00, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 4.50, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			latest, err := repo.LatestForArticle(ctx, article.ID, article.Name)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 4.50, latest.Price)
		})

		t.Run("LatestForArticleSameDateTieBreak", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Valve 2")
			require.NoError(t, err)

			date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 5.00, date)
			require.NoError(t, err)
			second, err := fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 5.10, date)
			require.NoError(t, err)

			latest, err := repo.LatestForArticle(ctx, article.ID, article.Name)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, second.ID, latest.ID)
		})

		t.Run("LatestForArticleMatchesByName", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Valve 3")
			require.NoError(t, err)

			// Imported order carries the name but no reference
			_, err = fixtures.CreateTestOrder(nil, article.Name, 6.00, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			latest, err := repo.LatestForArticle(ctx, article.ID, article.Name)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 6.00, latest.Price)

			missing, err := repo.LatestForArticle(ctx, 99999, "No Such Article")
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("HistoryForArticle", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Valve 4")
			require.NoError(t, err)

			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 7.50, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			_, err = fixtures.CreateTestOrder(nil, article.Name, 7.00, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			history, err := repo.HistoryForArticle(ctx, article.ID, article.Name)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, 7.00, history[0].Price)
			assert.Equal(t, 7.50, history[1].Price)
		})

		t.Run("FindDuplicate", func(t *testing.T) {
			date := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
			created, err := fixtures.CreateTestOrder(nil, "Valve 5", 8.25, date)
			require.NoError(t, err)

			dup, err := repo.FindDuplicate(ctx, "Valve 5", date, 8.25)
			require.NoError(t, err)
			require.NotNil(t, dup)
			assert.Equal(t, created.ID, dup.ID)

			missing, err := repo.FindDuplicate(ctx, "Valve 5", date, 9.99)
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ClearArticleRef", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Valve 6")
			require.NoError(t, err)
			other, err := fixtures.CreateTestArticle("Valve 7")
			require.NoError(t, err)

			first, err := fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 1.00, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			second, err := fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 1.10, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			untouched, err := fixtures.CreateTestOrder(utils.ToPtr(other.ID), other.Name, 2.00, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			err = repo.ClearArticleRef(ctx, article.ID)
			require.NoError(t, err)

			for _, id := range []uint{first.ID, second.ID} {
				loaded, err := repo.ByID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, loaded)
				assert.Nil(t, loaded.ArticleID)
				assert.Equal(t, article.Name, loaded.ArticleName)
			}

			loaded, err := repo.ByID(ctx, untouched.ID)
			require.NoError(t, err)
			require.NotNil(t, loaded.ArticleID)
			assert.Equal(t, other.ID, *loaded.ArticleID)
		})

		t.Run("UpdatePreservesCreatedAt", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(nil, "Valve 8", 3.50, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			createdAt := order.CreatedAt

			order.Price = 3.80
			err = repo.Update(ctx, *order)
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, 3.80, loaded.Price)
			assert.WithinDuration(t, createdAt, loaded.CreatedAt, time.Second)
		})

		t.Run("Delete", func(t *testing.T) {
			order, err := fixtures.CreateTestOrder(nil, "Valve 9", 4.40, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			err = repo.Delete(ctx, order.ID)
			require.NoError(t, err)

			loaded, err := repo.ByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCostModelRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCostModelRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		t.Run("UpsertAndByArticleAndIndex", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 1")
			require.NoError(t, err)
			index, err := fixtures.CreateTestIndex("Stahl HRB [€/t]", 540.0, date, "t")
			require.NoError(t, err)

			err = repo.Upsert(ctx, &models.CostModel{ArticleID: article.ID, IndexID: index.ID, Part: 1200.0})
			require.NoError(t, err)

			row, err := repo.ByArticleAndIndex(ctx, article.ID, index.ID)
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, 1200.0, row.Part)
			require.NotNil(t, row.Index)
			assert.Equal(t, "Stahl HRB [€/t]", row.Index.Name)

			// Upserting the same pair overwrites, it does not duplicate
			err = repo.Upsert(ctx, &models.CostModel{ArticleID: article.ID, IndexID: index.ID, Part: 1500.0})
			require.NoError(t, err)

			rows, err := repo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, 1500.0, rows[0].Part)
		})

		t.Run("ByArticleIDOrdersByIndex", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 2")
			require.NoError(t, err)
			copper, err := fixtures.CreateTestIndex("Kupfer [€/t]", 9200.0, date, "t")
			require.NoError(t, err)
			labor, err := fixtures.CreateTestIndex("Arbeitskosten [€/h]", 42.0, date, "h")
			require.NoError(t, err)

			_, err = fixtures.CreateTestCostModel(article.ID, labor.ID, 1.0, utils.ToPtr(2.5))
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, copper.ID, 300.0, nil)
			require.NoError(t, err)

			rows, err := repo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.True(t, rows[0].IndexID < rows[1].IndexID)
			for _, row := range rows {
				require.NotNil(t, row.Index, "index preloaded for row %d", row.IndexID)
			}
		})

		t.Run("ListPreloadsBothSides", func(t *testing.T) {
			rows, err := repo.List(ctx)
			require.NoError(t, err)
			require.NotEmpty(t, rows)
			for _, row := range rows {
				assert.NotNil(t, row.Article)
				assert.NotNil(t, row.Index)
			}
		})

		t.Run("Update", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 3")
			require.NoError(t, err)
			index, err := fixtures.CreateTestIndex("Alu [€/t]", 2400.0, date, "t")
			require.NoError(t, err)
			row, err := fixtures.CreateTestCostModel(article.ID, index.ID, 100.0, nil)
			require.NoError(t, err)

			row.Part = 0.0
			row.DirectCostEUR = utils.ToPtr(1.75)
			err = repo.Update(ctx, *row)
			require.NoError(t, err)

			loaded, err := repo.ByArticleAndIndex(ctx, article.ID, index.ID)
			require.NoError(t, err)
			assert.Equal(t, 0.0, loaded.Part)
			require.NotNil(t, loaded.DirectCostEUR)
			assert.Equal(t, 1.75, *loaded.DirectCostEUR)
		})

		t.Run("ReplaceForArticle", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 4")
			require.NoError(t, err)
			steel, err := fixtures.CreateTestIndex("Stahl kalt [€/t]", 600.0, date, "t")
			require.NoError(t, err)
			zinc, err := fixtures.CreateTestIndex("Zink [€/t]", 2600.0, date, "t")
			require.NoError(t, err)
			brass, err := fixtures.CreateTestIndex("Messing [€/kg]", 5.60, date, "kg")
			require.NoError(t, err)

			_, err = fixtures.CreateTestCostModel(article.ID, steel.ID, 900.0, nil)
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, zinc.ID, 50.0, nil)
			require.NoError(t, err)

			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				return repo.ReplaceForArticle(txCtx, article.ID, []*models.CostModel{
					{ArticleID: article.ID, IndexID: brass.ID, Part: 400.0},
				})
			})
			require.NoError(t, err)

			rows, err := repo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, brass.ID, rows[0].IndexID)
			assert.Equal(t, 400.0, rows[0].Part)
		})

		t.Run("DeleteForArticle", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 5")
			require.NoError(t, err)
			index, err := fixtures.CreateTestIndex("Nickel [€/t]", 16000.0, date, "t")
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, index.ID, 20.0, nil)
			require.NoError(t, err)

			err = repo.DeleteForArticle(ctx, article.ID)
			require.NoError(t, err)

			rows, err := repo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("Delete", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Pump 6")
			require.NoError(t, err)
			index, err := fixtures.CreateTestIndex("Chrom [€/t]", 8000.0, date, "t")
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, index.ID, 10.0, nil)
			require.NoError(t, err)

			err = repo.Delete(ctx, article.ID, index.ID)
			require.NoError(t, err)

			row, err := repo.ByArticleAndIndex(ctx, article.ID, index.ID)
			require.NoError(t, err)
			assert.Nil(t, row)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestWithTransaction(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewArticleRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("CommitPersists", func(t *testing.T) {
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				return repo.Save(txCtx, &models.Article{Name: "Tx Commit"})
			})
			require.NoError(t, err)

			loaded, err := repo.ByName(ctx, "Tx Commit")
			require.NoError(t, err)
			assert.NotNil(t, loaded)
		})

		t.Run("RollbackDiscards", func(t *testing.T) {
			boom := errors.New("boom")
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				if err := repo.Save(txCtx, &models.Article{Name: "Tx Rollback"}); err != nil {
					return err
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			loaded, err := repo.ByName(ctx, "Tx Rollback")
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})

		t.Run("PanicRollsBack", func(t *testing.T) {
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				if err := repo.Save(txCtx, &models.Article{Name: "Tx Panic"}); err != nil {
					return err
				}
				panic("unexpected")
			})
			require.Error(t, err)

			loaded, err := repo.ByName(ctx, "Tx Panic")
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})

		return nil
	})
	require.NoError(t, err)
}
