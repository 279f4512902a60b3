// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkpilot/cost-model-service/app/services"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	testingutil "github.com/werkpilot/cost-model-service/testing"
	"github.com/werkpilot/cost-model-service/utils"
)

const (
	testSteelIndexName = "Stahl HRB [€/t] (SteelBenchmarker)"
	testOtherIndexName = "Sonstige Fertigungskosten [€]"
)

// stubExtraction returns a canned result or error and records its inputs
type stubExtraction struct {
	result   *services.ExtractionResult
	err      error
	panicMsg string
	inputs   []services.ExtractionInput
}

func (s *stubExtraction) ExtractCostModel(ctx context.Context, in services.ExtractionInput) (*services.ExtractionResult, error) {
	s.inputs = append(s.inputs, in)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubExtraction) EstimateText(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

// stubSimilarity reports fixed neighbor ids
type stubSimilarity struct {
	ids      []int64
	ingested bool
}

func (s *stubSimilarity) Ingest(ctx context.Context, articleID uint, articleName string, document []byte, filename string) bool {
	s.ingested = true
	return true
}

func (s *stubSimilarity) FindSimilar(ctx context.Context, articleID uint, topK int, threshold float64) []int64 {
	return s.ids
}

func processorTestConfig() config.ProcessingConfig {
	return config.ProcessingConfig{
		Enabled:              true,
		CanonicalIndexNames:  []string{testSteelIndexName, "Kupfer [€/t]"},
		LaborIndexName:       testLaborIndexName,
		ElectricityIndexName: testElectricityIndexName,
		OtherCostIndexName:   testOtherIndexName,
		SimilarTopK:          2,
		SimilarThreshold:     0.7,
	}
}

func newTestProcessor(testDB *testingutil.TestDB, ext services.ExtractionClient, sim services.SimilarityClient) *services.ArticleProcessor {
	return services.NewArticleProcessor(
		repository.NewArticleRepository(testDB.DB),
		repository.NewIndexRepository(testDB.DB),
		repository.NewCostModelRepository(testDB.DB),
		repository.NewOrderRepository(testDB.DB),
		ext,
		sim,
		testDB.DB,
		nil,
		"",
		processorTestConfig(),
		log.New(io.Discard, "", 0),
	)
}

func TestArticleProcessorProcess(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		costModelRepo := repository.NewCostModelRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		steel, err := fixtures.CreateTestIndex(testSteelIndexName, 500.0, date, "t")
		require.NoError(t, err)
		labor, err := fixtures.CreateTestIndex(testLaborIndexName, 42.0, date, "h")
		require.NoError(t, err)
		electricity, err := fixtures.CreateTestIndex(testElectricityIndexName, 85.0, date, "MWh")
		require.NoError(t, err)
		other, err := fixtures.CreateTestIndex(testOtherIndexName, 1.0, date, "")
		require.NoError(t, err)

		t.Run("FullPipeline", func(t *testing.T) {
			article, err := fixtures.CreateProcessedArticle("Bracket 100", 1.2)
			require.NoError(t, err)
			neighbor, err := fixtures.CreateProcessedArticle("Bracket 99", 1.5)
			require.NoError(t, err)
			_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 4.20, date)
			require.NoError(t, err)
			_, err = fixtures.CreateTestOrder(utils.ToPtr(neighbor.ID), neighbor.Name, 6.00, date)
			require.NoError(t, err)

			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			ext := &stubExtraction{result: &services.ExtractionResult{
				Indices: []services.ExtractedIndexQuantity{
					{IndexName: testSteelIndexName, QuantityGrams: 1200.0},
					// Free-text material names resolve through aliases
					{IndexName: "stainless steel housing", QuantityGrams: 300.0},
					{IndexName: "Unobtainium", QuantityGrams: 50.0},
					{IndexName: "Kupfer [€/t]", QuantityGrams: -5.0},
				},
				TotalWeightGrams:           1600.0,
				LaborCostEUR:               utils.ToPtr(2.50),
				ElectricityCostEUR:         utils.ToPtr(0.40),
				OtherManufacturingCostsEUR: utils.ToPtr(0.30),
			}}
			sim := &stubSimilarity{ids: []int64{int64(neighbor.ID)}}

			processor := newTestProcessor(testDB, ext, sim)
			processor.Process(ctx, article.ID)

			reloaded, err := articleRepo.ByID(ctx, article.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, models.ProcessingStatusCompleted, reloaded.ProcessingStatus)
			assert.Nil(t, reloaded.ProcessingError)
			assert.Nil(t, reloaded.ProcessingErrorKind)
			assert.NotNil(t, reloaded.ProcessingCompletedAt)
			require.NotNil(t, reloaded.UnitWeight)
			assert.InDelta(t, 1.6, *reloaded.UnitWeight, 1e-9)
			require.Len(t, reloaded.SimilarArticles, 1)
			assert.Equal(t, int64(neighbor.ID), reloaded.SimilarArticles[0])

			rows, err := costModelRepo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 4)
			byIndex := make(map[uint]*models.CostModel, len(rows))
			for _, row := range rows {
				byIndex[row.IndexID] = row
			}

			// Exact and alias hits on the same series are merged
			require.Contains(t, byIndex, steel.ID)
			assert.InDelta(t, 1500.0, byIndex[steel.ID].Part, 1e-9)
			assert.Nil(t, byIndex[steel.ID].DirectCostEUR)

			require.Contains(t, byIndex, labor.ID)
			assert.InDelta(t, 1.0, byIndex[labor.ID].Part, 1e-9)
			require.NotNil(t, byIndex[labor.ID].DirectCostEUR)
			assert.InDelta(t, 2.50, *byIndex[labor.ID].DirectCostEUR, 1e-9)

			require.Contains(t, byIndex, electricity.ID)
			require.NotNil(t, byIndex[electricity.ID].DirectCostEUR)
			assert.InDelta(t, 0.40, *byIndex[electricity.ID].DirectCostEUR, 1e-9)

			require.Contains(t, byIndex, other.ID)
			assert.InDelta(t, 0.0, byIndex[other.ID].Part, 1e-9)
			require.NotNil(t, byIndex[other.ID].DirectCostEUR)
			assert.InDelta(t, 0.30, *byIndex[other.ID].DirectCostEUR, 1e-9)

			// The extraction saw the article context
			assert.True(t, sim.ingested)
			require.Len(t, ext.inputs, 1)
			in := ext.inputs[0]
			assert.Equal(t, "Bracket 100", in.ArticleName)
			require.NotNil(t, in.LatestOrderPrice)
			assert.InDelta(t, 4.20, *in.LatestOrderPrice, 1e-9)
			require.Len(t, in.SimilarArticles, 1)
			assert.Contains(t, in.SimilarArticles[0], "Bracket 99")
			assert.Contains(t, in.SimilarArticles[0], "6.00 EUR")
		})

		t.Run("EmptyResultKeepsExistingRows", func(t *testing.T) {
			article, err := fixtures.CreateProcessedArticle("Bracket 200", 2.0)
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, steel.ID, 1100.0, nil)
			require.NoError(t, err)

			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			ext := &stubExtraction{result: &services.ExtractionResult{}}
			processor := newTestProcessor(testDB, ext, &stubSimilarity{})
			processor.Process(ctx, article.ID)

			reloaded, err := articleRepo.ByID(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ProcessingStatusCompleted, reloaded.ProcessingStatus)
			require.NotNil(t, reloaded.UnitWeight)
			assert.InDelta(t, 2.0, *reloaded.UnitWeight, 1e-9)

			rows, err := costModelRepo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.InDelta(t, 1100.0, rows[0].Part, 1e-9)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestArticleProcessorFailures(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		costModelRepo := repository.NewCostModelRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		requireFailedWith := func(t *testing.T, articleID uint, kind models.ProcessingErrorKind) *models.Article {
			t.Helper()
			reloaded, err := articleRepo.ByID(ctx, articleID)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, models.ProcessingStatusFailed, reloaded.ProcessingStatus)
			require.NotNil(t, reloaded.ProcessingErrorKind)
			assert.Equal(t, kind, *reloaded.ProcessingErrorKind)
			assert.NotNil(t, reloaded.ProcessingCompletedAt)
			return reloaded
		}

		t.Run("NoSpecFile", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Leergut 1")
			require.NoError(t, err)
			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			processor := newTestProcessor(testDB, &stubExtraction{}, &stubSimilarity{})
			processor.Process(ctx, article.ID)

			requireFailedWith(t, article.ID, models.ProcessingErrorNoSpecFile)
		})

		t.Run("UpstreamUnavailable", func(t *testing.T) {
			article, err := fixtures.CreateProcessedArticle("Leergut 2", 1.0)
			require.NoError(t, err)
			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			ext := &stubExtraction{err: &services.OpenAIError{StatusCode: 503, Body: "overloaded"}}
			processor := newTestProcessor(testDB, ext, &stubSimilarity{})
			processor.Process(ctx, article.ID)

			reloaded := requireFailedWith(t, article.ID, models.ProcessingErrorUpstreamUnavailable)
			require.NotNil(t, reloaded.ProcessingError)
			assert.Contains(t, *reloaded.ProcessingError, "503")
		})

		t.Run("ExtractionFailed", func(t *testing.T) {
			article, err := fixtures.CreateProcessedArticle("Leergut 3", 1.0)
			require.NoError(t, err)
			steel, err := fixtures.CreateTestIndex(testSteelIndexName, 500.0, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "t")
			require.NoError(t, err)
			_, err = fixtures.CreateTestCostModel(article.ID, steel.ID, 800.0, nil)
			require.NoError(t, err)
			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			ext := &stubExtraction{err: errors.New("response was not valid JSON")}
			processor := newTestProcessor(testDB, ext, &stubSimilarity{})
			processor.Process(ctx, article.ID)

			reloaded := requireFailedWith(t, article.ID, models.ProcessingErrorExtractionFailed)
			require.NotNil(t, reloaded.ProcessingError)
			assert.Contains(t, *reloaded.ProcessingError, "valid JSON")

			// A failed extraction leaves the prior cost model and weight alone
			require.NotNil(t, reloaded.UnitWeight)
			assert.InDelta(t, 1.0, *reloaded.UnitWeight, 1e-9)
			rows, err := costModelRepo.ByArticleID(ctx, article.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.InDelta(t, 800.0, rows[0].Part, 1e-9)
		})

		t.Run("PanicIsRecovered", func(t *testing.T) {
			article, err := fixtures.CreateProcessedArticle("Leergut 4", 1.0)
			require.NoError(t, err)
			claimed, err := articleRepo.ClaimProcessing(ctx, article.ID)
			require.NoError(t, err)
			require.True(t, claimed)

			ext := &stubExtraction{panicMsg: "nil pointer in client"}
			processor := newTestProcessor(testDB, ext, &stubSimilarity{})
			processor.Process(ctx, article.ID)

			reloaded := requireFailedWith(t, article.ID, models.ProcessingErrorInternal)
			require.NotNil(t, reloaded.ProcessingError)
			assert.Contains(t, *reloaded.ProcessingError, "panic")
		})

		t.Run("MissingArticleIsANoOp", func(t *testing.T) {
			processor := newTestProcessor(testDB, &stubExtraction{}, &stubSimilarity{})
			processor.Process(ctx, 99999)
		})

		return nil
	})
	require.NoError(t, err)
}
