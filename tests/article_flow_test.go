// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	testingutil "github.com/werkpilot/cost-model-service/testing"
	"github.com/werkpilot/cost-model-service/utils"
)

func TestArticleFlowCreate(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("192.0.2.10", "costing-tests")

		flow := businessflow.NewArticleFlow(articleRepo, testDB.DB)

		t.Run("CreateArticle", func(t *testing.T) {
			req := &dto.CreateArticleRequest{
				Name:        "Bracket 100",
				Description: utils.ToPtr("Stamped steel bracket"),
				Comment:     utils.ToPtr("Customer drawing rev. B"),
				UnitWeight:  utils.ToPtr(1.6),
			}
			resp, err := flow.CreateArticle(ctx, req, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Article created successfully", resp.Message)
			assert.NotZero(t, resp.Article.ID)
			assert.NotEmpty(t, resp.Article.UUID)
			assert.Equal(t, "Bracket 100", resp.Article.Name)
			assert.Equal(t, string(models.ProcessingStatusPending), resp.Article.ProcessingStatus)
			require.NotNil(t, resp.Article.UnitWeight)
			assert.InDelta(t, 1.6, *resp.Article.UnitWeight, 1e-9)
		})

		t.Run("DuplicateNameRejected", func(t *testing.T) {
			req := &dto.CreateArticleRequest{Name: "Bracket 100"}
			_, err := flow.CreateArticle(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNameExists(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestArticleFlowList(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewArticleFlow(articleRepo, testDB.DB)

		for i := 1; i <= 25; i++ {
			_, err := fixtures.CreateTestArticle(fmt.Sprintf("Teil %02d", i))
			require.NoError(t, err)
		}
		_, err := fixtures.CreateProcessedArticle("Gehäuse 1", 2.0)
		require.NoError(t, err)

		t.Run("DefaultPagination", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{})
			require.NoError(t, err)
			assert.Len(t, resp.Items, 20)
			assert.Equal(t, int64(26), resp.Pagination.Total)
			assert.Equal(t, 1, resp.Pagination.Page)
			assert.Equal(t, 20, resp.Pagination.Limit)
			assert.Equal(t, 2, resp.Pagination.TotalPages)
		})

		t.Run("SecondPage", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{Page: 2, Limit: 20})
			require.NoError(t, err)
			assert.Len(t, resp.Items, 6)
			assert.Equal(t, 2, resp.Pagination.Page)
		})

		t.Run("LimitClamped", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{Page: 1, Limit: 500})
			require.NoError(t, err)
			assert.Equal(t, 100, resp.Pagination.Limit)
			assert.Len(t, resp.Items, 26)
		})

		t.Run("StatusFilter", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{Status: utils.ToPtr("completed")})
			require.NoError(t, err)
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "Gehäuse 1", resp.Items[0].Name)
		})

		t.Run("InvalidStatusIgnored", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{Status: utils.ToPtr("queued")})
			require.NoError(t, err)
			assert.Equal(t, int64(26), resp.Pagination.Total)
		})

		t.Run("NameFilter", func(t *testing.T) {
			resp, err := flow.ListArticles(ctx, &dto.ListArticlesRequest{Name: utils.ToPtr("Teil 07")})
			require.NoError(t, err)
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "Teil 07", resp.Items[0].Name)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestArticleFlowUpdate(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("192.0.2.10", "costing-tests")

		flow := businessflow.NewArticleFlow(articleRepo, testDB.DB)

		article, err := fixtures.CreateTestArticle("Welle 10")
		require.NoError(t, err)
		_, err = fixtures.CreateTestArticle("Welle 11")
		require.NoError(t, err)

		t.Run("PartialUpdate", func(t *testing.T) {
			req := &dto.UpdateArticleRequest{
				ID:         article.ID,
				Name:       utils.ToPtr("Welle 10 rev. C"),
				Comment:    utils.ToPtr("Tolerance tightened"),
				UnitWeight: utils.ToPtr(0.85),
			}
			updated, err := flow.UpdateArticle(ctx, req, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Welle 10 rev. C", updated.Name)
			require.NotNil(t, updated.Comment)
			assert.Equal(t, "Tolerance tightened", *updated.Comment)
			require.NotNil(t, updated.UnitWeight)
			assert.InDelta(t, 0.85, *updated.UnitWeight, 1e-9)
			assert.NotNil(t, updated.UpdatedAt)
		})

		t.Run("OwnNameIsNotAConflict", func(t *testing.T) {
			req := &dto.UpdateArticleRequest{
				ID:      article.ID,
				Name:    utils.ToPtr("Welle 10 rev. C"),
				Comment: utils.ToPtr("Unchanged name, new comment"),
			}
			updated, err := flow.UpdateArticle(ctx, req, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Welle 10 rev. C", updated.Name)
		})

		t.Run("NameConflictRejected", func(t *testing.T) {
			req := &dto.UpdateArticleRequest{ID: article.ID, Name: utils.ToPtr("Welle 11")}
			_, err := flow.UpdateArticle(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNameExists(err))
		})

		t.Run("NotFound", func(t *testing.T) {
			req := &dto.UpdateArticleRequest{ID: 99999, Comment: utils.ToPtr("nobody home")}
			_, err := flow.UpdateArticle(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestArticleFlowDeleteAndStatus(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewArticleFlow(articleRepo, testDB.DB)

		t.Run("DeleteArticle", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flansch 5")
			require.NoError(t, err)

			require.NoError(t, flow.DeleteArticle(ctx, article.ID))

			_, err = flow.GetArticle(ctx, article.ID)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		t.Run("DeleteNotFound", func(t *testing.T) {
			err := flow.DeleteArticle(ctx, 99999)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		t.Run("StatusPending", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flansch 6")
			require.NoError(t, err)

			status, err := flow.GetArticleStatus(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, article.ID, status.ArticleID)
			assert.Equal(t, "pending", status.ProcessingStatus)
			assert.Nil(t, status.ProcessingErrorKind)
			assert.Nil(t, status.ProcessingStartedAt)
		})

		t.Run("StatusCarriesFailureKind", func(t *testing.T) {
			article, err := fixtures.CreateTestArticle("Flansch 7")
			require.NoError(t, err)

			err = articleRepo.UpdateFields(ctx, article.ID, map[string]any{
				"processing_status":       models.ProcessingStatusFailed,
				"processing_error_kind":   models.ProcessingErrorExtractionFailed,
				"processing_error":        "model returned no usable entries",
				"processing_completed_at": utils.UTCNow(),
			})
			require.NoError(t, err)

			status, err := flow.GetArticleStatus(ctx, article.ID)
			require.NoError(t, err)
			assert.Equal(t, "failed", status.ProcessingStatus)
			require.NotNil(t, status.ProcessingErrorKind)
			assert.Equal(t, "extraction_failed", *status.ProcessingErrorKind)
			require.NotNil(t, status.ProcessingError)
			assert.Equal(t, "model returned no usable entries", *status.ProcessingError)
			assert.NotNil(t, status.ProcessingCompletedAt)
		})

		return nil
	})
	require.NoError(t, err)
}
