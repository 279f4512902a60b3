// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/repository"
	testingutil "github.com/werkpilot/cost-model-service/testing"
	"github.com/werkpilot/cost-model-service/utils"
)

func TestOrderFlowCreate(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		orderRepo := repository.NewOrderRepository(testDB.DB)
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("192.0.2.10", "costing-tests")

		flow := businessflow.NewOrderFlow(orderRepo, articleRepo, testDB.DB, nil, nil)

		article, err := fixtures.CreateTestArticle("Bracket 100")
		require.NoError(t, err)

		t.Run("NameFilledFromReferencedArticle", func(t *testing.T) {
			req := &dto.CreateOrderRequest{
				ArticleID:   utils.ToPtr(article.ID),
				Price:       4.80,
				PriceFactor: 1.0,
				Unit:        "piece",
				OrderDate:   "2024-02-15",
			}
			resp, err := flow.CreateOrder(ctx, req, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Order recorded successfully", resp.Message)
			assert.Equal(t, "Bracket 100", resp.Order.ArticleName)
			require.NotNil(t, resp.Order.ArticleID)
			assert.Equal(t, article.ID, *resp.Order.ArticleID)
			assert.Equal(t, "2024-02-15", resp.Order.OrderDate.Format("2006-01-02"))
		})

		t.Run("NameOnlyOrder", func(t *testing.T) {
			req := &dto.CreateOrderRequest{
				ArticleName: "Zugekauftes Teil 9",
				Price:       12.40,
				PriceFactor: 1.0,
				Unit:        "piece",
				OrderDate:   "2024-02-16",
			}
			resp, err := flow.CreateOrder(ctx, req, metadata)
			require.NoError(t, err)
			assert.Nil(t, resp.Order.ArticleID)
			assert.Equal(t, "Zugekauftes Teil 9", resp.Order.ArticleName)
		})

		t.Run("ExplicitNameWins", func(t *testing.T) {
			req := &dto.CreateOrderRequest{
				ArticleID:   utils.ToPtr(article.ID),
				ArticleName: "Bracket 100 (Altname)",
				Price:       4.90,
				PriceFactor: 1.0,
				Unit:        "piece",
				OrderDate:   "2024-02-17",
			}
			resp, err := flow.CreateOrder(ctx, req, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Bracket 100 (Altname)", resp.Order.ArticleName)
		})

		t.Run("UnknownArticleRejected", func(t *testing.T) {
			req := &dto.CreateOrderRequest{
				ArticleID: utils.ToPtr(uint(99999)),
				Price:     1.00,
				OrderDate: "2024-02-18",
			}
			_, err := flow.CreateOrder(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		t.Run("InvalidDate", func(t *testing.T) {
			req := &dto.CreateOrderRequest{ArticleName: "Teil X", Price: 1.00, OrderDate: "15.02.2024"}
			_, err := flow.CreateOrder(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidDate(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestOrderFlowList(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		orderRepo := repository.NewOrderRepository(testDB.DB)
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		flow := businessflow.NewOrderFlow(orderRepo, articleRepo, testDB.DB, nil, nil)

		article, err := fixtures.CreateTestArticle("Gehäuse 2")
		require.NoError(t, err)

		_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 7.00, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		_, err = fixtures.CreateTestOrder(utils.ToPtr(article.ID), article.Name, 7.50, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		_, err = fixtures.CreateTestOrder(nil, "Fremdteil 1", 3.10, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		t.Run("AllNewestFirst", func(t *testing.T) {
			resp, err := flow.ListOrders(ctx, &dto.ListOrdersRequest{})
			require.NoError(t, err)
			require.Len(t, resp.Items, 3)
			assert.InDelta(t, 7.50, resp.Items[0].Price, 1e-9)
			assert.InDelta(t, 3.10, resp.Items[1].Price, 1e-9)
			assert.InDelta(t, 7.00, resp.Items[2].Price, 1e-9)
		})

		t.Run("FilterByArticleID", func(t *testing.T) {
			resp, err := flow.ListOrders(ctx, &dto.ListOrdersRequest{ArticleID: utils.ToPtr(article.ID)})
			require.NoError(t, err)
			assert.Len(t, resp.Items, 2)
		})

		t.Run("FilterByName", func(t *testing.T) {
			resp, err := flow.ListOrders(ctx, &dto.ListOrdersRequest{ArticleName: utils.ToPtr("Fremdteil 1")})
			require.NoError(t, err)
			require.Len(t, resp.Items, 1)
			assert.Nil(t, resp.Items[0].ArticleID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestOrderFlowUpdateAndDelete(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		orderRepo := repository.NewOrderRepository(testDB.DB)
		articleRepo := repository.NewArticleRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("192.0.2.10", "costing-tests")

		flow := businessflow.NewOrderFlow(orderRepo, articleRepo, testDB.DB, nil, nil)

		article, err := fixtures.CreateTestArticle("Deckel 3")
		require.NoError(t, err)
		order, err := fixtures.CreateTestOrder(nil, "Deckel 3", 2.20, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		t.Run("AttachArticleAndReprice", func(t *testing.T) {
			req := &dto.UpdateOrderRequest{
				ID:        order.ID,
				ArticleID: utils.ToPtr(article.ID),
				Price:     utils.ToPtr(2.35),
			}
			updated, err := flow.UpdateOrder(ctx, req, metadata)
			require.NoError(t, err)
			require.NotNil(t, updated.ArticleID)
			assert.Equal(t, article.ID, *updated.ArticleID)
			assert.InDelta(t, 2.35, updated.Price, 1e-9)
			assert.Equal(t, "Deckel 3", updated.ArticleName)
		})

		t.Run("UpdateUnknownArticleRejected", func(t *testing.T) {
			req := &dto.UpdateOrderRequest{ID: order.ID, ArticleID: utils.ToPtr(uint(99999))}
			_, err := flow.UpdateOrder(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsArticleNotFound(err))
		})

		t.Run("UpdateInvalidDate", func(t *testing.T) {
			req := &dto.UpdateOrderRequest{ID: order.ID, OrderDate: utils.ToPtr("next tuesday")}
			_, err := flow.UpdateOrder(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidDate(err))
		})

		t.Run("GetOrderNotFound", func(t *testing.T) {
			_, err := flow.GetOrder(ctx, 99999)
			require.Error(t, err)
			assert.True(t, businessflow.IsOrderNotFound(err))
		})

		t.Run("Delete", func(t *testing.T) {
			require.NoError(t, flow.DeleteOrder(ctx, order.ID))

			_, err := flow.GetOrder(ctx, order.ID)
			require.Error(t, err)
			assert.True(t, businessflow.IsOrderNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}
