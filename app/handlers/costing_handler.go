// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/utils"
)

// CostingHandlerInterface defines the contract for costing read endpoints
type CostingHandlerInterface interface {
	GetCostBreakdown(c fiber.Ctx) error
	GetIndicesValues(c fiber.Ctx) error
	GetPriceHistory(c fiber.Ctx) error
}

// CostingHandler serves the derived costing views of an article
type CostingHandler struct {
	costingFlow businessflow.CostingFlow
}

// NewCostingHandler creates a new costing handler
func NewCostingHandler(costingFlow businessflow.CostingFlow) *CostingHandler {
	return &CostingHandler{
		costingFlow: costingFlow,
	}
}

func (h *CostingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CostingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetCostBreakdown computes the should-cost decomposition of an article
// @Summary Get Cost Breakdown
// @Description Compute materials, labor, electricity, overhead, total cost and margin for an article from its cost model and latest index values
// @Tags Costing
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.CostBreakdownResponse}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id}/cost-breakdown [get]
func (h *CostingHandler) GetCostBreakdown(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.costingFlow.GetCostBreakdown(h.createRequestContext(c, "/api/v1/articles/{id}/cost-breakdown"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Cost breakdown failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute cost breakdown", "BREAKDOWN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cost breakdown computed successfully", result)
}

// GetIndicesValues returns time series for the article's linked indices
// @Summary Get Indices Values
// @Description Return the historical values of every index linked to the article plus synthetic labor, electricity and direct cost series
// @Tags Costing
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.ArticleIndicesValuesResponse}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id}/indices-values [get]
func (h *CostingHandler) GetIndicesValues(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.costingFlow.GetIndicesValues(h.createRequestContext(c, "/api/v1/articles/{id}/indices-values"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Indices values failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to collect index values", "INDICES_VALUES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index values retrieved successfully", result)
}

// GetPriceHistory returns recorded order prices for the article
// @Summary Get Price History
// @Description Return the order price history of an article, oldest first
// @Tags Costing
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.ArticlePriceHistoryResponse}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id}/price-history [get]
func (h *CostingHandler) GetPriceHistory(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.costingFlow.GetPriceHistory(h.createRequestContext(c, "/api/v1/articles/{id}/price-history"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Price history failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to collect price history", "PRICE_HISTORY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Price history retrieved successfully", result)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CostingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *CostingHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	// Create context with custom timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Add request-scoped values for observability
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel) // Store cancel function for cleanup

	return ctx
}
