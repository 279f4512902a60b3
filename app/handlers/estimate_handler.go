// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/utils"
)

// EstimateHandlerInterface defines the contract for the estimate handler
type EstimateHandlerInterface interface {
	GenerateCostEstimate(c fiber.Ctx) error
}

// EstimateHandler handles free-text cost estimate requests
type EstimateHandler struct {
	estimateFlow businessflow.EstimateFlow
	validator    *validator.Validate
}

// NewEstimateHandler creates a new estimate handler
func NewEstimateHandler(estimateFlow businessflow.EstimateFlow) *EstimateHandler {
	return &EstimateHandler{
		estimateFlow: estimateFlow,
		validator:    validator.New(),
	}
}

func (h *EstimateHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *EstimateHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GenerateCostEstimate asks the language model for a free-text estimate
// @Summary Generate Cost Estimate
// @Description Build a prompt from the article and its cost model and ask the language model for a free-text cost estimate
// @Tags Estimates
// @Accept json
// @Produce json
// @Param request body dto.CostEstimateRequest true "Estimate request"
// @Success 200 {object} dto.APIResponse{data=dto.CostEstimateResponse}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error or missing API key"
// @Failure 502 {object} dto.APIResponse "Upstream language model failed"
// @Router /api/v1/cost-estimates [post]
func (h *EstimateHandler) GenerateCostEstimate(c fiber.Ctx) error {
	var req dto.CostEstimateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.estimateFlow.GenerateCostEstimate(h.createRequestContextWithTimeout(c, "/api/v1/cost-estimates", 2*time.Minute), &req, metadata)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}
		if businessflow.IsMissingAPIKey(err) {
			return h.ErrorResponse(c, fiber.StatusInternalServerError, "OPENAI_API_KEY is not configured", "MISSING_API_KEY", nil)
		}
		if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "UPSTREAM_LLM_FAILED" {
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Language model request failed", "UPSTREAM_LLM_FAILED", nil)
		}

		log.Println("Cost estimate failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate cost estimate", "ESTIMATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cost estimate generated successfully", result)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *EstimateHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
