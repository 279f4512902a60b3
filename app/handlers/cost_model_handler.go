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

// CostModelHandlerInterface defines the contract for cost model handlers
type CostModelHandlerInterface interface {
	CreateCostModel(c fiber.Ctx) error
	ListCostModels(c fiber.Ctx) error
	ListCostModelsForArticle(c fiber.Ctx) error
	UpdateCostModel(c fiber.Ctx) error
	DeleteCostModel(c fiber.Ctx) error
}

// CostModelHandler handles cost model HTTP requests
type CostModelHandler struct {
	costModelFlow businessflow.CostModelFlow
	validator     *validator.Validate
}

// NewCostModelHandler creates a new cost model handler
func NewCostModelHandler(costModelFlow businessflow.CostModelFlow) *CostModelHandler {
	return &CostModelHandler{
		costModelFlow: costModelFlow,
		validator:     validator.New(),
	}
}

func (h *CostModelHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CostModelHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCostModel links an index contribution to an article
// @Summary Create Cost Model Row
// @Description Link an index to an article with a mass share and optional direct cost. The pair must not be linked yet.
// @Tags CostModels
// @Accept json
// @Produce json
// @Param request body dto.CreateCostModelRequest true "Cost model row"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCostModelResponse} "Cost model row created"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Article or index not found"
// @Failure 409 {object} dto.APIResponse "Pair already linked"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cost-models [post]
func (h *CostModelHandler) CreateCostModel(c fiber.Ctx) error {
	var req dto.CreateCostModelRequest
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

	result, err := h.costModelFlow.CreateCostModel(h.createRequestContext(c, "/api/v1/cost-models"), &req, metadata)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}
		if businessflow.IsIndexNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Index not found", "INDEX_NOT_FOUND", nil)
		}
		if businessflow.IsCostModelExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "This article and index are already linked", "COST_MODEL_EXISTS", nil)
		}

		log.Println("Cost model creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cost model creation failed", "COST_MODEL_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Cost model row created successfully", result)
}

// ListCostModels returns every cost model row
// @Summary List Cost Model Rows
// @Description List all cost model rows with their index rows preloaded
// @Tags CostModels
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListCostModelsResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cost-models [get]
func (h *CostModelHandler) ListCostModels(c fiber.Ctx) error {
	result, err := h.costModelFlow.ListCostModels(h.createRequestContext(c, "/api/v1/cost-models"))
	if err != nil {
		log.Println("List cost models failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list cost models", "LIST_COST_MODELS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cost models retrieved successfully", result)
}

// ListCostModelsForArticle returns the cost model rows of one article
// @Summary List Article Cost Model
// @Description List the cost model rows linked to an article ordered by index id
// @Tags CostModels
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.ListCostModelsResponse}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id}/cost-models [get]
func (h *CostModelHandler) ListCostModelsForArticle(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.costModelFlow.ListCostModelsForArticle(h.createRequestContext(c, "/api/v1/articles/{id}/cost-models"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("List article cost models failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list cost models", "LIST_COST_MODELS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cost models retrieved successfully", result)
}

// UpdateCostModel changes the share or direct cost of a linked pair
// @Summary Update Cost Model Row
// @Description Update part or direct_cost_eur for an (article, index) pair
// @Tags CostModels
// @Accept json
// @Produce json
// @Param article_id path int true "Article ID"
// @Param index_id path int true "Index ID"
// @Param request body dto.UpdateCostModelRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.CostModelDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid id"
// @Failure 404 {object} dto.APIResponse "Cost model row not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cost-models/{article_id}/{index_id} [put]
func (h *CostModelHandler) UpdateCostModel(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "article_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}
	indexID, ok := parseIDParam(c, "index_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid index id", "INVALID_INDEX_ID", nil)
	}

	var req dto.UpdateCostModelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ArticleID = articleID
	req.IndexID = indexID

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.costModelFlow.UpdateCostModel(h.createRequestContext(c, "/api/v1/cost-models/{article_id}/{index_id}"), &req, metadata)
	if err != nil {
		if businessflow.IsCostModelNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Cost model row not found", "COST_MODEL_NOT_FOUND", nil)
		}

		log.Println("Cost model update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cost model update failed", "COST_MODEL_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Cost model updated successfully", result)
}

// DeleteCostModel unlinks an index from an article
// @Summary Delete Cost Model Row
// @Description Remove the link between an article and an index
// @Tags CostModels
// @Param article_id path int true "Article ID"
// @Param index_id path int true "Index ID"
// @Success 204 "Cost model row deleted"
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Cost model row not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cost-models/{article_id}/{index_id} [delete]
func (h *CostModelHandler) DeleteCostModel(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "article_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}
	indexID, ok := parseIDParam(c, "index_id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid index id", "INVALID_INDEX_ID", nil)
	}

	if err := h.costModelFlow.DeleteCostModel(h.createRequestContext(c, "/api/v1/cost-models/{article_id}/{index_id}"), articleID, indexID); err != nil {
		if businessflow.IsCostModelNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Cost model row not found", "COST_MODEL_NOT_FOUND", nil)
		}

		log.Println("Cost model deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Cost model deletion failed", "COST_MODEL_DELETION_FAILED", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CostModelHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *CostModelHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
