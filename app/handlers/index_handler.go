// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/utils"
)

// IndexHandlerInterface defines the contract for index handlers
type IndexHandlerInterface interface {
	CreateIndex(c fiber.Ctx) error
	ListIndices(c fiber.Ctx) error
	GetIndexNames(c fiber.Ctx) error
	GetIndex(c fiber.Ctx) error
	UpdateIndex(c fiber.Ctx) error
	DeleteIndex(c fiber.Ctx) error
}

// IndexHandler handles index-related HTTP requests
type IndexHandler struct {
	indexFlow businessflow.IndexFlow
	validator *validator.Validate
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(indexFlow businessflow.IndexFlow) *IndexHandler {
	return &IndexHandler{
		indexFlow: indexFlow,
		validator: validator.New(),
	}
}

func (h *IndexHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *IndexHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateIndex records an index observation, updating the (name, date) row if present
// @Summary Create Index
// @Description Record an index value for a date. Posting the same name and date again overwrites the existing row.
// @Tags Indices
// @Accept json
// @Produce json
// @Param request body dto.CreateIndexRequest true "Index observation"
// @Success 201 {object} dto.APIResponse{data=dto.UpsertIndexResponse} "Index recorded"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid date"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices [post]
func (h *IndexHandler) CreateIndex(c fiber.Ctx) error {
	var req dto.CreateIndexRequest
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

	result, err := h.indexFlow.UpsertIndex(h.createRequestContext(c, "/api/v1/indices"), &req, metadata)
	if err != nil {
		if businessflow.IsInvalidDate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Date must be an ISO date", "INVALID_DATE", nil)
		}

		log.Println("Index creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Index creation failed", "INDEX_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Index recorded successfully", result)
}

// ListIndices returns index rows, optionally narrowed to a name or the latest per series
// @Summary List Indices
// @Description List index rows newest first. With latest=true only the most recent row per series is returned; combined with name it returns at most one row.
// @Tags Indices
// @Produce json
// @Param name query string false "Filter by series name"
// @Param latest query bool false "Only the latest row per series"
// @Success 200 {object} dto.APIResponse{data=dto.ListIndicesResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices [get]
func (h *IndexHandler) ListIndices(c fiber.Ctx) error {
	req := &dto.ListIndicesRequest{}
	if name := c.Query("name"); name != "" {
		req.Name = &name
	}
	if v, err := strconv.ParseBool(c.Query("latest", "false")); err == nil {
		req.Latest = v
	}

	result, err := h.indexFlow.ListIndices(h.createRequestContext(c, "/api/v1/indices"), req)
	if err != nil {
		log.Println("List indices failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list indices", "LIST_INDICES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Indices retrieved successfully", result)
}

// GetIndexNames returns the distinct series names
// @Summary Get Index Names
// @Description List the distinct index series names in alphabetical order
// @Tags Indices
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.IndexNamesResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/names [get]
func (h *IndexHandler) GetIndexNames(c fiber.Ctx) error {
	result, err := h.indexFlow.GetIndexNames(h.createRequestContext(c, "/api/v1/indices/names"))
	if err != nil {
		log.Println("Index names lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list index names", "INDEX_NAMES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index names retrieved successfully", result)
}

// GetIndex returns a single index row
// @Summary Get Index
// @Description Retrieve one index row by its numeric id
// @Tags Indices
// @Produce json
// @Param id path int true "Index ID"
// @Success 200 {object} dto.APIResponse{data=dto.IndexDTO}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Index not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/{id} [get]
func (h *IndexHandler) GetIndex(c fiber.Ctx) error {
	indexID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid index id", "INVALID_INDEX_ID", nil)
	}

	result, err := h.indexFlow.GetIndex(h.createRequestContext(c, "/api/v1/indices/{id}"), indexID)
	if err != nil {
		if businessflow.IsIndexNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Index not found", "INDEX_NOT_FOUND", nil)
		}

		log.Println("Get index failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve index", "GET_INDEX_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index retrieved successfully", result)
}

// UpdateIndex applies a partial update to an index row
// @Summary Update Index
// @Description Update value, value_per_gram, date, price_factor or unit of an index row. Derived fields are stored as sent, not recomputed.
// @Tags Indices
// @Accept json
// @Produce json
// @Param id path int true "Index ID"
// @Param request body dto.UpdateIndexRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.IndexDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid date"
// @Failure 404 {object} dto.APIResponse "Index not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/{id} [put]
func (h *IndexHandler) UpdateIndex(c fiber.Ctx) error {
	indexID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid index id", "INVALID_INDEX_ID", nil)
	}

	var req dto.UpdateIndexRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ID = indexID

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.indexFlow.UpdateIndex(h.createRequestContext(c, "/api/v1/indices/{id}"), &req, metadata)
	if err != nil {
		if businessflow.IsIndexNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Index not found", "INDEX_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidDate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Date must be an ISO date", "INVALID_DATE", nil)
		}

		log.Println("Index update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Index update failed", "INDEX_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index updated successfully", result)
}

// DeleteIndex removes an index row
// @Summary Delete Index
// @Description Delete an index row; cost model rows referencing it cascade
// @Tags Indices
// @Param id path int true "Index ID"
// @Success 204 "Index deleted"
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Index not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/{id} [delete]
func (h *IndexHandler) DeleteIndex(c fiber.Ctx) error {
	indexID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid index id", "INVALID_INDEX_ID", nil)
	}

	if err := h.indexFlow.DeleteIndex(h.createRequestContext(c, "/api/v1/indices/{id}"), indexID); err != nil {
		if businessflow.IsIndexNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Index not found", "INDEX_NOT_FOUND", nil)
		}

		log.Println("Index deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Index deletion failed", "INDEX_DELETION_FAILED", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *IndexHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *IndexHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
