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

// ArticleHandlerInterface defines the contract for article handlers
type ArticleHandlerInterface interface {
	CreateArticle(c fiber.Ctx) error
	ListArticles(c fiber.Ctx) error
	GetArticle(c fiber.Ctx) error
	UpdateArticle(c fiber.Ctx) error
	DeleteArticle(c fiber.Ctx) error
	GetArticleStatus(c fiber.Ctx) error
}

// ArticleHandler handles article-related HTTP requests
type ArticleHandler struct {
	articleFlow businessflow.ArticleFlow
	validator   *validator.Validate
}

// NewArticleHandler creates a new article handler
func NewArticleHandler(articleFlow businessflow.ArticleFlow) *ArticleHandler {
	return &ArticleHandler{
		articleFlow: articleFlow,
		validator:   validator.New(),
	}
}

func (h *ArticleHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ArticleHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateArticle registers an article without scheduling processing
// @Summary Create Article
// @Description Register a new article by name with optional descriptive fields
// @Tags Articles
// @Accept json
// @Produce json
// @Param request body dto.CreateArticleRequest true "Article data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateArticleResponse} "Article created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 409 {object} dto.APIResponse "Article name already exists"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles [post]
func (h *ArticleHandler) CreateArticle(c fiber.Ctx) error {
	var req dto.CreateArticleRequest
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

	// Call business logic with proper context
	result, err := h.articleFlow.CreateArticle(h.createRequestContext(c, "/api/v1/articles"), &req, metadata)
	if err != nil {
		if businessflow.IsArticleNameExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "An article with this name already exists", "ARTICLE_NAME_EXISTS", nil)
		}

		log.Println("Article creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Article creation failed", "ARTICLE_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Article created successfully", fiber.Map{
		"message": result.Message,
		"article": result.Article,
	})
}

// ListArticles returns articles with filters and pagination
// @Summary List Articles
// @Description Retrieve articles with pagination and optional name/status filters
// @Tags Articles
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page (max 100)" default(20)
// @Param name query string false "Filter by exact name"
// @Param status query string false "Filter by processing status (pending|processing|completed|failed)"
// @Success 200 {object} dto.APIResponse{data=dto.ListArticlesResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles [get]
func (h *ArticleHandler) ListArticles(c fiber.Ctx) error {
	// Parse query params
	page := 1
	if v, err := strconv.Atoi(c.Query("page", "1")); err == nil && v > 0 {
		page = v
	}
	limit := 20
	if v, err := strconv.Atoi(c.Query("page_size", "20")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}

	req := &dto.ListArticlesRequest{
		Page:  page,
		Limit: limit,
	}
	if name := c.Query("name"); name != "" {
		req.Name = &name
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	result, err := h.articleFlow.ListArticles(h.createRequestContext(c, "/api/v1/articles"), req)
	if err != nil {
		log.Println("List articles failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list articles", "LIST_ARTICLES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Articles retrieved successfully", fiber.Map{
		"message":    result.Message,
		"items":      result.Items,
		"pagination": result.Pagination,
	})
}

// GetArticle returns a single article
// @Summary Get Article
// @Description Retrieve one article by its numeric id
// @Tags Articles
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.ArticleDTO}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id} [get]
func (h *ArticleHandler) GetArticle(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.articleFlow.GetArticle(h.createRequestContext(c, "/api/v1/articles/{id}"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Get article failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve article", "GET_ARTICLE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Article retrieved successfully", result)
}

// UpdateArticle applies a partial update to an article
// @Summary Update Article
// @Description Update name, description, comment or unit weight of an article
// @Tags Articles
// @Accept json
// @Produce json
// @Param id path int true "Article ID"
// @Param request body dto.UpdateArticleRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.ArticleDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 409 {object} dto.APIResponse "Article name already exists"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id} [put]
func (h *ArticleHandler) UpdateArticle(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	var req dto.UpdateArticleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ID = articleID

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.articleFlow.UpdateArticle(h.createRequestContext(c, "/api/v1/articles/{id}"), &req, metadata)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}
		if businessflow.IsArticleNameExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "An article with this name already exists", "ARTICLE_NAME_EXISTS", nil)
		}

		log.Println("Article update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Article update failed", "ARTICLE_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Article updated successfully", result)
}

// DeleteArticle removes an article and its cost model rows
// @Summary Delete Article
// @Description Delete an article; cost model rows cascade, orders keep the name
// @Tags Articles
// @Param id path int true "Article ID"
// @Success 204 "Article deleted"
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id} [delete]
func (h *ArticleHandler) DeleteArticle(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	if err := h.articleFlow.DeleteArticle(h.createRequestContext(c, "/api/v1/articles/{id}"), articleID); err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Article deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Article deletion failed", "ARTICLE_DELETION_FAILED", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetArticleStatus returns the processing status for polling
// @Summary Get Article Status
// @Description Retrieve the background processing status of an article
// @Tags Articles
// @Produce json
// @Param id path int true "Article ID"
// @Success 200 {object} dto.APIResponse{data=dto.ArticleStatusResponse}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/articles/{id}/status [get]
func (h *ArticleHandler) GetArticleStatus(c fiber.Ctx) error {
	articleID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid article id", "INVALID_ARTICLE_ID", nil)
	}

	result, err := h.articleFlow.GetArticleStatus(h.createRequestContext(c, "/api/v1/articles/{id}/status"), articleID)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}

		log.Println("Get article status failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve article status", "GET_STATUS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Article status retrieved successfully", result)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *ArticleHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *ArticleHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
