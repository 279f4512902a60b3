// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/utils"
)

// AnalyzeHandlerInterface defines the contract for the analyze handler
type AnalyzeHandlerInterface interface {
	AnalyzeArticle(c fiber.Ctx) error
}

// AnalyzeHandler handles the multipart upload-and-process endpoint
type AnalyzeHandler struct {
	analyzeFlow businessflow.AnalyzeFlow
	validator   *validator.Validate
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(analyzeFlow businessflow.AnalyzeFlow) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzeFlow: analyzeFlow,
		validator:   validator.New(),
	}
}

func (h *AnalyzeHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AnalyzeHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// AnalyzeArticle accepts a specification upload and schedules processing
// @Summary Analyze Article
// @Description Upload a specification (and optional drawing) for an article and schedule background analysis. A new name creates the article, an existing name re-analyzes it.
// @Tags Analyze
// @Accept multipart/form-data
// @Produce json
// @Param article_name formData string true "Article name"
// @Param description formData string false "Description"
// @Param comment formData string false "Comment"
// @Param unit_weight formData number false "Unit weight in kilograms"
// @Param spec_file formData file true "Specification document"
// @Param drawing_file formData file false "Technical drawing"
// @Success 201 {object} dto.APIResponse{data=dto.AnalyzeArticleResponse} "Article created and processing scheduled"
// @Success 202 {object} dto.APIResponse{data=dto.AnalyzeArticleResponse} "Existing article re-scheduled for processing"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 409 {object} dto.APIResponse "Article is already being processed"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/analyze [post]
func (h *AnalyzeHandler) AnalyzeArticle(c fiber.Ctx) error {
	req := dto.AnalyzeArticleRequest{
		ArticleName: c.FormValue("article_name"),
	}
	if v := c.FormValue("description"); v != "" {
		req.Description = &v
	}
	if v := c.FormValue("comment"); v != "" {
		req.Comment = &v
	}
	if v := c.FormValue("unit_weight"); v != "" {
		weight, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "unit_weight must be a number", "INVALID_REQUEST", err.Error())
		}
		req.UnitWeight = &weight
	}

	specHeader, err := c.FormFile("spec_file")
	if err != nil || specHeader == nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "spec_file is required", "VALIDATION_ERROR", nil)
	}
	specFile, err := specHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid spec_file", "INVALID_REQUEST", err.Error())
	}
	defer specFile.Close()
	req.SpecFile, err = io.ReadAll(specFile)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "could not read spec_file", "INVALID_REQUEST", err.Error())
	}
	req.SpecFilename = specHeader.Filename

	if drawingHeader, err := c.FormFile("drawing_file"); err == nil && drawingHeader != nil {
		drawingFile, err := drawingHeader.Open()
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "invalid drawing_file", "INVALID_REQUEST", err.Error())
		}
		defer drawingFile.Close()
		req.DrawingFile, err = io.ReadAll(drawingFile)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "could not read drawing_file", "INVALID_REQUEST", err.Error())
		}
		req.DrawingFilename = drawingHeader.Filename
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

	result, err := h.analyzeFlow.AnalyzeArticle(h.createRequestContext(c, "/api/v1/analyze"), &req, metadata)
	if err != nil {
		if businessflow.IsSpecFileRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "A specification file is required", "VALIDATION_ERROR", nil)
		}
		if businessflow.IsArticleAlreadyProcessing(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Article is already being processed", "ARTICLE_ALREADY_PROCESSING", nil)
		}
		if businessflow.IsMissingAPIKey(err) {
			return h.ErrorResponse(c, fiber.StatusInternalServerError, "OPENAI_API_KEY is not configured", "MISSING_API_KEY", nil)
		}

		log.Println("Analyze request failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to schedule article analysis", "ANALYZE_FAILED", nil)
	}

	statusCode := fiber.StatusAccepted
	if result.Created {
		statusCode = fiber.StatusCreated
	}
	return h.SuccessResponse(c, statusCode, "Article analysis scheduled", fiber.Map{
		"message":           result.Message,
		"article_id":        result.ArticleID,
		"processing_status": result.ProcessingStatus,
		"created":           result.Created,
	})
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *AnalyzeHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *AnalyzeHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
