// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/werkpilot/cost-model-service/app/dto"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/utils"
)

// IngestHandlerInterface defines the contract for bulk upload handlers
type IngestHandlerInterface interface {
	UploadIndicesCSV(c fiber.Ctx) error
	UploadIndicesExcel(c fiber.Ctx) error
	UploadOrdersCSV(c fiber.Ctx) error
}

// IngestHandler handles bulk file uploads for indices and orders
type IngestHandler struct {
	ingestFlow businessflow.IngestFlow
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestFlow businessflow.IngestFlow) *IngestHandler {
	return &IngestHandler{
		ingestFlow: ingestFlow,
	}
}

func (h *IngestHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *IngestHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// readUploadedFile pulls the multipart "file" field into memory
func (h *IngestHandler) readUploadedFile(c fiber.Ctx) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		return nil, businessflow.NewBusinessError("INVALID_FILE", "file is required", err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, businessflow.NewBusinessError("INVALID_FILE", "file cannot be opened", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, businessflow.NewBusinessError("INVALID_FILE", "file cannot be read", err)
	}
	return data, nil
}

// UploadIndicesCSV imports a wide-format index CSV
// @Summary Upload Indices CSV
// @Description Import index observations from a CSV with one date column and one column per series. German number and date formats are accepted.
// @Tags Ingest
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} dto.APIResponse{data=dto.UploadReportResponse} "Import report"
// @Failure 400 {object} dto.APIResponse "File missing or not parseable as CSV"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/upload-csv [post]
func (h *IngestHandler) UploadIndicesCSV(c fiber.Ctx) error {
	data, err := h.readUploadedFile(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "A CSV file upload is required", "INVALID_FILE", nil)
	}

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ingestFlow.UploadIndicesCSV(h.createRequestContextWithTimeout(c, "/api/v1/indices/upload-csv", 5*time.Minute), data, metadata)
	if err != nil {
		if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "INVALID_CSV" {
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, "INVALID_CSV", nil)
		}

		log.Println("Index CSV import failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Index import failed", "INDEX_IMPORT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index CSV imported successfully", result)
}

// UploadIndicesExcel imports TAC series from an Excel workbook
// @Summary Upload Indices Excel
// @Description Import TAC index series from an Excel workbook, one sheet per series. The first skip_sheets sheets are ignored.
// @Tags Ingest
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Excel workbook"
// @Param skip_sheets formData int false "Leading sheets to skip" default(1)
// @Success 200 {object} dto.APIResponse{data=dto.UploadReportResponse} "Import report"
// @Failure 400 {object} dto.APIResponse "File missing or not parseable as a workbook"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/indices/upload-excel [post]
func (h *IngestHandler) UploadIndicesExcel(c fiber.Ctx) error {
	data, err := h.readUploadedFile(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "An Excel file upload is required", "INVALID_FILE", nil)
	}

	skipSheets := 1
	if v := c.FormValue("skip_sheets"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "skip_sheets must be a non-negative integer", "INVALID_REQUEST", nil)
		}
		skipSheets = n
	}

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ingestFlow.UploadIndicesExcel(h.createRequestContextWithTimeout(c, "/api/v1/indices/upload-excel", 5*time.Minute), data, skipSheets, metadata)
	if err != nil {
		if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "INVALID_EXCEL" {
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, "INVALID_EXCEL", nil)
		}

		log.Println("Index Excel import failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Index import failed", "INDEX_IMPORT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Index workbook imported successfully", result)
}

// UploadOrdersCSV imports historical orders from a CSV export
// @Summary Upload Orders CSV
// @Description Import order rows from a CSV with article_name, price, price_factor, unit and order_date columns. Matching rows are refreshed instead of duplicated.
// @Tags Ingest
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} dto.APIResponse{data=dto.UploadReportResponse} "Import report"
// @Failure 400 {object} dto.APIResponse "File missing or not parseable as CSV"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders/upload-csv [post]
func (h *IngestHandler) UploadOrdersCSV(c fiber.Ctx) error {
	data, err := h.readUploadedFile(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "A CSV file upload is required", "INVALID_FILE", nil)
	}

	// Get client information
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ingestFlow.UploadOrdersCSV(h.createRequestContextWithTimeout(c, "/api/v1/orders/upload-csv", 5*time.Minute), data, metadata)
	if err != nil {
		if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "INVALID_CSV" {
			return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, "INVALID_CSV", nil)
		}

		log.Println("Order CSV import failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Order import failed", "ORDER_IMPORT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Order CSV imported successfully", result)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *IngestHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
