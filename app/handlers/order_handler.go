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

// OrderHandlerInterface defines the contract for order handlers
type OrderHandlerInterface interface {
	CreateOrder(c fiber.Ctx) error
	ListOrders(c fiber.Ctx) error
	GetOrder(c fiber.Ctx) error
	UpdateOrder(c fiber.Ctx) error
	DeleteOrder(c fiber.Ctx) error
}

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	orderFlow businessflow.OrderFlow
	validator *validator.Validate
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderFlow businessflow.OrderFlow) *OrderHandler {
	return &OrderHandler{
		orderFlow: orderFlow,
		validator: validator.New(),
	}
}

func (h *OrderHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *OrderHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateOrder records a historical order price
// @Summary Create Order
// @Description Record an order price point. article_id is optional; when given it must exist and fills article_name if that is blank.
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body dto.CreateOrderRequest true "Order data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateOrderResponse} "Order recorded"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid date"
// @Failure 404 {object} dto.APIResponse "Referenced article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders [post]
func (h *OrderHandler) CreateOrder(c fiber.Ctx) error {
	var req dto.CreateOrderRequest
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

	result, err := h.orderFlow.CreateOrder(h.createRequestContext(c, "/api/v1/orders"), &req, metadata)
	if err != nil {
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidDate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Order date must be an ISO date", "INVALID_DATE", nil)
		}

		log.Println("Order creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Order creation failed", "ORDER_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Order recorded successfully", result)
}

// ListOrders returns orders with optional article filters
// @Summary List Orders
// @Description List orders newest first, optionally filtered by article_id or article_name
// @Tags Orders
// @Produce json
// @Param article_id query int false "Filter by article id"
// @Param article_name query string false "Filter by article name"
// @Success 200 {object} dto.APIResponse{data=dto.ListOrdersResponse}
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders [get]
func (h *OrderHandler) ListOrders(c fiber.Ctx) error {
	req := &dto.ListOrdersRequest{}
	if v := c.Query("article_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "article_id must be a positive integer", "INVALID_REQUEST", nil)
		}
		articleID := uint(id)
		req.ArticleID = &articleID
	}
	if name := c.Query("article_name"); name != "" {
		req.ArticleName = &name
	}

	result, err := h.orderFlow.ListOrders(h.createRequestContext(c, "/api/v1/orders"), req)
	if err != nil {
		log.Println("List orders failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list orders", "LIST_ORDERS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Orders retrieved successfully", result)
}

// GetOrder returns a single order
// @Summary Get Order
// @Description Retrieve one order by its numeric id
// @Tags Orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} dto.APIResponse{data=dto.OrderDTO}
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) GetOrder(c fiber.Ctx) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "INVALID_ORDER_ID", nil)
	}

	result, err := h.orderFlow.GetOrder(h.createRequestContext(c, "/api/v1/orders/{id}"), orderID)
	if err != nil {
		if businessflow.IsOrderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Order not found", "ORDER_NOT_FOUND", nil)
		}

		log.Println("Get order failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve order", "GET_ORDER_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Order retrieved successfully", result)
}

// UpdateOrder applies a partial update to an order
// @Summary Update Order
// @Description Update price, date, unit, factor or article linkage of an order
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param request body dto.UpdateOrderRequest true "Fields to update"
// @Success 200 {object} dto.APIResponse{data=dto.OrderDTO}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid date"
// @Failure 404 {object} dto.APIResponse "Order or referenced article not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders/{id} [put]
func (h *OrderHandler) UpdateOrder(c fiber.Ctx) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "INVALID_ORDER_ID", nil)
	}

	var req dto.UpdateOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.ID = orderID

	// Validate request
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.orderFlow.UpdateOrder(h.createRequestContext(c, "/api/v1/orders/{id}"), &req, metadata)
	if err != nil {
		if businessflow.IsOrderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Order not found", "ORDER_NOT_FOUND", nil)
		}
		if businessflow.IsArticleNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Article not found", "ARTICLE_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidDate(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Order date must be an ISO date", "INVALID_DATE", nil)
		}

		log.Println("Order update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Order update failed", "ORDER_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Order updated successfully", result)
}

// DeleteOrder removes an order
// @Summary Delete Order
// @Description Delete one order row
// @Tags Orders
// @Param id path int true "Order ID"
// @Success 204 "Order deleted"
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Order not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c fiber.Ctx) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "INVALID_ORDER_ID", nil)
	}

	if err := h.orderFlow.DeleteOrder(h.createRequestContext(c, "/api/v1/orders/{id}"), orderID); err != nil {
		if businessflow.IsOrderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Order not found", "ORDER_NOT_FOUND", nil)
		}

		log.Println("Order deletion failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Order deletion failed", "ORDER_DELETION_FAILED", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *OrderHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// createRequestContextWithTimeout creates a context with custom timeout and request-scoped values
func (h *OrderHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
