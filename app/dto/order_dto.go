package dto

import (
	"time"
)

// CreateOrderRequest represents the request to record an observed order
type CreateOrderRequest struct {
	ArticleID   *uint   `json:"article_id,omitempty"`
	ArticleName string  `json:"article_name" validate:"required_without=ArticleID,max=255"`
	Price       float64 `json:"price" validate:"required"`
	PriceFactor float64 `json:"price_factor" validate:"required"`
	Unit        string  `json:"unit" validate:"required,max=32"`
	OrderDate   string  `json:"order_date" validate:"required"`
}

// UpdateOrderRequest represents a partial update of an existing order
type UpdateOrderRequest struct {
	ID          uint     `json:"-"`
	ArticleID   *uint    `json:"article_id,omitempty"`
	ArticleName *string  `json:"article_name,omitempty" validate:"omitempty,max=255"`
	Price       *float64 `json:"price,omitempty"`
	PriceFactor *float64 `json:"price_factor,omitempty"`
	Unit        *string  `json:"unit,omitempty" validate:"omitempty,max=32"`
	OrderDate   *string  `json:"order_date,omitempty"`
}

// OrderDTO represents order data for API responses
type OrderDTO struct {
	ID          uint      `json:"id"`
	ArticleID   *uint     `json:"article_id,omitempty"`
	ArticleName string    `json:"article_name"`
	Price       float64   `json:"price"`
	PriceFactor *float64  `json:"price_factor,omitempty"`
	Unit        *string   `json:"unit,omitempty"`
	OrderDate   time.Time `json:"order_date"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateOrderResponse represents the response after recording an order
type CreateOrderResponse struct {
	Message string   `json:"message"`
	Order   OrderDTO `json:"order"`
}

// ListOrdersRequest represents the order listing filters
type ListOrdersRequest struct {
	ArticleID   *uint   `json:"article_id,omitempty"`
	ArticleName *string `json:"article_name,omitempty"`
}

// ListOrdersResponse represents a list of orders
type ListOrdersResponse struct {
	Message string     `json:"message"`
	Items   []OrderDTO `json:"items"`
}
