package dto

import (
	"time"
)

// CreateCostModelRequest represents the request to attach an index
// contribution to an article
type CreateCostModelRequest struct {
	ArticleID     uint     `json:"article_id" validate:"required"`
	IndexID       uint     `json:"index_id" validate:"required"`
	Part          float64  `json:"part" validate:"gte=0"`
	DirectCostEUR *float64 `json:"direct_cost_eur,omitempty" validate:"omitempty,gte=0"`
}

// UpdateCostModelRequest represents a partial update of a cost model row
type UpdateCostModelRequest struct {
	ArticleID     uint     `json:"-"`
	IndexID       uint     `json:"-"`
	Part          *float64 `json:"part,omitempty" validate:"omitempty,gte=0"`
	DirectCostEUR *float64 `json:"direct_cost_eur,omitempty" validate:"omitempty,gte=0"`
}

// CostModelDTO represents cost model data for API responses
type CostModelDTO struct {
	ArticleID     uint        `json:"article_id"`
	IndexID       uint        `json:"index_id"`
	Part          float64     `json:"part"`
	DirectCostEUR *float64    `json:"direct_cost_eur,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Article       *ArticleDTO `json:"article,omitempty"`
	Index         *IndexDTO   `json:"index,omitempty"`
}

// CreateCostModelResponse represents the response after creating a cost
// model row
type CreateCostModelResponse struct {
	Message   string       `json:"message"`
	CostModel CostModelDTO `json:"cost_model"`
}

// ListCostModelsResponse represents a list of cost model rows
type ListCostModelsResponse struct {
	Message string         `json:"message"`
	Items   []CostModelDTO `json:"items"`
}
