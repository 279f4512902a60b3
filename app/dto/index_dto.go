package dto

import (
	"time"
)

// CreateIndexRequest represents the request to record a price observation.
// Posting an existing (name, date) pair updates that row in place.
type CreateIndexRequest struct {
	Name         string   `json:"name" validate:"required,max=255"`
	Value        float64  `json:"value" validate:"required"`
	ValuePerGram *float64 `json:"value_per_gram,omitempty"`
	Date         string   `json:"date" validate:"required"`
	PriceFactor  *float64 `json:"price_factor,omitempty"`
	Unit         *string  `json:"unit,omitempty" validate:"omitempty,max=32"`
}

// UpdateIndexRequest represents a partial update of an existing index row
type UpdateIndexRequest struct {
	ID           uint     `json:"-"`
	Value        *float64 `json:"value,omitempty"`
	ValuePerGram *float64 `json:"value_per_gram,omitempty"`
	Date         *string  `json:"date,omitempty"`
	PriceFactor  *float64 `json:"price_factor,omitempty"`
	Unit         *string  `json:"unit,omitempty" validate:"omitempty,max=32"`
}

// IndexDTO represents index data for API responses
type IndexDTO struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	Value        float64    `json:"value"`
	ValuePerGram *float64   `json:"value_per_gram,omitempty"`
	Date         time.Time  `json:"date"`
	PriceFactor  *float64   `json:"price_factor,omitempty"`
	Unit         *string    `json:"unit,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// UpsertIndexResponse represents the response after creating or refreshing
// an index row
type UpsertIndexResponse struct {
	Message string   `json:"message"`
	Created bool     `json:"created"`
	Index   IndexDTO `json:"index"`
}

// ListIndicesRequest represents the index listing filters
type ListIndicesRequest struct {
	Name   *string `json:"name,omitempty"`
	Latest bool    `json:"latest"`
}

// ListIndicesResponse represents a list of index rows
type ListIndicesResponse struct {
	Message string     `json:"message"`
	Items   []IndexDTO `json:"items"`
}

// IndexNamesResponse lists the distinct index series names
type IndexNamesResponse struct {
	Message string   `json:"message"`
	Names   []string `json:"names"`
}
