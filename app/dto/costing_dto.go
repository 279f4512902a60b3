package dto

import (
	"time"
)

// CostBreakdownResponse groups an article's estimated cost into buckets
// for visualization
type CostBreakdownResponse struct {
	ArticleID       uint     `json:"article_id"`
	ArticleName     string   `json:"article_name"`
	Currency        string   `json:"currency"`
	ArticlePrice    *float64 `json:"article_price,omitempty"`
	MaterialsCost   float64  `json:"materials_cost"`
	LaborCost       float64  `json:"labor_cost"`
	ElectricityCost float64  `json:"electricity_cost"`
	OverheadCost    float64  `json:"overhead_cost"`
	BaseCost        float64  `json:"base_cost"`
	ProfitMargin    float64  `json:"profit_margin"`
	TotalCost       float64  `json:"total_cost"`
}

// IndexValuePoint is a single computed cost value at a specific date
type IndexValuePoint struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	UnitValue float64   `json:"unit_value"`
}

// ArticleIndexSeries is the historical time series for one index referenced
// by an article's cost model
type ArticleIndexSeries struct {
	IndexID       uint              `json:"index_id"`
	IndexName     string            `json:"index_name"`
	Unit          string            `json:"unit"`
	QuantityValue float64           `json:"quantity_value"`
	QuantityUnit  string            `json:"quantity_unit"`
	IsMaterial    bool              `json:"is_material"`
	Values        []IndexValuePoint `json:"values"`
}

// ArticleIndicesValuesResponse holds historical values for all indices used
// in an article's cost model
type ArticleIndicesValuesResponse struct {
	ArticleID   uint                 `json:"article_id"`
	ArticleName string               `json:"article_name"`
	Indices     []ArticleIndexSeries `json:"indices"`
}

// ArticlePricePoint is a single order entry for price history visualization
type ArticlePricePoint struct {
	OrderID     uint      `json:"order_id"`
	OrderDate   time.Time `json:"order_date"`
	Price       float64   `json:"price"`
	PriceFactor *float64  `json:"price_factor,omitempty"`
	Unit        *string   `json:"unit,omitempty"`
}

// ArticlePriceHistoryResponse holds all order-based price points for an article
type ArticlePriceHistoryResponse struct {
	ArticleID   uint                `json:"article_id"`
	ArticleName string              `json:"article_name"`
	Points      []ArticlePricePoint `json:"points"`
}
