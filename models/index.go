package models

import (
	"strings"
	"time"

	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// unitToGrams maps a mass unit to the number of grams it represents
var unitToGrams = map[string]float64{
	"g":         1,
	"gram":      1,
	"grams":     1,
	"kg":        1000,
	"kilogram":  1000,
	"kilograms": 1000,
	"t":         1000000,
	"ton":       1000000,
	"tons":      1000000,
	"tonne":     1000000,
	"tonnes":    1000000,
}

// IsMassUnit reports whether the unit string denotes a mass unit
func IsMassUnit(unit string) bool {
	_, ok := unitToGrams[strings.ToLower(strings.TrimSpace(unit))]
	return ok
}

// GramsPerUnit returns how many grams one unit represents, or 0 when the
// unit is not a mass unit
func GramsPerUnit(unit string) float64 {
	return unitToGrams[strings.ToLower(strings.TrimSpace(unit))]
}

// Index represents one observation of a named price series at a date
type Index struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"type:varchar(255);not null;uniqueIndex:uk_indices_name_date;index:idx_indices_name" json:"name"`
	Value        float64    `gorm:"type:numeric(16,6);not null" json:"value"`
	ValuePerGram *float64   `gorm:"type:numeric(20,10)" json:"value_per_gram,omitempty"`
	Date         time.Time  `gorm:"type:date;not null;uniqueIndex:uk_indices_name_date;index:idx_indices_date" json:"date"`
	PriceFactor  *float64   `gorm:"type:numeric(16,4)" json:"price_factor,omitempty"`
	Unit         *string    `gorm:"type:varchar(32)" json:"unit,omitempty"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	// Relations
	CostModels []CostModel `gorm:"foreignKey:IndexID;constraint:OnDelete:CASCADE" json:"cost_models,omitempty"`
}

// TableName returns the table name for the model
func (Index) TableName() string {
	return "indices"
}

// BeforeCreate is called before creating a new record
func (i *Index) BeforeCreate(tx *gorm.DB) error {
	i.Date = utils.DateOnly(i.Date)
	if i.CreatedAt.IsZero() {
		i.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (i *Index) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	i.UpdatedAt = &now
	return nil
}

// ValuePerGramOrFallback resolves the per-gram price of this observation:
// the precomputed value_per_gram when present, else value/price_factor when
// the factor is non-zero, else the raw value.
func (i *Index) ValuePerGramOrFallback() float64 {
	if i.ValuePerGram != nil {
		return *i.ValuePerGram
	}
	if i.PriceFactor != nil && *i.PriceFactor != 0 {
		return i.Value / *i.PriceFactor
	}
	return i.Value
}

// IndexFilter represents filter criteria for indices
type IndexFilter struct {
	ID         *uint      `json:"id,omitempty"`
	Name       *string    `json:"name,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	DateAfter  *time.Time `json:"date_after,omitempty"`
	DateBefore *time.Time `json:"date_before,omitempty"`
}
