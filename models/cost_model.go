package models

import (
	"time"

	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// CostModel represents the contribution of one index to one article's
// should-cost. At most one row exists per (article, index) pair.
type CostModel struct {
	ArticleID     uint      `gorm:"primaryKey;autoIncrement:false" json:"article_id"`
	IndexID       uint      `gorm:"primaryKey;autoIncrement:false" json:"index_id"`
	Part          float64   `gorm:"type:numeric(14,4);not null;default:0" json:"part"`
	DirectCostEUR *float64  `gorm:"column:direct_cost_eur;type:numeric(14,4)" json:"direct_cost_eur,omitempty"`
	CreatedAt     time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Article *Article `gorm:"foreignKey:ArticleID;references:ID" json:"article,omitempty"`
	Index   *Index   `gorm:"foreignKey:IndexID;references:ID" json:"index,omitempty"`
}

// TableName returns the table name for the model
func (CostModel) TableName() string {
	return "cost_models"
}

// BeforeCreate is called before creating a new record
func (cm *CostModel) BeforeCreate(tx *gorm.DB) error {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Cost computes this row's EUR contribution against the given index
// observation. A direct EUR cost is authoritative when set; otherwise the
// part is priced at the observation's per-gram value, falling back from
// value_per_gram to value/price_factor to the raw value.
func (cm *CostModel) Cost(idx *Index) float64 {
	if cm.DirectCostEUR != nil {
		return *cm.DirectCostEUR
	}
	if idx == nil {
		return 0
	}
	return cm.Part * idx.ValuePerGramOrFallback()
}

// CostModelFilter represents filter criteria for cost-model rows
type CostModelFilter struct {
	ArticleID *uint `json:"article_id,omitempty"`
	IndexID   *uint `json:"index_id,omitempty"`
}
