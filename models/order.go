package models

import (
	"time"

	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// Order represents an observed transaction price for an article.
// ArticleID is nullable: imported orders may only carry the article name,
// and deleting an article keeps its orders with the reference cleared.
type Order struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ArticleID   *uint     `gorm:"index:idx_orders_article_id" json:"article_id,omitempty"`
	ArticleName string    `gorm:"type:varchar(255);not null;index:idx_orders_article_name" json:"article_name"`
	Price       float64   `gorm:"type:numeric(14,4);not null" json:"price"`
	PriceFactor *float64  `gorm:"type:numeric(16,4)" json:"price_factor,omitempty"`
	Unit        *string   `gorm:"type:varchar(32)" json:"unit,omitempty"`
	OrderDate   time.Time `gorm:"type:date;not null;index:idx_orders_order_date" json:"order_date"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Article *Article `gorm:"foreignKey:ArticleID;references:ID" json:"article,omitempty"`
}

// TableName returns the table name for the model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate is called before creating a new record
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	o.OrderDate = utils.DateOnly(o.OrderDate)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = utils.UTCNow()
	}
	return nil
}

// OrderFilter represents filter criteria for orders
type OrderFilter struct {
	ID          *uint      `json:"id,omitempty"`
	ArticleID   *uint      `json:"article_id,omitempty"`
	ArticleName *string    `json:"article_name,omitempty"`
	OrderAfter  *time.Time `json:"order_after,omitempty"`
	OrderBefore *time.Time `json:"order_before,omitempty"`
}
