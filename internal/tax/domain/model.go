package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TaxDefinition is a tax policy. A customer-scoped definition overrides the
// platform default; RateBps is the rate in basis points so 825 means 8.25%.
type TaxDefinition struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`
	Name       string        `gorm:"not null" json:"name"`
	RateBps    int64         `gorm:"not null" json:"rate_bps"`
	IsEnabled  bool          `gorm:"not null;default:true" json:"is_enabled"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxDefinition) TableName() string { return "tax_definitions" }

func (t *TaxDefinition) Validate() error {
	if t.Name == "" {
		return ErrInvalidName
	}
	if t.RateBps < 0 || t.RateBps > 10_000 {
		return ErrInvalidTaxRate
	}
	return nil
}
