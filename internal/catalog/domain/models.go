package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SkuGroup clusters provider SKUs for pricing. Discount rules target groups,
// never individual SKUs.
type SkuGroup struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"uniqueIndex;not null" json:"code"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SkuGroup) TableName() string {
	return "sku_groups"
}

type Sku struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	SkuID       string       `gorm:"uniqueIndex;not null" json:"sku_id"`
	SkuGroupID  snowflake.ID `gorm:"not null;index" json:"sku_group_id"`
	Service     string       `gorm:"not null" json:"service"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Sku) TableName() string {
	return "skus"
}
