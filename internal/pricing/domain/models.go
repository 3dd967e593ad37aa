package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ListStatus string

const (
	ListActive   ListStatus = "ACTIVE"
	ListInactive ListStatus = "INACTIVE"
)

// PricingList is a customer-owned set of discount rules. A customer should
// have at most one ACTIVE list; the resolver treats more than one as a
// data-integrity fault.
type PricingList struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Name       string       `gorm:"not null" json:"name"`
	Status     ListStatus   `gorm:"not null" json:"status"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PricingList) TableName() string {
	return "pricing_lists"
}

// PricingRule maps a SKU group to a discount rate within an effective window.
// DiscountRate is a multiplier in (0,1]; 1.0 means no discount.
type PricingRule struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	PricingListID  snowflake.ID    `gorm:"not null;index" json:"pricing_list_id"`
	SkuGroupID     snowflake.ID    `gorm:"not null;index" json:"sku_group_id"`
	RuleType       string          `gorm:"not null;default:'DISCOUNT'" json:"rule_type"`
	DiscountRate   decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"discount_rate"`
	EffectiveStart time.Time       `gorm:"not null" json:"effective_start"`
	EffectiveEnd   time.Time       `gorm:"not null" json:"effective_end"`
	Priority       int             `gorm:"not null" json:"priority"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PricingRule) TableName() string {
	return "pricing_rules"
}

// PricingListWithRules is the aggregate the resolver consumes. Rules are
// fully materialized so resolution never issues follow-up queries.
type PricingListWithRules struct {
	List  PricingList
	Rules []PricingRule
}
