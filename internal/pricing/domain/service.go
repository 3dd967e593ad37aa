package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateListRequest struct {
	CustomerID string
	Name       string
	Status     ListStatus
}

type ListPricingListsRequest struct {
	CustomerID string
}

type ListPricingListsResponse struct {
	Lists []PricingList `json:"pricing_lists"`
}

type GetListRequest struct {
	ID string
}

type AddRuleRequest struct {
	PricingListID  string
	SkuGroupID     string
	DiscountRate   decimal.Decimal
	EffectiveStart time.Time
	EffectiveEnd   time.Time
	Priority       int
}

type DeleteListRequest struct {
	ID string
}

// ResolveRateRequest identifies one cost line. Either SkuID or SkuGroupID
// must be set; SkuID is translated through the catalog.
type ResolveRateRequest struct {
	CustomerID snowflake.ID
	SkuID      string
	SkuGroupID snowflake.ID
	UsageDate  time.Time
}

type Service interface {
	CreateList(context.Context, CreateListRequest) (PricingList, error)
	ListLists(context.Context, ListPricingListsRequest) (ListPricingListsResponse, error)
	GetListWithRules(context.Context, GetListRequest) (PricingListWithRules, error)
	AddRule(context.Context, AddRuleRequest) (PricingRule, error)
	DeleteList(context.Context, DeleteListRequest) error

	// ResolveRate returns the discount multiplier for a cost line. It is a
	// pure read; 1.0 means no applicable rule.
	ResolveRate(context.Context, ResolveRateRequest) (decimal.Decimal, error)
}

type Repository interface {
	InsertList(ctx context.Context, db *gorm.DB, list *PricingList) error
	FindList(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingList, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*PricingList, error)
	ActiveListsWithRules(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*PricingListWithRules, error)
	RulesByList(ctx context.Context, db *gorm.DB, listID snowflake.ID) ([]*PricingRule, error)
	InsertRule(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	DeleteListCascade(ctx context.Context, db *gorm.DB, listID snowflake.ID) error
	SkuGroupIDForSku(ctx context.Context, db *gorm.DB, skuID string) (snowflake.ID, error)
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidDiscountRate = errors.New("invalid_discount_rate")
	ErrInvalidWindow       = errors.New("invalid_effective_window")
	ErrListNotFound        = errors.New("pricing_list_not_found")
	ErrSkuNotFound         = errors.New("sku_not_found")
	ErrAmbiguousPricing    = errors.New("ambiguous_pricing_configuration")
	ErrMissingLineIdentity = errors.New("missing_sku_identity")
)
