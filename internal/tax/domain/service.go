package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Engine computes the tax amount for an invoice subtotal. Amounts are minor
// units; rounding is half-up per invoice.
type Engine interface {
	ComputeTax(ctx context.Context, subtotal int64, customerID snowflake.ID) (int64, error)
}

type CreateRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name"`
	RateBps    int64  `json:"rate_bps"`
}

type ListRequest struct {
	CustomerID string
}

type Service interface {
	Engine

	Create(ctx context.Context, req CreateRequest) (TaxDefinition, error)
	List(ctx context.Context, req ListRequest) ([]TaxDefinition, error)
	Disable(ctx context.Context, id string) error
}
