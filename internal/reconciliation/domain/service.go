package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReportRequest struct {
	BillingMonth string
	// CustomerIDs restricts the whole report to the listed customers; empty
	// means unrestricted. A scoped report omits the unassigned sections
	// because unassigned cost belongs to no customer.
	CustomerIDs []snowflake.ID
}

// CurrencyVariance compares invoiced output against raw ingested cost for one
// currency. Variance is invoiced minus raw; a negative value means less was
// invoiced than ingested.
type CurrencyVariance struct {
	Currency        string          `json:"currency"`
	RawCostTotal    int64           `json:"raw_cost_total"`
	InvoicedTotal   int64           `json:"invoiced_total"`
	Variance        int64           `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

type CustomerVariance struct {
	CustomerID      snowflake.ID    `json:"customer_id"`
	Currency        string          `json:"currency"`
	RawCostTotal    int64           `json:"raw_cost_total"`
	InvoicedTotal   int64           `json:"invoiced_total"`
	Variance        int64           `json:"variance"`
	VariancePercent decimal.Decimal `json:"variance_percent"`
}

type UnassignedProject struct {
	ProjectID string `json:"project_id"`
	Currency  string `json:"currency"`
	CostTotal int64  `json:"cost_total"`
}

// UnassignedCostTotal sums every unassigned cost row in the month for one
// currency, not just the capped UnassignedProjects listing.
type UnassignedCostTotal struct {
	Currency  string `json:"currency"`
	CostTotal int64  `json:"cost_total"`
}

type Report struct {
	BillingMonth string             `json:"billing_month"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Totals       []CurrencyVariance `json:"totals"`
	// Customers attributes raw cost through the project bindings as they are
	// at report time, not as they were when the month was invoiced. A project
	// re-bound since the run shows its cost under the new owner.
	Customers            []CustomerVariance    `json:"customers"`
	UnassignedProjects   []UnassignedProject   `json:"unassigned_projects"`
	UnassignedCostTotals []UnassignedCostTotal `json:"unassigned_cost_totals"`
}

// Service builds read-only variance reports. Reports never mutate state and
// may run while an invoice run is in flight; they see whatever is committed.
type Service interface {
	Report(context.Context, ReportRequest) (Report, error)
}

type CurrencyTotal struct {
	Currency string
	Total    int64
}

type CustomerCurrencyTotal struct {
	CustomerID snowflake.ID
	Currency   string
	Total      int64
}

type Repository interface {
	RawTotals(ctx context.Context, db *gorm.DB, start, end time.Time, customerIDs []snowflake.ID) ([]CurrencyTotal, error)
	InvoicedTotals(ctx context.Context, db *gorm.DB, billingMonth string, customerIDs []snowflake.ID) ([]CurrencyTotal, error)
	RawTotalsByCustomer(ctx context.Context, db *gorm.DB, start, end time.Time, customerIDs []snowflake.ID) ([]CustomerCurrencyTotal, error)
	InvoicedTotalsByCustomer(ctx context.Context, db *gorm.DB, billingMonth string, customerIDs []snowflake.ID) ([]CustomerCurrencyTotal, error)
	UnassignedProjectTotals(ctx context.Context, db *gorm.DB, start, end time.Time, limit int) ([]UnassignedProject, error)
	UnassignedCostTotals(ctx context.Context, db *gorm.DB, start, end time.Time) ([]UnassignedCostTotal, error)
}

var ErrInvalidBillingMonth = errors.New("invalid_billing_month")
