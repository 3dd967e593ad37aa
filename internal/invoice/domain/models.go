// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusLocked    InvoiceStatus = "LOCKED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is one customer's bill for a billing month in a single currency.
// TotalAmount is the pre-credit gross; applied credits live in the credit
// ledger and reduce the amount due, not the nominal total. Once LockedAt is
// set the monetary fields are immutable.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceRunID  snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_run_customer_currency" json:"invoice_run_id"`
	CustomerID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_run_customer_currency" json:"customer_id"`
	BillingMonth  string            `gorm:"not null;index" json:"billing_month"`
	InvoiceNumber string            `gorm:"uniqueIndex;not null" json:"invoice_number"`
	Status        InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	Subtotal      int64             `gorm:"not null;default:0" json:"subtotal"`
	TaxAmount     int64             `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount   int64             `gorm:"not null;default:0" json:"total_amount"`
	Currency      string            `gorm:"type:text;not null;uniqueIndex:ux_invoice_run_customer_currency" json:"currency"`
	IssueDate     *time.Time        `json:"issue_date,omitempty"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	LockedAt      *time.Time        `json:"locked_at,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLine is one discounted cost line on an invoice.
type InvoiceLine struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID    snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	ProjectID    string          `gorm:"not null" json:"project_id"`
	SkuID        string          `gorm:"not null" json:"sku_id"`
	CostAmount   int64           `gorm:"not null" json:"cost_amount"`
	DiscountRate decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"discount_rate"`
	LineAmount   int64           `gorm:"not null" json:"line_amount"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

// InvoiceWithLines is the fully-materialized read aggregate.
type InvoiceWithLines struct {
	Invoice Invoice
	Lines   []InvoiceLine
}
