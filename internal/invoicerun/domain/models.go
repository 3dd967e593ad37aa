package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// InvoiceRun is one execution of the invoicing batch for a billing month.
// Runs are keyed by (billing_month, source_key); only one non-terminal run
// per month may exist at a time.
type InvoiceRun struct {
	ID                      snowflake.ID      `gorm:"primaryKey" json:"id"`
	BillingMonth            string            `gorm:"not null;index;uniqueIndex:ux_invoice_run_month_source" json:"billing_month"`
	SourceKey               string            `gorm:"not null;uniqueIndex:ux_invoice_run_month_source" json:"source_key"`
	Status                  RunStatus         `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	SourceIngestionBatchIDs datatypes.JSON    `gorm:"type:jsonb" json:"source_ingestion_batch_ids,omitempty"`
	SourceTimeRangeStart    *time.Time        `json:"source_time_range_start,omitempty"`
	SourceTimeRangeEnd      *time.Time        `json:"source_time_range_end,omitempty"`
	CustomerCount           int64             `gorm:"not null;default:0" json:"customer_count"`
	ProjectCount            int64             `gorm:"not null;default:0" json:"project_count"`
	RowCount                int64             `gorm:"not null;default:0" json:"row_count"`
	CurrencyBreakdown       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"currency_breakdown,omitempty"`
	TotalInvoices           int64             `gorm:"not null;default:0" json:"total_invoices"`
	TotalAmount             int64             `gorm:"not null;default:0" json:"total_amount"`
	ErrorMessage            *string           `json:"error_message,omitempty"`
	StartedAt               *time.Time        `json:"started_at,omitempty"`
	FinishedAt              *time.Time        `json:"finished_at,omitempty"`
	CreatedAt               time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (InvoiceRun) TableName() string { return "invoice_runs" }

// ScopedCostLine is one in-scope raw cost row joined to its owning customer
// through the active project binding.
type ScopedCostLine struct {
	CustomerID     snowflake.ID
	ProjectID      string
	SkuID          string
	UsageStartTime time.Time
	CostAmount     int64
	Currency       string
}

// RunDetail is the read aggregate for one run.
type RunDetail struct {
	Run      InvoiceRun              `json:"run"`
	Invoices []invoicedomain.Invoice `json:"invoices"`
}
