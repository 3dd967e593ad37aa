package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"gorm.io/gorm"
)

type StartRunRequest struct {
	BillingMonth string
	SourceKey    string
}

type GetRunRequest struct {
	ID string
}

type ListRunsRequest struct {
	BillingMonth string
	Status       RunStatus
}

type ListRunsResponse struct {
	Runs []InvoiceRun `json:"runs"`
}

type Service interface {
	// Start executes the invoicing batch for a billing month. Re-starting a
	// SUCCEEDED (month, sourceKey) run is a no-op returning the existing run.
	Start(context.Context, StartRunRequest) (InvoiceRun, error)

	Get(context.Context, GetRunRequest) (RunDetail, error)
	List(context.Context, ListRunsRequest) (ListRunsResponse, error)

	// ReleaseStaleRuns fails RUNNING runs started before the cutoff so a
	// crashed run does not hold the month lock forever.
	ReleaseStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Repository interface {
	FindByKey(ctx context.Context, db *gorm.DB, billingMonth, sourceKey string) (*InvoiceRun, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InvoiceRun, error)
	FindActiveForMonth(ctx context.Context, db *gorm.DB, billingMonth string) (*InvoiceRun, error)
	Insert(ctx context.Context, db *gorm.DB, run *InvoiceRun) error
	MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, run *InvoiceRun) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, at time.Time) error
	List(ctx context.Context, db *gorm.DB, billingMonth string, status RunStatus) ([]*InvoiceRun, error)
	InScopeLines(ctx context.Context, db *gorm.DB, start, end time.Time) ([]ScopedCostLine, error)
	InvoicesByRun(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]invoicedomain.Invoice, error)
	ReleaseStale(ctx context.Context, db *gorm.DB, cutoff, at time.Time) (int64, error)
}

var (
	ErrInvalidBillingMonth = errors.New("invalid_billing_month")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("invoice_run_not_found")
	ErrRunInProgress       = errors.New("invoice_run_in_progress")
)
