package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, billingMonth, sourceKey string) (*domain.InvoiceRun, error) {
	var run domain.InvoiceRun
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoice_runs WHERE billing_month = ? AND source_key = ?`,
		billingMonth,
		sourceKey,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.InvoiceRun, error) {
	var run domain.InvoiceRun
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoice_runs WHERE id = ?`,
		id,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

// FindActiveForMonth returns a non-terminal run for the month, if any. This
// is the month lock read; the partial unique index backs it under races.
func (r *repo) FindActiveForMonth(ctx context.Context, db *gorm.DB, billingMonth string) (*domain.InvoiceRun, error) {
	var run domain.InvoiceRun
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoice_runs
		 WHERE billing_month = ? AND status IN (?, ?)
		 ORDER BY id ASC LIMIT 1`,
		billingMonth,
		domain.RunPending,
		domain.RunRunning,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.InvoiceRun) error {
	return db.WithContext(ctx).Create(run).Error
}

// MarkRunning transitions PENDING or FAILED to RUNNING. A false return means
// the run is already terminal-successful or running.
func (r *repo) MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoice_runs
		 SET status = ?, started_at = ?, finished_at = NULL, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.RunRunning,
		at,
		at,
		id,
		domain.RunPending,
		domain.RunFailed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, run *domain.InvoiceRun) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_runs
		 SET status = ?,
		     source_ingestion_batch_ids = ?,
		     source_time_range_start = ?,
		     source_time_range_end = ?,
		     customer_count = ?,
		     project_count = ?,
		     row_count = ?,
		     currency_breakdown = ?,
		     total_invoices = ?,
		     total_amount = ?,
		     finished_at = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RunSucceeded,
		run.SourceIngestionBatchIDs,
		run.SourceTimeRangeStart,
		run.SourceTimeRangeEnd,
		run.CustomerCount,
		run.ProjectCount,
		run.RowCount,
		run.CurrencyBreakdown,
		run.TotalInvoices,
		run.TotalAmount,
		run.FinishedAt,
		run.FinishedAt,
		run.ID,
		domain.RunRunning,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_runs
		 SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RunFailed,
		message,
		at,
		at,
		id,
		domain.RunRunning,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, billingMonth string, status domain.RunStatus) ([]*domain.InvoiceRun, error) {
	stmt := db.WithContext(ctx).Model(&domain.InvoiceRun{})
	if billingMonth != "" {
		stmt = stmt.Where("billing_month = ?", billingMonth)
	}
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var runs []*domain.InvoiceRun
	if err := stmt.Order("created_at desc, id desc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// InScopeLines joins raw cost in the month range to its owning customer via
// the active project binding. Unbound cost is excluded by the inner join.
func (r *repo) InScopeLines(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.ScopedCostLine, error) {
	var lines []domain.ScopedCostLine
	err := db.WithContext(ctx).Raw(
		`SELECT b.customer_id AS customer_id,
		        e.project_id AS project_id,
		        e.sku_id AS sku_id,
		        e.usage_start_time AS usage_start_time,
		        e.cost_amount AS cost_amount,
		        e.currency AS currency
		 FROM raw_cost_entries e
		 JOIN project_bindings b
		   ON b.project_id = e.project_id AND b.status = 'ACTIVE'
		 WHERE e.usage_start_time >= ? AND e.usage_start_time < ?
		 ORDER BY b.customer_id ASC, e.currency ASC, e.usage_start_time ASC, e.id ASC`,
		start,
		end,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) InvoicesByRun(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("invoice_run_id = ?", runID).
		Order("customer_id asc, currency asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ReleaseStale(ctx context.Context, db *gorm.DB, cutoff, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoice_runs
		 SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
		 WHERE status = ? AND started_at < ?`,
		domain.RunFailed,
		"released stale run",
		at,
		at,
		domain.RunRunning,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
