package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// RawTotals sums all ingested cost for the month. A customer scope needs the
// binding join so only cost attributable to the listed customers is counted.
func (r *repo) RawTotals(ctx context.Context, db *gorm.DB, start, end time.Time, customerIDs []snowflake.ID) ([]domain.CurrencyTotal, error) {
	stmt := db.WithContext(ctx).
		Table("raw_cost_entries e").
		Select("e.currency AS currency, COALESCE(SUM(e.cost_amount), 0) AS total").
		Where("e.usage_start_time >= ? AND e.usage_start_time < ?", start, end).
		Group("e.currency").
		Order("e.currency asc")
	if len(customerIDs) > 0 {
		stmt = stmt.
			Joins("JOIN project_bindings b ON b.project_id = e.project_id AND b.status = 'ACTIVE'").
			Where("b.customer_id IN ?", customerIDs)
	}

	var totals []domain.CurrencyTotal
	if err := stmt.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) InvoicedTotals(ctx context.Context, db *gorm.DB, billingMonth string, customerIDs []snowflake.ID) ([]domain.CurrencyTotal, error) {
	stmt := db.WithContext(ctx).
		Table("invoices").
		Select("currency AS currency, COALESCE(SUM(total_amount), 0) AS total").
		Where("billing_month = ? AND status != 'CANCELLED'", billingMonth).
		Group("currency").
		Order("currency asc")
	if len(customerIDs) > 0 {
		stmt = stmt.Where("customer_id IN ?", customerIDs)
	}

	var totals []domain.CurrencyTotal
	if err := stmt.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) RawTotalsByCustomer(ctx context.Context, db *gorm.DB, start, end time.Time, customerIDs []snowflake.ID) ([]domain.CustomerCurrencyTotal, error) {
	stmt := db.WithContext(ctx).
		Table("raw_cost_entries e").
		Select("b.customer_id AS customer_id, e.currency AS currency, COALESCE(SUM(e.cost_amount), 0) AS total").
		Joins("JOIN project_bindings b ON b.project_id = e.project_id AND b.status = 'ACTIVE'").
		Where("e.usage_start_time >= ? AND e.usage_start_time < ?", start, end).
		Group("b.customer_id, e.currency").
		Order("b.customer_id asc, e.currency asc")
	if len(customerIDs) > 0 {
		stmt = stmt.Where("b.customer_id IN ?", customerIDs)
	}

	var totals []domain.CustomerCurrencyTotal
	if err := stmt.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) InvoicedTotalsByCustomer(ctx context.Context, db *gorm.DB, billingMonth string, customerIDs []snowflake.ID) ([]domain.CustomerCurrencyTotal, error) {
	stmt := db.WithContext(ctx).
		Table("invoices").
		Select("customer_id AS customer_id, currency AS currency, COALESCE(SUM(total_amount), 0) AS total").
		Where("billing_month = ? AND status != 'CANCELLED'", billingMonth).
		Group("customer_id, currency").
		Order("customer_id asc, currency asc")
	if len(customerIDs) > 0 {
		stmt = stmt.Where("customer_id IN ?", customerIDs)
	}

	var totals []domain.CustomerCurrencyTotal
	if err := stmt.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

// UnassignedProjectTotals lists cost carried by projects with no active
// binding, highest spend first.
func (r *repo) UnassignedProjectTotals(ctx context.Context, db *gorm.DB, start, end time.Time, limit int) ([]domain.UnassignedProject, error) {
	var projects []domain.UnassignedProject
	err := db.WithContext(ctx).Raw(
		`SELECT e.project_id AS project_id,
		        e.currency AS currency,
		        COALESCE(SUM(e.cost_amount), 0) AS cost_total
		 FROM raw_cost_entries e
		 LEFT JOIN project_bindings b
		   ON b.project_id = e.project_id AND b.status = 'ACTIVE'
		 WHERE e.usage_start_time >= ? AND e.usage_start_time < ? AND b.id IS NULL
		 GROUP BY e.project_id, e.currency
		 ORDER BY cost_total DESC, e.project_id ASC
		 LIMIT ?`,
		start,
		end,
		limit,
	).Scan(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// UnassignedCostTotals sums unassigned cost per currency with no row cap, so
// the total stays honest when the project listing is truncated.
func (r *repo) UnassignedCostTotals(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.UnassignedCostTotal, error) {
	var totals []domain.UnassignedCostTotal
	err := db.WithContext(ctx).Raw(
		`SELECT e.currency AS currency,
		        COALESCE(SUM(e.cost_amount), 0) AS cost_total
		 FROM raw_cost_entries e
		 LEFT JOIN project_bindings b
		   ON b.project_id = e.project_id AND b.status = 'ACTIVE'
		 WHERE e.usage_start_time >= ? AND e.usage_start_time < ? AND b.id IS NULL
		 GROUP BY e.currency
		 ORDER BY e.currency ASC`,
		start,
		end,
	).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}
