package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, credit *domain.Credit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credits (id, customer_id, billing_account_id, type, total_amount, remaining_amount, currency, valid_from, valid_to, allow_carry_over, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credit.ID,
		credit.CustomerID,
		credit.BillingAccountID,
		credit.Type,
		credit.TotalAmount,
		credit.RemainingAmount,
		credit.Currency,
		credit.ValidFrom,
		credit.ValidTo,
		credit.AllowCarryOver,
		credit.Status,
		credit.CreatedAt,
		credit.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Credit, error) {
	var credit domain.Credit
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM credits WHERE id = ?`,
		id,
	).Scan(&credit).Error
	if err != nil {
		return nil, err
	}
	if credit.ID == 0 {
		return nil, nil
	}
	return &credit, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status domain.CreditStatus) ([]*domain.Credit, error) {
	var credits []*domain.Credit
	stmt := db.WithContext(ctx).
		Model(&domain.Credit{}).
		Where("customer_id = ?", customerID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	err := stmt.
		Order("valid_from asc, id asc").
		Find(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

// EligibleForApplication returns ACTIVE credits whose validity window covers
// the issue date, oldest-expiring-first.
func (r *repo) EligibleForApplication(ctx context.Context, db *gorm.DB, customerID snowflake.ID, currency string, issueDate time.Time) ([]*domain.Credit, error) {
	var credits []*domain.Credit
	err := db.WithContext(ctx).
		Model(&domain.Credit{}).
		Where("customer_id = ? AND currency = ? AND status = ?", customerID, currency, domain.CreditActive).
		Where("valid_from <= ? AND valid_to >= ?", issueDate, issueDate).
		Order("valid_from asc, valid_to asc, id asc").
		Find(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

// ConditionalDecrement subtracts amount only if the balance still covers it.
// A false return means a concurrent application won the race.
func (r *repo) ConditionalDecrement(ctx context.Context, db *gorm.DB, creditID snowflake.ID, amount int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credits
		 SET remaining_amount = remaining_amount - ?, updated_at = ?
		 WHERE id = ? AND status = ? AND remaining_amount >= ?`,
		amount,
		at,
		creditID,
		domain.CreditActive,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkDepletedIfEmpty(ctx context.Context, db *gorm.DB, creditID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credits
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND remaining_amount = 0`,
		domain.CreditDepleted,
		at,
		creditID,
		domain.CreditActive,
	).Error
}

func (r *repo) InsertLedgerEntry(ctx context.Context, db *gorm.DB, entry *domain.CreditLedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_ledger_entries (id, credit_id, invoice_id, invoice_run_id, amount_applied, currency, applied_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreditID,
		entry.InvoiceID,
		entry.InvoiceRunID,
		entry.AmountApplied,
		entry.Currency,
		entry.AppliedAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) LedgerByCredit(ctx context.Context, db *gorm.DB, creditID snowflake.ID) ([]*domain.CreditLedgerEntry, error) {
	var entries []*domain.CreditLedgerEntry
	err := db.WithContext(ctx).
		Model(&domain.CreditLedgerEntry{}).
		Where("credit_id = ?", creditID).
		Order("applied_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ExpireBefore(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credits
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND valid_to < ? AND remaining_amount > 0`,
		domain.CreditExpired,
		asOf,
		domain.CreditActive,
		asOf,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
