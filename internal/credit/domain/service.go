package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateCreditRequest struct {
	CustomerID       string
	BillingAccountID string
	Type             CreditType
	TotalAmount      int64
	Currency         string
	ValidFrom        time.Time
	ValidTo          time.Time
	AllowCarryOver   bool
}

type ListCreditsRequest struct {
	CustomerID string
	Status     CreditStatus
}

type ListCreditsResponse struct {
	Credits []Credit `json:"credits"`
}

type GetCreditRequest struct {
	ID string
}

// ApplyCreditsRequest asks the ledger to cover as much of AmountDue as the
// customer's eligible credits allow.
type ApplyCreditsRequest struct {
	CustomerID   snowflake.ID
	InvoiceID    *snowflake.ID
	InvoiceRunID *snowflake.ID
	Currency     string
	AmountDue    int64
	IssueDate    time.Time
}

type ApplyCreditsResult struct {
	AmountCovered int64
	Entries       []CreditLedgerEntry
}

// ApplyCreditAmountRequest applies an explicit amount from one credit.
type ApplyCreditAmountRequest struct {
	CreditID  string
	InvoiceID *snowflake.ID
	Currency  string
	Amount    int64
	IssueDate time.Time
}

type Service interface {
	Create(context.Context, CreateCreditRequest) (Credit, error)
	List(context.Context, ListCreditsRequest) (ListCreditsResponse, error)
	GetWithLedger(context.Context, GetCreditRequest) (CreditWithLedger, error)

	// ApplyCredits consumes eligible credits oldest-expiring-first until the
	// due amount is covered or credits run out.
	ApplyCredits(context.Context, ApplyCreditsRequest) (ApplyCreditsResult, error)

	// ApplyCreditsInTx is ApplyCredits running inside a caller-owned
	// transaction, so a failed invoice run rolls its applications back.
	ApplyCreditsInTx(context.Context, *gorm.DB, ApplyCreditsRequest) (ApplyCreditsResult, error)

	ApplyCreditAmount(context.Context, ApplyCreditAmountRequest) (CreditLedgerEntry, error)

	// ExpireCredits marks ACTIVE credits whose validity window has passed.
	ExpireCredits(ctx context.Context, asOf time.Time) (int64, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, credit *Credit) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Credit, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status CreditStatus) ([]*Credit, error)
	EligibleForApplication(ctx context.Context, db *gorm.DB, customerID snowflake.ID, currency string, issueDate time.Time) ([]*Credit, error)
	ConditionalDecrement(ctx context.Context, db *gorm.DB, creditID snowflake.ID, amount int64, at time.Time) (bool, error)
	MarkDepletedIfEmpty(ctx context.Context, db *gorm.DB, creditID snowflake.ID, at time.Time) error
	InsertLedgerEntry(ctx context.Context, db *gorm.DB, entry *CreditLedgerEntry) error
	LedgerByCredit(ctx context.Context, db *gorm.DB, creditID snowflake.ID) ([]*CreditLedgerEntry, error)
	ExpireBefore(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error)
}

var (
	ErrInvalidID                 = errors.New("invalid_id")
	ErrInvalidAmount             = errors.New("invalid_amount")
	ErrInvalidCurrency           = errors.New("invalid_currency")
	ErrInvalidValidityWindow     = errors.New("invalid_validity_window")
	ErrNotFound                  = errors.New("credit_not_found")
	ErrCurrencyMismatch          = errors.New("currency_mismatch")
	ErrInsufficientCreditBalance = errors.New("insufficient_credit_balance")
	ErrCreditNotApplicable       = errors.New("credit_not_applicable")
)
