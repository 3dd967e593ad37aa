package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreditStatus string

const (
	CreditActive   CreditStatus = "ACTIVE"
	CreditExpired  CreditStatus = "EXPIRED"
	CreditDepleted CreditStatus = "DEPLETED"
)

type CreditType string

const (
	CreditPrepaid  CreditType = "PREPAID"
	CreditGoodwill CreditType = "GOODWILL"
)

// Credit is a customer balance in minor units. RemainingAmount only moves
// through conditional decrements; it never goes negative and the status is
// DEPLETED exactly when it reaches zero.
type Credit struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID       snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	BillingAccountID *snowflake.ID `json:"billing_account_id,omitempty"`
	Type             CreditType    `gorm:"not null" json:"type"`
	TotalAmount      int64         `gorm:"not null" json:"total_amount"`
	RemainingAmount  int64         `gorm:"not null" json:"remaining_amount"`
	Currency         string        `gorm:"not null" json:"currency"`
	ValidFrom        time.Time     `gorm:"not null" json:"valid_from"`
	ValidTo          time.Time     `gorm:"not null" json:"valid_to"`
	AllowCarryOver   bool          `gorm:"not null" json:"allow_carry_over"`
	Status           CreditStatus  `gorm:"not null" json:"status"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Credit) TableName() string {
	return "credits"
}

// CreditLedgerEntry records one application of a credit against an invoice.
type CreditLedgerEntry struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	CreditID      snowflake.ID  `gorm:"not null;index" json:"credit_id"`
	InvoiceID     *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	InvoiceRunID  *snowflake.ID `gorm:"index" json:"invoice_run_id,omitempty"`
	AmountApplied int64         `gorm:"not null" json:"amount_applied"`
	Currency      string        `gorm:"not null" json:"currency"`
	AppliedAt     time.Time     `gorm:"not null" json:"applied_at"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger_entries"
}

// CreditWithLedger is the fully-materialized aggregate for read paths.
type CreditWithLedger struct {
	Credit  Credit
	Entries []CreditLedgerEntry
}
