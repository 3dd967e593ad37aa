package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListInvoicesRequest struct {
	PageToken    string
	PageSize     int32
	CustomerID   string
	BillingMonth string
	Status       InvoiceStatus
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type GetInvoiceRequest struct {
	ID string
}

type IssueInvoiceRequest struct {
	ID string
}

type CancelInvoiceRequest struct {
	ID string
}

type LockInvoiceRequest struct {
	ID string
}

// DraftInput is the orchestrator's write shape: one invoice with its lines,
// persisted inside the run transaction.
type DraftInput struct {
	Invoice Invoice
	Lines   []InvoiceLine
}

type Service interface {
	List(context.Context, ListInvoicesRequest) (ListInvoicesResponse, error)
	Get(context.Context, GetInvoiceRequest) (InvoiceWithLines, error)
	Issue(context.Context, IssueInvoiceRequest) (Invoice, error)
	Cancel(context.Context, CancelInvoiceRequest) (Invoice, error)
	Lock(context.Context, LockInvoiceRequest) (Invoice, error)

	// CreateDraftInTx assigns an invoice number and persists the draft with
	// its lines inside the caller's transaction.
	CreateDraftInTx(ctx context.Context, tx *gorm.DB, input DraftInput) (Invoice, error)
}

var (
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("invoice_not_found")
	ErrInvalidState   = errors.New("invalid_invoice_state")
	ErrInvoiceLocked  = errors.New("invoice_locked")
	ErrDuplicateDraft = errors.New("duplicate_invoice_draft")
)
