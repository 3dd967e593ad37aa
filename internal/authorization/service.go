package authorization

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ObjectCustomer       = "customer"
	ObjectProject        = "project"
	ObjectCatalog        = "catalog"
	ObjectPricingList    = "pricing_list"
	ObjectCredit         = "credit"
	ObjectCostEntry      = "cost_entry"
	ObjectInvoice        = "invoice"
	ObjectInvoiceRun     = "invoice_run"
	ObjectReconciliation = "reconciliation"
	ObjectTax            = "tax"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionCustomerView   = "customer.view"
	ActionCustomerCreate = "customer.create"

	ActionProjectView   = "project.view"
	ActionProjectCreate = "project.create"
	ActionProjectBind   = "project.bind"
	ActionProjectUnbind = "project.unbind"

	ActionCatalogView   = "catalog.view"
	ActionCatalogManage = "catalog.manage"

	ActionPricingListView   = "pricing_list.view"
	ActionPricingListManage = "pricing_list.manage"

	ActionCreditView   = "credit.view"
	ActionCreditCreate = "credit.create"
	ActionCreditApply  = "credit.apply"

	ActionCostEntryView   = "cost_entry.view"
	ActionCostEntryIngest = "cost_entry.ingest"

	ActionInvoiceView   = "invoice.view"
	ActionInvoiceIssue  = "invoice.issue"
	ActionInvoiceCancel = "invoice.cancel"
	ActionInvoiceLock   = "invoice.lock"

	ActionInvoiceRunView    = "invoice_run.view"
	ActionInvoiceRunStart   = "invoice_run.start"
	ActionInvoiceRunRelease = "invoice_run.release"

	ActionReconciliationView = "reconciliation.view"

	ActionTaxView   = "tax.view"
	ActionTaxManage = "tax.manage"

	ActionAuditLogView = "audit_log.view"
)

// AccessGrant assigns an actor a role and, optionally, restricts it to one
// customer. An actor with only role rows (customer_id NULL) is unrestricted;
// any customer-scoped row narrows the actor's visibility to those customers.
type AccessGrant struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	Actor      string        `gorm:"not null;index" json:"actor"`
	Role       string        `gorm:"not null" json:"role"`
	CustomerID *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AccessGrant) TableName() string { return "access_grants" }

type Service interface {
	// Authorize rejects the call with ErrForbidden unless the actor's role
	// carries the (object, action) permission.
	Authorize(ctx context.Context, actor string, object string, action string) error

	// ScopedCustomerIDs returns the customers the actor may see. A nil slice
	// means unrestricted.
	ScopedCustomerIDs(ctx context.Context, actor string) ([]snowflake.ID, error)
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
