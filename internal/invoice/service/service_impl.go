package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/config"
	"github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/pkg/db"
	"github.com/smallbiznis/cirrus/pkg/db/option"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.BillingPolicyHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.BillingPolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("invoice.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListInvoicesRequest) (domain.ListInvoicesResponse, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.Invoice{})
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListInvoicesResponse{}, domain.ErrInvalidID
		}
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if month := strings.TrimSpace(req.BillingMonth); month != "" {
		stmt = stmt.Where("billing_month = ?", month)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)

	var items []*domain.Invoice
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoicesResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, req domain.GetInvoiceRequest) (domain.InvoiceWithLines, error) {
	invoice, err := s.findByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.InvoiceWithLines{}, err
	}

	var lines []domain.InvoiceLine
	err = s.db.WithContext(ctx).
		Model(&domain.InvoiceLine{}).
		Where("invoice_id = ?", invoice.ID).
		Order("id asc").
		Find(&lines).Error
	if err != nil {
		return domain.InvoiceWithLines{}, err
	}

	return domain.InvoiceWithLines{Invoice: *invoice, Lines: lines}, nil
}

func (s *Service) Issue(ctx context.Context, req domain.IssueInvoiceRequest) (domain.Invoice, error) {
	var issued domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoiceStatusDraft {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		dueDays := 30
		if s.policy != nil {
			dueDays = s.policy.Current().InvoiceDueDays
		}
		due := now.AddDate(0, 0, dueDays)

		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, issue_date = ?, due_date = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			domain.InvoiceStatusIssued,
			now,
			due,
			now,
			invoice.ID,
			domain.InvoiceStatusDraft,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidState
		}

		invoice.Status = domain.InvoiceStatusIssued
		invoice.IssueDate = &now
		invoice.DueDate = &due
		invoice.UpdatedAt = now
		issued = *invoice
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.log.Info("invoice issued",
		zap.String("invoice_id", issued.ID.String()),
		zap.String("invoice_number", issued.InvoiceNumber),
	)
	return issued, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelInvoiceRequest) (domain.Invoice, error) {
	var cancelled domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if invoice.LockedAt != nil || invoice.Status == domain.InvoiceStatusLocked {
			return domain.ErrInvoiceLocked
		}
		if invoice.Status == domain.InvoiceStatusCancelled || invoice.Status == domain.InvoiceStatusPaid {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND locked_at IS NULL AND status NOT IN (?, ?, ?)`,
			domain.InvoiceStatusCancelled,
			now,
			invoice.ID,
			domain.InvoiceStatusLocked,
			domain.InvoiceStatusCancelled,
			domain.InvoiceStatusPaid,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidState
		}

		invoice.Status = domain.InvoiceStatusCancelled
		invoice.UpdatedAt = now
		cancelled = *invoice
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return cancelled, nil
}

func (s *Service) Lock(ctx context.Context, req domain.LockInvoiceRequest) (domain.Invoice, error) {
	var locked domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if invoice.LockedAt != nil {
			return domain.ErrInvoiceLocked
		}
		if invoice.Status == domain.InvoiceStatusCancelled {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, locked_at = ?, updated_at = ?
			 WHERE id = ? AND locked_at IS NULL`,
			domain.InvoiceStatusLocked,
			now,
			now,
			invoice.ID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvoiceLocked
		}

		invoice.Status = domain.InvoiceStatusLocked
		invoice.LockedAt = &now
		invoice.UpdatedAt = now
		locked = *invoice
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return locked, nil
}

func (s *Service) CreateDraftInTx(ctx context.Context, tx *gorm.DB, input domain.DraftInput) (domain.Invoice, error) {
	invoice := input.Invoice
	if invoice.ID == 0 {
		invoice.ID = s.genID.Generate()
	}

	number, err := s.nextInvoiceNumber(ctx, tx, invoice.BillingMonth)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.InvoiceNumber = fmt.Sprintf("INV-%s-%06d", invoice.BillingMonth, number)
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusDraft
	}

	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Invoice{}, domain.ErrDuplicateDraft
		}
		return domain.Invoice{}, err
	}

	for i := range input.Lines {
		line := input.Lines[i]
		if line.ID == 0 {
			line.ID = s.genID.Generate()
		}
		line.InvoiceID = invoice.ID
		if err := tx.WithContext(ctx).Create(&line).Error; err != nil {
			return domain.Invoice{}, err
		}
	}

	return invoice, nil
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, billingMonth string) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) + 1 FROM invoices WHERE billing_month = ?`,
		billingMonth,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Service) findByID(ctx context.Context, tx *gorm.DB, rawID string) (*domain.Invoice, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var invoice domain.Invoice
	if err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ?`, id,
	).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &invoice, nil
}
