package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/credit/domain"
	"github.com/smallbiznis/cirrus/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCreditRequest) (domain.Credit, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.Credit{}, domain.ErrInvalidID
	}
	if req.TotalAmount <= 0 {
		return domain.Credit{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Credit{}, domain.ErrInvalidCurrency
	}
	if !req.ValidTo.After(req.ValidFrom) {
		return domain.Credit{}, domain.ErrInvalidValidityWindow
	}

	var billingAccountID *snowflake.ID
	if raw := strings.TrimSpace(req.BillingAccountID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.Credit{}, domain.ErrInvalidID
		}
		billingAccountID = &parsed
	}

	creditType := req.Type
	if creditType == "" {
		creditType = domain.CreditPrepaid
	}

	now := s.clock.Now()
	credit := domain.Credit{
		ID:               s.genID.Generate(),
		CustomerID:       customerID,
		BillingAccountID: billingAccountID,
		Type:             creditType,
		TotalAmount:      req.TotalAmount,
		RemainingAmount:  req.TotalAmount,
		Currency:         currency,
		ValidFrom:        req.ValidFrom.UTC(),
		ValidTo:          req.ValidTo.UTC(),
		AllowCarryOver:   req.AllowCarryOver,
		Status:           domain.CreditActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &credit); err != nil {
		return domain.Credit{}, err
	}
	return credit, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCreditsRequest) (domain.ListCreditsResponse, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.ListCreditsResponse{}, domain.ErrInvalidID
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, customerID, req.Status)
	if err != nil {
		return domain.ListCreditsResponse{}, err
	}

	credits := make([]domain.Credit, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		credits = append(credits, *item)
	}
	return domain.ListCreditsResponse{Credits: credits}, nil
}

func (s *Service) GetWithLedger(ctx context.Context, req domain.GetCreditRequest) (domain.CreditWithLedger, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.CreditWithLedger{}, domain.ErrInvalidID
	}

	credit, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.CreditWithLedger{}, err
	}
	if credit == nil {
		return domain.CreditWithLedger{}, domain.ErrNotFound
	}

	entries, err := s.repo.LedgerByCredit(ctx, s.db, id)
	if err != nil {
		return domain.CreditWithLedger{}, err
	}

	aggregate := domain.CreditWithLedger{Credit: *credit}
	for _, entry := range entries {
		aggregate.Entries = append(aggregate.Entries, *entry)
	}
	return aggregate, nil
}

func (s *Service) ApplyCredits(ctx context.Context, req domain.ApplyCreditsRequest) (domain.ApplyCreditsResult, error) {
	var result domain.ApplyCreditsResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ApplyCreditsInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.ApplyCreditsResult{}, err
	}
	return result, nil
}

// ApplyCreditsInTx walks eligible credits oldest-expiring-first. Every
// decrement is conditional on the balance still covering the amount; a failed
// condition means a concurrent application raced us and is surfaced, not
// retried.
func (s *Service) ApplyCreditsInTx(ctx context.Context, tx *gorm.DB, req domain.ApplyCreditsRequest) (domain.ApplyCreditsResult, error) {
	if req.CustomerID == 0 {
		return domain.ApplyCreditsResult{}, domain.ErrInvalidID
	}
	if req.AmountDue < 0 {
		return domain.ApplyCreditsResult{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.ApplyCreditsResult{}, domain.ErrInvalidCurrency
	}

	result := domain.ApplyCreditsResult{}
	if req.AmountDue == 0 {
		return result, nil
	}

	credits, err := s.repo.EligibleForApplication(ctx, tx, req.CustomerID, currency, req.IssueDate.UTC())
	if err != nil {
		return domain.ApplyCreditsResult{}, err
	}

	for _, credit := range credits {
		if result.AmountCovered == req.AmountDue {
			break
		}
		remaining := req.AmountDue - result.AmountCovered
		amount := credit.RemainingAmount
		if amount > remaining {
			amount = remaining
		}
		if amount <= 0 {
			continue
		}

		entry, err := s.applyOne(ctx, tx, credit, amount, currency, req)
		if err != nil {
			return domain.ApplyCreditsResult{}, err
		}
		result.AmountCovered += amount
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}

func (s *Service) ApplyCreditAmount(ctx context.Context, req domain.ApplyCreditAmountRequest) (domain.CreditLedgerEntry, error) {
	creditID, err := snowflake.ParseString(strings.TrimSpace(req.CreditID))
	if err != nil {
		return domain.CreditLedgerEntry{}, domain.ErrInvalidID
	}
	if req.Amount <= 0 {
		return domain.CreditLedgerEntry{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))

	var entry domain.CreditLedgerEntry
	err = s.db.Transaction(func(tx *gorm.DB) error {
		credit, err := s.repo.FindByID(ctx, tx, creditID)
		if err != nil {
			return err
		}
		if credit == nil {
			return domain.ErrNotFound
		}
		if credit.Currency != currency {
			return domain.ErrCurrencyMismatch
		}
		if credit.Status != domain.CreditActive {
			return domain.ErrCreditNotApplicable
		}
		if credit.RemainingAmount < req.Amount {
			return domain.ErrInsufficientCreditBalance
		}

		entry, err = s.applyOne(ctx, tx, credit, req.Amount, currency, domain.ApplyCreditsRequest{
			CustomerID: credit.CustomerID,
			InvoiceID:  req.InvoiceID,
			IssueDate:  req.IssueDate,
		})
		return err
	})
	if err != nil {
		return domain.CreditLedgerEntry{}, err
	}
	return entry, nil
}

// applyOne is one atomic application: conditional decrement, ledger entry,
// DEPLETED flip when the balance hits zero.
func (s *Service) applyOne(ctx context.Context, tx *gorm.DB, credit *domain.Credit, amount int64, currency string, req domain.ApplyCreditsRequest) (domain.CreditLedgerEntry, error) {
	now := s.clock.Now()

	ok, err := s.repo.ConditionalDecrement(ctx, tx, credit.ID, amount, now)
	if err != nil {
		return domain.CreditLedgerEntry{}, err
	}
	if !ok {
		return domain.CreditLedgerEntry{}, domain.ErrInsufficientCreditBalance
	}

	entry := domain.CreditLedgerEntry{
		ID:            s.genID.Generate(),
		CreditID:      credit.ID,
		InvoiceID:     req.InvoiceID,
		InvoiceRunID:  req.InvoiceRunID,
		AmountApplied: amount,
		Currency:      currency,
		AppliedAt:     now,
		CreatedAt:     now,
	}
	if err := s.repo.InsertLedgerEntry(ctx, tx, &entry); err != nil {
		return domain.CreditLedgerEntry{}, err
	}

	if err := s.repo.MarkDepletedIfEmpty(ctx, tx, credit.ID, now); err != nil {
		return domain.CreditLedgerEntry{}, err
	}

	s.metrics.RecordCreditApplication(ctx, string(credit.Type))
	s.log.Info("credit applied",
		zap.String("credit_id", credit.ID.String()),
		zap.String("customer_id", credit.CustomerID.String()),
		zap.Int64("amount_applied", amount),
		zap.String("currency", currency),
	)
	return entry, nil
}

func (s *Service) ExpireCredits(ctx context.Context, asOf time.Time) (int64, error) {
	expired, err := s.repo.ExpireBefore(ctx, s.db, asOf.UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("credits expired", zap.Int64("count", expired))
	}
	return expired, nil
}
