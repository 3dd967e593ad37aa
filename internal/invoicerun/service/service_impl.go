package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cirrus/internal/clock"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	"github.com/smallbiznis/cirrus/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/cirrus/internal/pricing/domain"
	taxdomain "github.com/smallbiznis/cirrus/internal/tax/domain"
	"github.com/smallbiznis/cirrus/pkg/billingmonth"
	"github.com/smallbiznis/cirrus/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultSourceKey = "manual"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Pricing   pricingdomain.Service
	Credits   creditdomain.Service
	Tax       taxdomain.Service
	Invoices  invoicedomain.Service
	Ingestion ingestiondomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	pricing   pricingdomain.Service
	credits   creditdomain.Service
	tax       taxdomain.Service
	invoices  invoicedomain.Service
	ingestion ingestiondomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoicerun.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		pricing:   p.Pricing,
		credits:   p.Credits,
		tax:       p.Tax,
		invoices:  p.Invoices,
		ingestion: p.Ingestion,
		metrics:   p.Metrics,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartRunRequest) (domain.InvoiceRun, error) {
	month := strings.TrimSpace(req.BillingMonth)
	start, end, err := billingmonth.Parse(month)
	if err != nil {
		return domain.InvoiceRun{}, domain.ErrInvalidBillingMonth
	}
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		sourceKey = defaultSourceKey
	}

	run, acquired, err := s.acquire(ctx, month, sourceKey)
	if err != nil {
		return domain.InvoiceRun{}, err
	}
	if !acquired {
		// existing SUCCEEDED run: idempotent no-op
		return run, nil
	}

	log := s.log.With(
		zap.String("invoice_run_id", run.ID.String()),
		zap.String("billing_month", month),
		zap.String("source_key", sourceKey),
	)
	log.Info("invoice run started")

	if execErr := s.execute(ctx, &run, start, end); execErr != nil {
		now := s.clock.Now()
		if markErr := s.repo.MarkFailed(ctx, s.db, run.ID, execErr.Error(), now); markErr != nil {
			log.Error("failed to mark run failed", zap.Error(markErr))
		}
		message := execErr.Error()
		run.Status = domain.RunFailed
		run.ErrorMessage = &message
		run.FinishedAt = &now
		s.metrics.RecordInvoiceRun(ctx, string(domain.RunFailed))
		log.Error("invoice run failed", zap.Error(execErr))
		return run, execErr
	}

	s.metrics.RecordInvoiceRun(ctx, string(domain.RunSucceeded))
	log.Info("invoice run succeeded",
		zap.Int64("total_invoices", run.TotalInvoices),
		zap.Int64("total_amount", run.TotalAmount),
		zap.Int64("row_count", run.RowCount),
	)
	return run, nil
}

// acquire registers the run as RUNNING, enforcing one non-terminal run per
// month. It never blocks: a month already mid-run is a conflict.
func (s *Service) acquire(ctx context.Context, month, sourceKey string) (domain.InvoiceRun, bool, error) {
	var run domain.InvoiceRun
	acquired := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByKey(ctx, tx, month, sourceKey)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == domain.RunSucceeded {
			run = *existing
			return nil
		}

		active, err := s.repo.FindActiveForMonth(ctx, tx, month)
		if err != nil {
			return err
		}
		if active != nil && (existing == nil || active.ID != existing.ID) {
			return domain.ErrRunInProgress
		}

		now := s.clock.Now()
		if existing != nil {
			ok, err := s.repo.MarkRunning(ctx, tx, existing.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrRunInProgress
			}
			existing.Status = domain.RunRunning
			existing.StartedAt = &now
			existing.FinishedAt = nil
			existing.ErrorMessage = nil
			run = *existing
			acquired = true
			return nil
		}

		fresh := domain.InvoiceRun{
			ID:                s.genID.Generate(),
			BillingMonth:      month,
			SourceKey:         sourceKey,
			Status:            domain.RunRunning,
			CurrencyBreakdown: datatypes.JSONMap{},
			StartedAt:         &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.Insert(ctx, tx, &fresh); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrRunInProgress
			}
			return err
		}
		run = fresh
		acquired = true
		return nil
	})
	if err != nil {
		return domain.InvoiceRun{}, false, err
	}
	return run, acquired, nil
}

type currencyGroup struct {
	currency string
	lines    []domain.ScopedCostLine
}

type customerGroup struct {
	customerID snowflake.ID
	currencies []currencyGroup
}

// rateKey carries the exact usage instant. Rule windows are timestamps, so
// two lines on the same day can still straddle a window boundary and must
// not share a memoized rate.
type rateKey struct {
	customerID snowflake.ID
	skuID      string
	usageUnix  int64
}

// execute runs the whole batch in one transaction. Any error rolls back
// every invoice, line and credit application; only the run row survives to
// be marked FAILED.
func (s *Service) execute(ctx context.Context, run *domain.InvoiceRun, start, end time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		lines, err := s.repo.InScopeLines(ctx, tx, start, end)
		if err != nil {
			return err
		}

		batchIDs, err := s.ingestion.BatchIDsForRange(ctx, start, end)
		if err != nil {
			return err
		}

		groups := groupLines(lines)
		rates := make(map[rateKey]decimal.Decimal)
		projects := make(map[string]struct{})
		breakdown := make(map[string]int64)
		issueDate := s.clock.Now()

		var totalInvoices, totalAmount int64
		for _, group := range groups {
			for _, byCurrency := range group.currencies {
				var subtotal int64
				invoiceLines := make([]invoicedomain.InvoiceLine, 0, len(byCurrency.lines))
				for _, line := range byCurrency.lines {
					projects[line.ProjectID] = struct{}{}

					rate, err := s.resolveRate(ctx, rates, group.customerID, line)
					if err != nil {
						return err
					}
					lineAmount := decimal.NewFromInt(line.CostAmount).Mul(rate).Round(0).IntPart()
					subtotal += lineAmount
					invoiceLines = append(invoiceLines, invoicedomain.InvoiceLine{
						ProjectID:    line.ProjectID,
						SkuID:        line.SkuID,
						CostAmount:   line.CostAmount,
						DiscountRate: rate,
						LineAmount:   lineAmount,
					})
				}

				taxAmount, err := s.tax.ComputeTax(ctx, subtotal, group.customerID)
				if err != nil {
					return err
				}
				total := subtotal + taxAmount

				invoice, err := s.invoices.CreateDraftInTx(ctx, tx, invoicedomain.DraftInput{
					Invoice: invoicedomain.Invoice{
						InvoiceRunID: run.ID,
						CustomerID:   group.customerID,
						BillingMonth: run.BillingMonth,
						Subtotal:     subtotal,
						TaxAmount:    taxAmount,
						TotalAmount:  total,
						Currency:     byCurrency.currency,
						Metadata:     datatypes.JSONMap{},
						CreatedAt:    issueDate,
						UpdatedAt:    issueDate,
					},
					Lines: invoiceLines,
				})
				if err != nil {
					return err
				}

				_, err = s.credits.ApplyCreditsInTx(ctx, tx, creditdomain.ApplyCreditsRequest{
					CustomerID:   group.customerID,
					InvoiceID:    &invoice.ID,
					InvoiceRunID: &run.ID,
					Currency:     byCurrency.currency,
					AmountDue:    total,
					IssueDate:    issueDate,
				})
				if err != nil {
					return err
				}

				totalInvoices++
				totalAmount += total
				breakdown[byCurrency.currency] += total
				s.metrics.RecordInvoicesIssued(ctx, byCurrency.currency, 1)
			}
		}

		encodedBatchIDs, err := json.Marshal(batchIDs)
		if err != nil {
			return err
		}

		currencyBreakdown := datatypes.JSONMap{}
		for currency, amount := range breakdown {
			currencyBreakdown[currency] = amount
		}

		finished := s.clock.Now()
		run.SourceIngestionBatchIDs = encodedBatchIDs
		run.SourceTimeRangeStart = &start
		run.SourceTimeRangeEnd = &end
		run.CustomerCount = int64(len(groups))
		run.ProjectCount = int64(len(projects))
		run.RowCount = int64(len(lines))
		run.CurrencyBreakdown = currencyBreakdown
		run.TotalInvoices = totalInvoices
		run.TotalAmount = totalAmount
		run.FinishedAt = &finished
		run.Status = domain.RunSucceeded

		return s.repo.MarkSucceeded(ctx, tx, run)
	})
}

func (s *Service) resolveRate(ctx context.Context, memo map[rateKey]decimal.Decimal, customerID snowflake.ID, line domain.ScopedCostLine) (decimal.Decimal, error) {
	key := rateKey{
		customerID: customerID,
		skuID:      line.SkuID,
		usageUnix:  line.UsageStartTime.Unix(),
	}
	if rate, ok := memo[key]; ok {
		return rate, nil
	}

	rate, err := s.pricing.ResolveRate(ctx, pricingdomain.ResolveRateRequest{
		CustomerID: customerID,
		SkuID:      line.SkuID,
		UsageDate:  line.UsageStartTime,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	memo[key] = rate
	return rate, nil
}

// groupLines splits sorted in-scope lines by customer then currency,
// preserving the repository's deterministic order.
func groupLines(lines []domain.ScopedCostLine) []customerGroup {
	var groups []customerGroup
	for _, line := range lines {
		if len(groups) == 0 || groups[len(groups)-1].customerID != line.CustomerID {
			groups = append(groups, customerGroup{customerID: line.CustomerID})
		}
		group := &groups[len(groups)-1]

		if len(group.currencies) == 0 || group.currencies[len(group.currencies)-1].currency != line.Currency {
			group.currencies = append(group.currencies, currencyGroup{currency: line.Currency})
		}
		byCurrency := &group.currencies[len(group.currencies)-1]
		byCurrency.lines = append(byCurrency.lines, line)
	}
	return groups
}

func (s *Service) Get(ctx context.Context, req domain.GetRunRequest) (domain.RunDetail, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.RunDetail{}, domain.ErrInvalidID
	}

	run, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.RunDetail{}, err
	}
	if run == nil {
		return domain.RunDetail{}, domain.ErrNotFound
	}

	invoices, err := s.repo.InvoicesByRun(ctx, s.db, id)
	if err != nil {
		return domain.RunDetail{}, err
	}
	return domain.RunDetail{Run: *run, Invoices: invoices}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRunsRequest) (domain.ListRunsResponse, error) {
	items, err := s.repo.List(ctx, s.db, strings.TrimSpace(req.BillingMonth), req.Status)
	if err != nil {
		return domain.ListRunsResponse{}, err
	}

	runs := make([]domain.InvoiceRun, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		runs = append(runs, *item)
	}
	return domain.ListRunsResponse{Runs: runs}, nil
}

func (s *Service) ReleaseStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.clock.Now()
	released, err := s.repo.ReleaseStale(ctx, s.db, now.Add(-olderThan), now)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.log.Warn("released stale invoice runs", zap.Int64("count", released))
	}
	return released, nil
}
