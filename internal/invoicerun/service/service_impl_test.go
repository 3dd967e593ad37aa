package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/cirrus/internal/catalog/domain"
	catalogsvc "github.com/smallbiznis/cirrus/internal/catalog/service"
	"github.com/smallbiznis/cirrus/internal/clock"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
	creditrepo "github.com/smallbiznis/cirrus/internal/credit/repository"
	creditsvc "github.com/smallbiznis/cirrus/internal/credit/service"
	customerdomain "github.com/smallbiznis/cirrus/internal/customer/domain"
	customerrepo "github.com/smallbiznis/cirrus/internal/customer/repository"
	customersvc "github.com/smallbiznis/cirrus/internal/customer/service"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
	ingestionsvc "github.com/smallbiznis/cirrus/internal/ingestion/service"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	invoicesvc "github.com/smallbiznis/cirrus/internal/invoice/service"
	"github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	runrepo "github.com/smallbiznis/cirrus/internal/invoicerun/repository"
	pricingdomain "github.com/smallbiznis/cirrus/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/cirrus/internal/pricing/repository"
	pricingsvc "github.com/smallbiznis/cirrus/internal/pricing/service"
	taxdomain "github.com/smallbiznis/cirrus/internal/tax/domain"
	taxsvc "github.com/smallbiznis/cirrus/internal/tax/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)

const testMonth = "2024-06"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&customerdomain.Project{},
		&customerdomain.ProjectBinding{},
		&catalogdomain.SkuGroup{},
		&catalogdomain.Sku{},
		&pricingdomain.PricingList{},
		&pricingdomain.PricingRule{},
		&creditdomain.Credit{},
		&creditdomain.CreditLedgerEntry{},
		&taxdomain.TaxDefinition{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&ingestiondomain.IngestionBatch{},
		&ingestiondomain.RawCostEntry{},
		&domain.InvoiceRun{},
	))
	return db
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	customers customerdomain.Service
	catalog   catalogdomain.Service
	pricing   pricingdomain.Service
	credits   creditdomain.Service
	tax       taxdomain.Service
	ingestion ingestiondomain.Service
	runs      domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(testNow)

	customers := customersvc.New(customersvc.Params{
		DB: db, Log: log, GenID: node, Repo: customerrepo.Provide(),
	})
	catalog := catalogsvc.New(catalogsvc.Params{DB: db, Log: log, GenID: node})
	pricing := pricingsvc.New(pricingsvc.Params{
		DB: db, Log: log, GenID: node, Repo: pricingrepo.Provide(),
	})
	credits := creditsvc.New(creditsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: creditrepo.Provide(),
	})
	tax := taxsvc.New(taxsvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	invoices := invoicesvc.New(invoicesvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	ingestion := ingestionsvc.New(ingestionsvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	runs := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      runrepo.Provide(),
		Pricing:   pricing,
		Credits:   credits,
		Tax:       tax,
		Invoices:  invoices,
		Ingestion: ingestion,
	})

	return &fixture{
		db:        db,
		node:      node,
		customers: customers,
		catalog:   catalog,
		pricing:   pricing,
		credits:   credits,
		tax:       tax,
		ingestion: ingestion,
		runs:      runs,
	}
}

func (f *fixture) createCustomer(t *testing.T, name string) customerdomain.Customer {
	t.Helper()
	customer, err := f.customers.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", strings.ToLower(name)),
		Currency: "USD",
	})
	require.NoError(t, err)
	return customer
}

func (f *fixture) bindProject(t *testing.T, projectID string, customerID snowflake.ID) {
	t.Helper()
	ctx := context.Background()
	_, err := f.customers.CreateProject(ctx, customerdomain.CreateProjectRequest{
		ProjectID: projectID,
		Name:      projectID,
		Provider:  "gcp",
	})
	require.NoError(t, err)
	_, err = f.customers.BindProject(ctx, customerdomain.BindProjectRequest{
		ProjectID:  projectID,
		CustomerID: customerID.String(),
	})
	require.NoError(t, err)
}

func (f *fixture) registerSku(t *testing.T, groupCode, skuID string) catalogdomain.SkuGroup {
	t.Helper()
	ctx := context.Background()
	group, err := f.catalog.CreateGroup(ctx, catalogdomain.CreateSkuGroupRequest{
		Code: groupCode,
		Name: groupCode,
	})
	require.NoError(t, err)
	_, err = f.catalog.UpsertSkus(ctx, catalogdomain.UpsertSkusRequest{
		GroupCode: groupCode,
		Skus:      []catalogdomain.SkuInput{{SkuID: skuID, Service: "Compute Engine"}},
	})
	require.NoError(t, err)
	return group
}

func (f *fixture) ingest(t *testing.T, entries ...ingestiondomain.CostEntryInput) {
	t.Helper()
	_, err := f.ingestion.IngestBatch(context.Background(), ingestiondomain.IngestBatchRequest{
		Provider: "gcp",
		Entries:  entries,
	})
	require.NoError(t, err)
}

func (f *fixture) activeDiscount(t *testing.T, customerID, groupID snowflake.ID, rate string) pricingdomain.PricingList {
	t.Helper()
	ctx := context.Background()
	list, err := f.pricing.CreateList(ctx, pricingdomain.CreateListRequest{
		CustomerID: customerID.String(),
		Name:       "committed use",
		Status:     pricingdomain.ListActive,
	})
	require.NoError(t, err)
	_, err = f.pricing.AddRule(ctx, pricingdomain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     groupID.String(),
		DiscountRate:   decimal.RequireFromString(rate),
		EffectiveStart: testNow.AddDate(0, -6, 0),
		EffectiveEnd:   testNow.AddDate(0, 6, 0),
		Priority:       100,
	})
	require.NoError(t, err)
	return list
}

func (f *fixture) countInvoices(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&n).Error)
	return n
}

func usageAt(day int) time.Time {
	return time.Date(2024, 6, day, 8, 0, 0, 0, time.UTC)
}

func TestStart_AppliesDiscountToInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	group := f.registerSku(t, "COMPUTE", "sku-vm-1")
	f.activeDiscount(t, customer.ID, group.ID, "0.8")
	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(5),
		CostAmount:     10000,
		Currency:       "USD",
	})

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, int64(1), run.TotalInvoices)
	assert.Equal(t, int64(8000), run.TotalAmount)
	assert.Equal(t, int64(1), run.CustomerCount)
	assert.Equal(t, int64(1), run.ProjectCount)
	assert.Equal(t, int64(1), run.RowCount)
	assert.EqualValues(t, int64(8000), run.CurrencyBreakdown["USD"])
	require.NotNil(t, run.SourceTimeRangeStart)
	require.NotNil(t, run.FinishedAt)

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, detail.Invoices, 1)
	invoice := detail.Invoices[0]
	assert.Equal(t, customer.ID, invoice.CustomerID)
	assert.Equal(t, int64(8000), invoice.Subtotal)
	assert.Equal(t, int64(0), invoice.TaxAmount)
	assert.Equal(t, int64(8000), invoice.TotalAmount)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)

	var lines []invoicedomain.InvoiceLine
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&lines).Error)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(10000), lines[0].CostAmount)
	assert.Equal(t, int64(8000), lines[0].LineAmount)
	assert.True(t, lines[0].DiscountRate.Equal(decimal.RequireFromString("0.8")))
}

func TestStart_RateFollowsRuleWindowWithinDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	group := f.registerSku(t, "COMPUTE", "sku-vm-1")

	list, err := f.pricing.CreateList(ctx, pricingdomain.CreateListRequest{
		CustomerID: customer.ID.String(),
		Name:       "stepped discount",
		Status:     pricingdomain.ListActive,
	})
	require.NoError(t, err)

	// the discount changes mid-day; usage on either side of the boundary
	// must price under its own window
	boundary := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	_, err = f.pricing.AddRule(ctx, pricingdomain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     group.ID.String(),
		DiscountRate:   decimal.RequireFromString("0.8"),
		EffectiveStart: testNow.AddDate(0, -6, 0),
		EffectiveEnd:   boundary,
		Priority:       100,
	})
	require.NoError(t, err)
	_, err = f.pricing.AddRule(ctx, pricingdomain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     group.ID.String(),
		DiscountRate:   decimal.RequireFromString("0.5"),
		EffectiveStart: boundary,
		EffectiveEnd:   testNow.AddDate(0, 6, 0),
		Priority:       100,
	})
	require.NoError(t, err)

	f.ingest(t,
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-acme-1",
			SkuID:          "sku-vm-1",
			UsageStartTime: time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC),
			CostAmount:     10000,
			Currency:       "USD",
		},
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-acme-1",
			SkuID:          "sku-vm-1",
			UsageStartTime: time.Date(2024, 6, 5, 16, 0, 0, 0, time.UTC),
			CostAmount:     10000,
			Currency:       "USD",
		},
	)

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, int64(13000), run.TotalAmount)

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, detail.Invoices, 1)

	var lines []invoicedomain.InvoiceLine
	require.NoError(t, f.db.Where("invoice_id = ?", detail.Invoices[0].ID).Order("line_amount desc").Find(&lines).Error)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(8000), lines[0].LineAmount)
	assert.Equal(t, int64(5000), lines[1].LineAmount)
}

func TestStart_IdempotentAfterSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	f.registerSku(t, "COMPUTE", "sku-vm-1")
	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(5),
		CostAmount:     10000,
		Currency:       "USD",
	})

	first, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	require.Equal(t, domain.RunSucceeded, first.Status)

	// new data after the run must not change the recorded result
	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(6),
		CostAmount:     4000,
		Currency:       "USD",
	})

	second, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), second.TotalInvoices)
	assert.Equal(t, int64(1), second.RowCount)
	assert.Equal(t, int64(1), f.countInvoices(t))
}

func TestStart_ConflictWhileMonthInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	startedAt := testNow.Add(-time.Minute)
	require.NoError(t, runrepo.Provide().Insert(ctx, f.db, &domain.InvoiceRun{
		ID:                f.node.Generate(),
		BillingMonth:      testMonth,
		SourceKey:         "scheduler",
		Status:            domain.RunRunning,
		CurrencyBreakdown: datatypes.JSONMap{},
		StartedAt:         &startedAt,
		CreatedAt:         startedAt,
		UpdatedAt:         startedAt,
	}))

	_, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
}

func TestStart_FailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	group := f.registerSku(t, "COMPUTE", "sku-vm-1")
	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(5),
		CostAmount:     10000,
		Currency:       "USD",
	})
	credit, err := f.credits.Create(ctx, creditdomain.CreateCreditRequest{
		CustomerID:  customer.ID.String(),
		Type:        creditdomain.CreditPrepaid,
		TotalAmount: 5000,
		Currency:    "USD",
		ValidFrom:   testNow.AddDate(0, -1, 0),
		ValidTo:     testNow.AddDate(0, 6, 0),
	})
	require.NoError(t, err)

	// two ACTIVE lists make rate resolution fail mid-run
	f.activeDiscount(t, customer.ID, group.ID, "0.8")
	second := f.activeDiscount(t, customer.ID, group.ID, "0.9")

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.ErrorIs(t, err, pricingdomain.ErrAmbiguousPricing)
	assert.Equal(t, domain.RunFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.NotEmpty(t, *run.ErrorMessage)

	assert.Equal(t, int64(0), f.countInvoices(t))
	reloaded, err := f.credits.GetWithLedger(ctx, creditdomain.GetCreditRequest{ID: credit.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), reloaded.Credit.RemainingAmount)
	assert.Empty(t, reloaded.Entries)

	// the failed run is retryable once the configuration is fixed
	require.NoError(t, f.pricing.DeleteList(ctx, pricingdomain.DeleteListRequest{ID: second.ID.String()}))
	retried, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, run.ID, retried.ID)
	assert.Equal(t, domain.RunSucceeded, retried.Status)
	assert.Equal(t, int64(8000), retried.TotalAmount)
}

func TestStart_CreditsReduceAmountDueNotTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	f.registerSku(t, "COMPUTE", "sku-vm-1")
	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(5),
		CostAmount:     10000,
		Currency:       "USD",
	})
	credit, err := f.credits.Create(ctx, creditdomain.CreateCreditRequest{
		CustomerID:  customer.ID.String(),
		Type:        creditdomain.CreditPrepaid,
		TotalAmount: 3000,
		Currency:    "USD",
		ValidFrom:   testNow.AddDate(0, -1, 0),
		ValidTo:     testNow.AddDate(0, 6, 0),
	})
	require.NoError(t, err)

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, detail.Invoices, 1)
	// invoice total stays gross; the credit is a ledger entry against it
	assert.Equal(t, int64(10000), detail.Invoices[0].TotalAmount)

	reloaded, err := f.credits.GetWithLedger(ctx, creditdomain.GetCreditRequest{ID: credit.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Credit.RemainingAmount)
	assert.Equal(t, creditdomain.CreditDepleted, reloaded.Credit.Status)
	require.Len(t, reloaded.Entries, 1)
	assert.Equal(t, int64(3000), reloaded.Entries[0].AmountApplied)
	require.NotNil(t, reloaded.Entries[0].InvoiceRunID)
	assert.Equal(t, run.ID, *reloaded.Entries[0].InvoiceRunID)
	require.NotNil(t, reloaded.Entries[0].InvoiceID)
	assert.Equal(t, detail.Invoices[0].ID, *reloaded.Entries[0].InvoiceID)
}

func TestStart_ExcludesUnboundProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-bound", customer.ID)
	f.registerSku(t, "COMPUTE", "sku-vm-1")
	_, err := f.customers.CreateProject(ctx, customerdomain.CreateProjectRequest{
		ProjectID: "proj-orphan",
		Name:      "proj-orphan",
		Provider:  "gcp",
	})
	require.NoError(t, err)

	f.ingest(t,
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-bound",
			SkuID:          "sku-vm-1",
			UsageStartTime: usageAt(5),
			CostAmount:     1000,
			Currency:       "USD",
		},
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-orphan",
			SkuID:          "sku-vm-1",
			UsageStartTime: usageAt(5),
			CostAmount:     9000,
			Currency:       "USD",
		},
	)

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.RowCount)
	assert.Equal(t, int64(1), run.ProjectCount)
	assert.Equal(t, int64(1000), run.TotalAmount)
}

func TestStart_SplitsInvoicesByCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	f.registerSku(t, "COMPUTE", "sku-vm-1")
	f.ingest(t,
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-acme-1",
			SkuID:          "sku-vm-1",
			UsageStartTime: usageAt(5),
			CostAmount:     2000,
			Currency:       "USD",
		},
		ingestiondomain.CostEntryInput{
			ProjectID:      "proj-acme-1",
			SkuID:          "sku-vm-1",
			UsageStartTime: usageAt(6),
			CostAmount:     3000,
			Currency:       "EUR",
		},
	)

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, int64(2), run.TotalInvoices)
	assert.Equal(t, int64(1), run.CustomerCount)
	assert.EqualValues(t, int64(2000), run.CurrencyBreakdown["USD"])
	assert.EqualValues(t, int64(3000), run.CurrencyBreakdown["EUR"])

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, detail.Invoices, 2)
	assert.NotEqual(t, detail.Invoices[0].Currency, detail.Invoices[1].Currency)
}

func TestStart_AppliesCustomerTaxDefinition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := f.createCustomer(t, "acme")
	f.bindProject(t, "proj-acme-1", customer.ID)
	f.registerSku(t, "COMPUTE", "sku-vm-1")
	_, err := f.tax.Create(ctx, taxdomain.CreateRequest{
		CustomerID: customer.ID.String(),
		Name:       "VAT",
		RateBps:    1000,
	})
	require.NoError(t, err)

	f.ingest(t, ingestiondomain.CostEntryInput{
		ProjectID:      "proj-acme-1",
		SkuID:          "sku-vm-1",
		UsageStartTime: usageAt(5),
		CostAmount:     10000,
		Currency:       "USD",
	})

	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, detail.Invoices, 1)
	assert.Equal(t, int64(10000), detail.Invoices[0].Subtotal)
	assert.Equal(t, int64(1000), detail.Invoices[0].TaxAmount)
	assert.Equal(t, int64(11000), detail.Invoices[0].TotalAmount)
}

func TestStart_EmptyMonthSucceeds(t *testing.T) {
	f := newFixture(t)

	run, err := f.runs.Start(context.Background(), domain.StartRunRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Zero(t, run.TotalInvoices)
	assert.Zero(t, run.RowCount)
	assert.Zero(t, run.TotalAmount)
}

func TestStart_RejectsInvalidMonth(t *testing.T) {
	f := newFixture(t)

	_, err := f.runs.Start(context.Background(), domain.StartRunRequest{BillingMonth: "June 2024"})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingMonth)
}

func TestReleaseStaleRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	startedAt := testNow.Add(-3 * time.Hour)
	stale := domain.InvoiceRun{
		ID:                f.node.Generate(),
		BillingMonth:      "2024-05",
		SourceKey:         "scheduler",
		Status:            domain.RunRunning,
		CurrencyBreakdown: datatypes.JSONMap{},
		StartedAt:         &startedAt,
		CreatedAt:         startedAt,
		UpdatedAt:         startedAt,
	}
	require.NoError(t, runrepo.Provide().Insert(ctx, f.db, &stale))

	released, err := f.runs.ReleaseStaleRuns(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	detail, err := f.runs.Get(ctx, domain.GetRunRequest{ID: stale.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, detail.Run.Status)

	// the month lock is free again
	run, err := f.runs.Start(ctx, domain.StartRunRequest{BillingMonth: "2024-05", SourceKey: "manual"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
}
