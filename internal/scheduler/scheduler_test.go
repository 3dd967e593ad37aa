package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/smallbiznis/cirrus/internal/catalog/domain"
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
	invoicerundomain "github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	runrepo "github.com/smallbiznis/cirrus/internal/invoicerun/repository"
	runsvc "github.com/smallbiznis/cirrus/internal/invoicerun/service"
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

// Day 1 of the month, before the default auto-run day and sweep hour.
var testNow = time.Date(2024, 7, 1, 0, 30, 0, 0, time.UTC)

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
		&invoicerundomain.InvoiceRun{},
	))
	return db
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	customers customerdomain.Service
	credits   creditdomain.Service
	runs      invoicerundomain.Service
	sched     *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(testNow)

	customers := customersvc.New(customersvc.Params{
		DB: db, Log: log, GenID: node, Repo: customerrepo.Provide(),
	})
	pricing := pricingsvc.New(pricingsvc.Params{
		DB: db, Log: log, GenID: node, Repo: pricingrepo.Provide(),
	})
	credits := creditsvc.New(creditsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: creditrepo.Provide(),
	})
	tax := taxsvc.New(taxsvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	invoices := invoicesvc.New(invoicesvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	ingestion := ingestionsvc.New(ingestionsvc.Params{DB: db, Log: log, GenID: node, Clock: fake})
	runs := runsvc.New(runsvc.Params{
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

	sched, err := New(Params{
		Log:     log,
		Clock:   fake,
		Runs:    runs,
		Credits: credits,
	})
	require.NoError(t, err)

	return &fixture{
		db:        db,
		node:      node,
		clock:     fake,
		customers: customers,
		credits:   credits,
		runs:      runs,
		sched:     sched,
	}
}

func (f *fixture) runsForMonth(t *testing.T, month string) []invoicerundomain.InvoiceRun {
	t.Helper()
	resp, err := f.runs.List(context.Background(), invoicerundomain.ListRunsRequest{BillingMonth: month})
	require.NoError(t, err)
	return resp.Runs
}

func (f *fixture) expiredCredit(t *testing.T) creditdomain.Credit {
	t.Helper()
	ctx := context.Background()
	customer, err := f.customers.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:     fmt.Sprintf("acme-%d", f.node.Generate()),
		Email:    "billing@example.com",
		Currency: "USD",
	})
	require.NoError(t, err)

	credit, err := f.credits.Create(ctx, creditdomain.CreateCreditRequest{
		CustomerID:  customer.ID.String(),
		Type:        creditdomain.CreditPrepaid,
		TotalAmount: 5000,
		Currency:    "USD",
		ValidFrom:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:     time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return credit
}

func (f *fixture) creditStatus(t *testing.T, id snowflake.ID) creditdomain.CreditStatus {
	t.Helper()
	var credit creditdomain.Credit
	require.NoError(t, f.db.First(&credit, "id = ?", id).Error)
	return credit.Status
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTick_AutoInvoiceRunFiresOnConfiguredDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sched.Tick(ctx)
	assert.Empty(t, f.runsForMonth(t, "2024-06"))

	// July 3rd, the default auto-run day.
	f.clock.Advance(48 * time.Hour)
	f.sched.Tick(ctx)

	runs := f.runsForMonth(t, "2024-06")
	require.Len(t, runs, 1)
	assert.Equal(t, "scheduler", runs[0].SourceKey)
	assert.Equal(t, invoicerundomain.RunSucceeded, runs[0].Status)

	f.sched.Tick(ctx)
	assert.Len(t, f.runsForMonth(t, "2024-06"), 1)
}

func TestTick_AutoInvoiceRunAdvancesWithMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Advance(48 * time.Hour) // 2024-07-03
	f.sched.Tick(ctx)
	require.Len(t, f.runsForMonth(t, "2024-06"), 1)

	f.clock.Advance(31 * 24 * time.Hour) // 2024-08-03
	f.sched.Tick(ctx)

	runs := f.runsForMonth(t, "2024-07")
	require.Len(t, runs, 1)
	assert.Equal(t, invoicerundomain.RunSucceeded, runs[0].Status)
	assert.Len(t, f.runsForMonth(t, "2024-06"), 1)
}

func TestTick_CreditExpirySweepRunsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.expiredCredit(t)

	// Before the sweep hour nothing happens.
	f.sched.Tick(ctx)
	assert.Equal(t, creditdomain.CreditActive, f.creditStatus(t, first.ID))

	f.clock.Advance(2 * time.Hour) // 02:30 UTC
	f.sched.Tick(ctx)
	assert.Equal(t, creditdomain.CreditExpired, f.creditStatus(t, first.ID))

	// A second sweep on the same day is skipped.
	second := f.expiredCredit(t)
	f.sched.Tick(ctx)
	assert.Equal(t, creditdomain.CreditActive, f.creditStatus(t, second.ID))

	f.clock.Advance(24 * time.Hour)
	f.sched.Tick(ctx)
	assert.Equal(t, creditdomain.CreditExpired, f.creditStatus(t, second.ID))
}

func TestTick_ReleasesStaleRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	startedAt := testNow.Add(-3 * time.Hour)
	stale := &invoicerundomain.InvoiceRun{
		ID:                f.node.Generate(),
		BillingMonth:      "2024-06",
		SourceKey:         "manual",
		Status:            invoicerundomain.RunRunning,
		CurrencyBreakdown: datatypes.JSONMap{},
		StartedAt:         &startedAt,
		CreatedAt:         startedAt,
		UpdatedAt:         startedAt,
	}
	require.NoError(t, runrepo.Provide().Insert(ctx, f.db, stale))

	f.sched.Tick(ctx)

	var reloaded invoicerundomain.InvoiceRun
	require.NoError(t, f.db.First(&reloaded, "id = ?", stale.ID).Error)
	assert.Equal(t, invoicerundomain.RunFailed, reloaded.Status)
	require.NotNil(t, reloaded.ErrorMessage)
	assert.NotEmpty(t, *reloaded.ErrorMessage)
}
