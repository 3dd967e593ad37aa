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
	"github.com/smallbiznis/cirrus/internal/clock"
	customerdomain "github.com/smallbiznis/cirrus/internal/customer/domain"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/internal/reconciliation/domain"
	"github.com/smallbiznis/cirrus/internal/reconciliation/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC)

const testMonth = "2024-06"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.ProjectBinding{},
		&ingestiondomain.RawCostEntry{},
		&invoicedomain.Invoice{},
	))
	return db
}

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(testNow),
		Repo:  repository.Provide(),
	})
	return &fixture{db: db, node: node, svc: svc}
}

func (f *fixture) addRawCost(t *testing.T, projectID string, amount int64, currency string) {
	t.Helper()
	require.NoError(t, f.db.Create(&ingestiondomain.RawCostEntry{
		ID:             f.node.Generate(),
		BatchID:        f.node.Generate(),
		ProjectID:      projectID,
		SkuID:          "sku-vm-1",
		UsageStartTime: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		CostAmount:     amount,
		Currency:       currency,
		Provider:       "gcp",
		CreatedAt:      testNow,
	}).Error)
}

func (f *fixture) bindProject(t *testing.T, projectID string, customerID snowflake.ID) {
	t.Helper()
	require.NoError(t, f.db.Create(&customerdomain.ProjectBinding{
		ID:         f.node.Generate(),
		ProjectID:  projectID,
		CustomerID: customerID,
		Status:     customerdomain.BindingActive,
		BoundAt:    testNow,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}).Error)
}

func (f *fixture) addInvoice(t *testing.T, customerID snowflake.ID, total int64, currency string, status invoicedomain.InvoiceStatus) {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID:            id,
		InvoiceRunID:  f.node.Generate(),
		CustomerID:    customerID,
		BillingMonth:  testMonth,
		InvoiceNumber: fmt.Sprintf("INV-%s-%d", testMonth, id),
		Status:        status,
		Subtotal:      total,
		TotalAmount:   total,
		Currency:      currency,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}).Error)
}

func TestReport_VarianceAgainstRawCost(t *testing.T) {
	f := newFixture(t)
	customerID := f.node.Generate()
	f.bindProject(t, "proj-1", customerID)
	f.addRawCost(t, "proj-1", 1000, "USD")
	f.addInvoice(t, customerID, 950, "USD", invoicedomain.InvoiceStatusDraft)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	assert.Equal(t, testMonth, report.BillingMonth)
	assert.Equal(t, testNow, report.GeneratedAt)

	require.Len(t, report.Totals, 1)
	total := report.Totals[0]
	assert.Equal(t, "USD", total.Currency)
	assert.Equal(t, int64(1000), total.RawCostTotal)
	assert.Equal(t, int64(950), total.InvoicedTotal)
	assert.Equal(t, int64(-50), total.Variance)
	assert.True(t, total.VariancePercent.Equal(decimal.RequireFromString("-5")),
		"got %s", total.VariancePercent)

	require.Len(t, report.Customers, 1)
	assert.Equal(t, customerID, report.Customers[0].CustomerID)
	assert.Equal(t, int64(-50), report.Customers[0].Variance)
}

func TestReport_ZeroRawCostReportsZeroPercent(t *testing.T) {
	f := newFixture(t)
	customerID := f.node.Generate()
	f.addInvoice(t, customerID, 500, "USD", invoicedomain.InvoiceStatusDraft)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	require.Len(t, report.Totals, 1)
	assert.Equal(t, int64(0), report.Totals[0].RawCostTotal)
	assert.Equal(t, int64(500), report.Totals[0].Variance)
	assert.True(t, report.Totals[0].VariancePercent.IsZero())
}

func TestReport_ExcludesCancelledInvoices(t *testing.T) {
	f := newFixture(t)
	customerID := f.node.Generate()
	f.bindProject(t, "proj-1", customerID)
	f.addRawCost(t, "proj-1", 1000, "USD")
	f.addInvoice(t, customerID, 1000, "USD", invoicedomain.InvoiceStatusIssued)
	f.addInvoice(t, customerID, 400, "USD", invoicedomain.InvoiceStatusCancelled)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	require.Len(t, report.Totals, 1)
	assert.Equal(t, int64(1000), report.Totals[0].InvoicedTotal)
	assert.Equal(t, int64(0), report.Totals[0].Variance)
}

func TestReport_UnassignedProjectsRankedByCost(t *testing.T) {
	f := newFixture(t)
	customerID := f.node.Generate()
	f.bindProject(t, "proj-bound", customerID)
	f.addRawCost(t, "proj-bound", 5000, "USD")
	f.addRawCost(t, "proj-small", 100, "USD")
	f.addRawCost(t, "proj-big", 300, "USD")
	f.addRawCost(t, "proj-mid", 200, "USD")

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	require.Len(t, report.UnassignedProjects, 3)
	assert.Equal(t, "proj-big", report.UnassignedProjects[0].ProjectID)
	assert.Equal(t, int64(300), report.UnassignedProjects[0].CostTotal)
	assert.Equal(t, "proj-mid", report.UnassignedProjects[1].ProjectID)
	assert.Equal(t, "proj-small", report.UnassignedProjects[2].ProjectID)

	require.Len(t, report.UnassignedCostTotals, 1)
	assert.Equal(t, "USD", report.UnassignedCostTotals[0].Currency)
	assert.Equal(t, int64(600), report.UnassignedCostTotals[0].CostTotal)
}

func TestReport_UnassignedCostTotalCoversAllProjects(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 55; i++ {
		f.addRawCost(t, fmt.Sprintf("proj-orphan-%02d", i), 10, "USD")
	}

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	// the project listing is capped but the total covers every orphan row
	require.Len(t, report.UnassignedProjects, 50)
	require.Len(t, report.UnassignedCostTotals, 1)
	assert.Equal(t, "USD", report.UnassignedCostTotals[0].Currency)
	assert.Equal(t, int64(550), report.UnassignedCostTotals[0].CostTotal)
}

func TestReport_ScopedTotalsExcludeOtherCustomers(t *testing.T) {
	f := newFixture(t)
	mine := f.node.Generate()
	other := f.node.Generate()
	f.bindProject(t, "proj-mine", mine)
	f.bindProject(t, "proj-other", other)
	f.addRawCost(t, "proj-mine", 1000, "USD")
	f.addRawCost(t, "proj-other", 9000, "USD")
	f.addRawCost(t, "proj-orphan", 500, "USD")
	f.addInvoice(t, mine, 1000, "USD", invoicedomain.InvoiceStatusDraft)
	f.addInvoice(t, other, 9000, "USD", invoicedomain.InvoiceStatusDraft)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{
		BillingMonth: testMonth,
		CustomerIDs:  []snowflake.ID{mine},
	})
	require.NoError(t, err)

	require.Len(t, report.Totals, 1)
	assert.Equal(t, int64(1000), report.Totals[0].RawCostTotal)
	assert.Equal(t, int64(1000), report.Totals[0].InvoicedTotal)

	require.Len(t, report.Customers, 1)
	assert.Equal(t, mine, report.Customers[0].CustomerID)

	// unassigned cost belongs to no customer and stays out of scoped reports
	assert.Empty(t, report.UnassignedProjects)
	assert.Empty(t, report.UnassignedCostTotals)
}

func TestReport_ScopesCustomerBreakdown(t *testing.T) {
	f := newFixture(t)
	visible := f.node.Generate()
	hidden := f.node.Generate()
	f.bindProject(t, "proj-visible", visible)
	f.bindProject(t, "proj-hidden", hidden)
	f.addRawCost(t, "proj-visible", 1000, "USD")
	f.addRawCost(t, "proj-hidden", 2000, "USD")
	f.addInvoice(t, visible, 1000, "USD", invoicedomain.InvoiceStatusDraft)
	f.addInvoice(t, hidden, 2000, "USD", invoicedomain.InvoiceStatusDraft)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{
		BillingMonth: testMonth,
		CustomerIDs:  []snowflake.ID{visible},
	})
	require.NoError(t, err)
	require.Len(t, report.Customers, 1)
	assert.Equal(t, visible, report.Customers[0].CustomerID)
	assert.Equal(t, int64(1000), report.Customers[0].RawCostTotal)
}

func TestReport_SplitsTotalsByCurrency(t *testing.T) {
	f := newFixture(t)
	customerID := f.node.Generate()
	f.bindProject(t, "proj-1", customerID)
	f.addRawCost(t, "proj-1", 1000, "USD")
	f.addRawCost(t, "proj-1", 700, "EUR")
	f.addInvoice(t, customerID, 1000, "USD", invoicedomain.InvoiceStatusDraft)

	report, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: testMonth})
	require.NoError(t, err)
	require.Len(t, report.Totals, 2)
	assert.Equal(t, "EUR", report.Totals[0].Currency)
	assert.Equal(t, int64(-700), report.Totals[0].Variance)
	assert.Equal(t, "USD", report.Totals[1].Currency)
	assert.Equal(t, int64(0), report.Totals[1].Variance)
}

func TestReport_RejectsInvalidMonth(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Report(context.Background(), domain.ReportRequest{BillingMonth: "Q2-2024"})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingMonth)
}
