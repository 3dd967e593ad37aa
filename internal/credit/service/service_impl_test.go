package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/credit/domain"
	"github.com/smallbiznis/cirrus/internal/credit/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Credit{},
		&domain.CreditLedgerEntry{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(testNow),
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, node
}

func createCredit(t *testing.T, svc *Service, customerID snowflake.ID, amount int64, validFrom, validTo time.Time) domain.Credit {
	t.Helper()
	credit, err := svc.Create(context.Background(), domain.CreateCreditRequest{
		CustomerID:  customerID.String(),
		Type:        domain.CreditPrepaid,
		TotalAmount: amount,
		Currency:    "USD",
		ValidFrom:   validFrom,
		ValidTo:     validTo,
	})
	require.NoError(t, err)
	return credit
}

func TestApplyCredits_PartialConsumption(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	credit := createCredit(t, svc, customerID, 5000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	result, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  3000,
		IssueDate:  testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.AmountCovered)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, int64(3000), result.Entries[0].AmountApplied)

	reloaded, err := svc.GetWithLedger(ctx, domain.GetCreditRequest{ID: credit.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), reloaded.Credit.RemainingAmount)
	assert.Equal(t, domain.CreditActive, reloaded.Credit.Status)
	assert.Len(t, reloaded.Entries, 1)
}

func TestApplyCredits_DepletesAtZero(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	credit := createCredit(t, svc, customerID, 5000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	_, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  3000,
		IssueDate:  testNow,
	})
	require.NoError(t, err)

	result, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  2000,
		IssueDate:  testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), result.AmountCovered)

	reloaded, err := svc.GetWithLedger(ctx, domain.GetCreditRequest{ID: credit.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Credit.RemainingAmount)
	assert.Equal(t, domain.CreditDepleted, reloaded.Credit.Status)
	assert.Len(t, reloaded.Entries, 2)
}

func TestApplyCreditAmount_InsufficientBalanceLeavesCreditUnchanged(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	credit := createCredit(t, svc, customerID, 2000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	_, err := svc.ApplyCreditAmount(ctx, domain.ApplyCreditAmountRequest{
		CreditID:  credit.ID.String(),
		Currency:  "USD",
		Amount:    2500,
		IssueDate: testNow,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCreditBalance)

	reloaded, err := svc.GetWithLedger(ctx, domain.GetCreditRequest{ID: credit.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), reloaded.Credit.RemainingAmount)
	assert.Equal(t, domain.CreditActive, reloaded.Credit.Status)
	assert.Empty(t, reloaded.Entries)
}

func TestApplyCredits_OldestExpiringFirst(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	older := createCredit(t, svc, customerID, 1000,
		testNow.AddDate(0, -6, 0), testNow.AddDate(0, 1, 0))
	newer := createCredit(t, svc, customerID, 5000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(1, 0, 0))

	result, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  1500,
		IssueDate:  testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), result.AmountCovered)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, older.ID, result.Entries[0].CreditID)
	assert.Equal(t, int64(1000), result.Entries[0].AmountApplied)
	assert.Equal(t, newer.ID, result.Entries[1].CreditID)
	assert.Equal(t, int64(500), result.Entries[1].AmountApplied)
}

func TestApplyCredits_StopsWhenCreditsExhausted(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	createCredit(t, svc, customerID, 1000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	result, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  9000,
		IssueDate:  testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.AmountCovered)
	require.Len(t, result.Entries, 1)
}

func TestApplyCredits_SkipsCreditsOutsideValidity(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	createCredit(t, svc, customerID, 1000,
		testNow.AddDate(0, 1, 0), testNow.AddDate(0, 6, 0))

	result, err := svc.ApplyCredits(ctx, domain.ApplyCreditsRequest{
		CustomerID: customerID,
		Currency:   "USD",
		AmountDue:  500,
		IssueDate:  testNow,
	})
	require.NoError(t, err)
	assert.Zero(t, result.AmountCovered)
	assert.Empty(t, result.Entries)
}

func TestApplyCreditAmount_CurrencyMismatch(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	credit := createCredit(t, svc, node.Generate(), 1000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	_, err := svc.ApplyCreditAmount(ctx, domain.ApplyCreditAmountRequest{
		CreditID:  credit.ID.String(),
		Currency:  "EUR",
		Amount:    500,
		IssueDate: testNow,
	})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestCreate_RejectsInvertedValidityWindow(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)

	_, err := svc.Create(context.Background(), domain.CreateCreditRequest{
		CustomerID:  node.Generate().String(),
		TotalAmount: 1000,
		Currency:    "USD",
		ValidFrom:   testNow,
		ValidTo:     testNow.AddDate(0, -1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValidityWindow)
}

func TestExpireCredits_MarksPastCreditsExpired(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	stale := createCredit(t, svc, customerID, 1000,
		testNow.AddDate(-1, 0, 0), testNow.AddDate(0, -1, 0))
	live := createCredit(t, svc, customerID, 1000,
		testNow.AddDate(0, -1, 0), testNow.AddDate(0, 6, 0))

	expired, err := svc.ExpireCredits(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	reloaded, err := svc.GetWithLedger(ctx, domain.GetCreditRequest{ID: stale.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditExpired, reloaded.Credit.Status)

	reloadedLive, err := svc.GetWithLedger(ctx, domain.GetCreditRequest{ID: live.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditActive, reloadedLive.Credit.Status)
}
