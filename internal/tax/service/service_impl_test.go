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
	"github.com/smallbiznis/cirrus/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.TaxDefinition{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}).(*Service)
	return svc, node
}

func TestComputeTax_DefaultRateIsZero(t *testing.T) {
	svc, node := newTestService(t)

	tax, err := svc.ComputeTax(context.Background(), 10_000, node.Generate())
	require.NoError(t, err)
	assert.Zero(t, tax)
}

func TestComputeTax_CustomerOverride(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	customerID := node.Generate()
	_, err := svc.Create(ctx, domain.CreateRequest{
		CustomerID: customerID.String(),
		Name:       "vat-standard",
		RateBps:    2000,
	})
	require.NoError(t, err)

	tax, err := svc.ComputeTax(ctx, 10_000, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), tax)
}

func TestComputeTax_RoundsHalfUp(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	customerID := node.Generate()
	_, err := svc.Create(ctx, domain.CreateRequest{
		CustomerID: customerID.String(),
		Name:       "odd-rate",
		RateBps:    825,
	})
	require.NoError(t, err)

	// 1234 * 8.25% = 101.805 -> 102
	tax, err := svc.ComputeTax(ctx, 1234, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(102), tax)
}

func TestComputeTax_DisabledDefinitionIgnored(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	customerID := node.Generate()
	definition, err := svc.Create(ctx, domain.CreateRequest{
		CustomerID: customerID.String(),
		Name:       "retired",
		RateBps:    1000,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, definition.ID.String()))

	tax, err := svc.ComputeTax(ctx, 10_000, customerID)
	require.NoError(t, err)
	assert.Zero(t, tax)
}

func TestCreate_RejectsOutOfRangeRate(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateRequest{
		Name:    "too-high",
		RateBps: 20_000,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
}
