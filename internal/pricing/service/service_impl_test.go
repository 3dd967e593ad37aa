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
	"github.com/smallbiznis/cirrus/internal/pricing/domain"
	"github.com/smallbiznis/cirrus/internal/pricing/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.PricingList{},
		&domain.PricingRule{},
		&catalogdomain.SkuGroup{},
		&catalogdomain.Sku{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, node
}

func mustRate(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	rate, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return rate
}

func TestResolveRate_MatchingRule(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	groupID := node.Generate()

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: customerID.String(),
		Name:       "committed-use",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     groupID.String(),
		DiscountRate:   mustRate(t, "0.8"),
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Priority:       1,
	})
	require.NoError(t, err)

	rate, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: customerID,
		SkuGroupID: groupID,
		UsageDate:  time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(mustRate(t, "0.8")), "got %s", rate)

	// cost 100.00 at rate 0.8 discounts to 80.00
	line := decimal.NewFromInt(10000).Mul(rate)
	assert.Equal(t, int64(8000), line.IntPart())
}

func TestResolveRate_NoRuleDefaultsToOne(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	rate, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: node.Generate(),
		SkuGroupID: node.Generate(),
		UsageDate:  time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestResolveRate_OutsideWindowDefaultsToOne(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	groupID := node.Generate()

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: customerID.String(),
		Name:       "expired",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     groupID.String(),
		DiscountRate:   mustRate(t, "0.5"),
		EffectiveStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:       1,
	})
	require.NoError(t, err)

	// window end is exclusive
	rate, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: customerID,
		SkuGroupID: groupID,
		UsageDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestResolveRate_LowestPriorityWins(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	groupID := node.Generate()

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: customerID.String(),
		Name:       "tiered",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	for priority, rate := range map[int]string{5: "0.9", 1: "0.7", 3: "0.8"} {
		_, err = svc.AddRule(ctx, domain.AddRuleRequest{
			PricingListID:  list.ID.String(),
			SkuGroupID:     groupID.String(),
			DiscountRate:   mustRate(t, rate),
			EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Priority:       priority,
		})
		require.NoError(t, err)
	}

	rate, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: customerID,
		SkuGroupID: groupID,
		UsageDate:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(mustRate(t, "0.7")), "got %s", rate)
}

func TestResolveRate_PriorityTieGoesToNewestRule(t *testing.T) {
	groupID := snowflake.ID(42)
	older := domain.PricingRule{
		ID:             1,
		SkuGroupID:     groupID,
		DiscountRate:   decimal.RequireFromString("0.9"),
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:       1,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.ID = 2
	newer.DiscountRate = decimal.RequireFromString("0.85")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	selected := selectRule([]domain.PricingRule{older, newer}, groupID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, selected)
	assert.Equal(t, newer.ID, selected.ID)
}

func TestResolveRate_MultipleActiveListsIsConfigurationFault(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	for _, name := range []string{"list-a", "list-b"} {
		_, err := svc.CreateList(ctx, domain.CreateListRequest{
			CustomerID: customerID.String(),
			Name:       name,
			Status:     domain.ListActive,
		})
		require.NoError(t, err)
	}

	_, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: customerID,
		SkuGroupID: node.Generate(),
		UsageDate:  time.Now().UTC(),
	})
	assert.ErrorIs(t, err, domain.ErrAmbiguousPricing)
}

func TestResolveRate_BySkuID(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	customerID := node.Generate()
	groupID := node.Generate()

	require.NoError(t, db.Create(&catalogdomain.Sku{
		ID:         node.Generate(),
		SkuID:      "compute-n2-core",
		SkuGroupID: groupID,
		Service:    "compute",
	}).Error)

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: customerID.String(),
		Name:       "compute-discount",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     groupID.String(),
		DiscountRate:   mustRate(t, "0.75"),
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:       1,
	})
	require.NoError(t, err)

	rate, err := svc.ResolveRate(ctx, domain.ResolveRateRequest{
		CustomerID: customerID,
		SkuID:      "compute-n2-core",
		UsageDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rate.Equal(mustRate(t, "0.75")))
}

func TestAddRule_RejectsInvalidRateAndWindow(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: node.Generate().String(),
		Name:       "validation",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     node.Generate().String(),
		DiscountRate:   decimal.Zero,
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscountRate)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     node.Generate().String(),
		DiscountRate:   mustRate(t, "1.2"),
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscountRate)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     node.Generate().String(),
		DiscountRate:   mustRate(t, "0.9"),
		EffectiveStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestDeleteList_CascadesRules(t *testing.T) {
	db := newTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()

	list, err := svc.CreateList(ctx, domain.CreateListRequest{
		CustomerID: node.Generate().String(),
		Name:       "doomed",
		Status:     domain.ListActive,
	})
	require.NoError(t, err)

	_, err = svc.AddRule(ctx, domain.AddRuleRequest{
		PricingListID:  list.ID.String(),
		SkuGroupID:     node.Generate().String(),
		DiscountRate:   mustRate(t, "0.9"),
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:       1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteList(ctx, domain.DeleteListRequest{ID: list.ID.String()}))

	var ruleCount int64
	require.NoError(t, db.Model(&domain.PricingRule{}).Where("pricing_list_id = ?", list.ID).Count(&ruleCount).Error)
	assert.Zero(t, ruleCount)

	_, err = svc.GetListWithRules(ctx, domain.GetListRequest{ID: list.ID.String()})
	assert.ErrorIs(t, err, domain.ErrListNotFound)
}
