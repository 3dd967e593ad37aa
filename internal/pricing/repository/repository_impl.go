package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertList(ctx context.Context, db *gorm.DB, list *domain.PricingList) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_lists (id, customer_id, name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		list.ID,
		list.CustomerID,
		list.Name,
		list.Status,
		list.CreatedAt,
		list.UpdatedAt,
	).Error
}

func (r *repo) FindList(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PricingList, error) {
	var list domain.PricingList
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, name, status, created_at, updated_at
		 FROM pricing_lists WHERE id = ?`,
		id,
	).Scan(&list).Error
	if err != nil {
		return nil, err
	}
	if list.ID == 0 {
		return nil, nil
	}
	return &list, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*domain.PricingList, error) {
	var lists []*domain.PricingList
	err := db.WithContext(ctx).
		Model(&domain.PricingList{}).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Find(&lists).Error
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// ActiveListsWithRules materializes every ACTIVE list for the customer with
// its full rule set. The resolver needs all of them to detect ambiguity.
func (r *repo) ActiveListsWithRules(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*domain.PricingListWithRules, error) {
	var lists []*domain.PricingList
	err := db.WithContext(ctx).
		Model(&domain.PricingList{}).
		Where("customer_id = ? AND status = ?", customerID, domain.ListActive).
		Order("created_at asc, id asc").
		Find(&lists).Error
	if err != nil {
		return nil, err
	}

	out := make([]*domain.PricingListWithRules, 0, len(lists))
	for _, list := range lists {
		rules, err := r.RulesByList(ctx, db, list.ID)
		if err != nil {
			return nil, err
		}
		aggregate := &domain.PricingListWithRules{List: *list}
		for _, rule := range rules {
			aggregate.Rules = append(aggregate.Rules, *rule)
		}
		out = append(out, aggregate)
	}
	return out, nil
}

func (r *repo) RulesByList(ctx context.Context, db *gorm.DB, listID snowflake.ID) ([]*domain.PricingRule, error) {
	var rules []*domain.PricingRule
	err := db.WithContext(ctx).
		Model(&domain.PricingRule{}).
		Where("pricing_list_id = ?", listID).
		Order("priority asc, created_at desc, id desc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *domain.PricingRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_rules (id, pricing_list_id, sku_group_id, rule_type, discount_rate, effective_start, effective_end, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.PricingListID,
		rule.SkuGroupID,
		rule.RuleType,
		rule.DiscountRate,
		rule.EffectiveStart,
		rule.EffectiveEnd,
		rule.Priority,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Error
}

// DeleteListCascade removes the list and its rules. Callers wrap it in a
// transaction so the cascade is all-or-nothing.
func (r *repo) DeleteListCascade(ctx context.Context, db *gorm.DB, listID snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM pricing_rules WHERE pricing_list_id = ?`, listID,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM pricing_lists WHERE id = ?`, listID,
	).Error
}

func (r *repo) SkuGroupIDForSku(ctx context.Context, db *gorm.DB, skuID string) (snowflake.ID, error) {
	var groupID snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT sku_group_id FROM skus WHERE sku_id = ?`,
		skuID,
	).Scan(&groupID).Error
	if err != nil {
		return 0, err
	}
	return groupID, nil
}
