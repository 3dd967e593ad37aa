package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cirrus/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricing.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

var noDiscount = decimal.NewFromInt(1)

func (s *Service) CreateList(ctx context.Context, req domain.CreateListRequest) (domain.PricingList, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.PricingList{}, domain.ErrInvalidID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.PricingList{}, domain.ErrInvalidName
	}
	status := req.Status
	if status == "" {
		status = domain.ListInactive
	}

	now := time.Now().UTC()
	list := domain.PricingList{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Name:       name,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertList(ctx, s.db, &list); err != nil {
		return domain.PricingList{}, err
	}
	return list, nil
}

func (s *Service) ListLists(ctx context.Context, req domain.ListPricingListsRequest) (domain.ListPricingListsResponse, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.ListPricingListsResponse{}, domain.ErrInvalidID
	}

	items, err := s.repo.ListByCustomer(ctx, s.db, customerID)
	if err != nil {
		return domain.ListPricingListsResponse{}, err
	}

	lists := make([]domain.PricingList, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		lists = append(lists, *item)
	}
	return domain.ListPricingListsResponse{Lists: lists}, nil
}

func (s *Service) GetListWithRules(ctx context.Context, req domain.GetListRequest) (domain.PricingListWithRules, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.PricingListWithRules{}, domain.ErrInvalidID
	}

	list, err := s.repo.FindList(ctx, s.db, id)
	if err != nil {
		return domain.PricingListWithRules{}, err
	}
	if list == nil {
		return domain.PricingListWithRules{}, domain.ErrListNotFound
	}

	rules, err := s.repo.RulesByList(ctx, s.db, id)
	if err != nil {
		return domain.PricingListWithRules{}, err
	}

	aggregate := domain.PricingListWithRules{List: *list}
	for _, rule := range rules {
		aggregate.Rules = append(aggregate.Rules, *rule)
	}
	return aggregate, nil
}

func (s *Service) AddRule(ctx context.Context, req domain.AddRuleRequest) (domain.PricingRule, error) {
	listID, err := snowflake.ParseString(strings.TrimSpace(req.PricingListID))
	if err != nil {
		return domain.PricingRule{}, domain.ErrInvalidID
	}
	groupID, err := snowflake.ParseString(strings.TrimSpace(req.SkuGroupID))
	if err != nil {
		return domain.PricingRule{}, domain.ErrInvalidID
	}
	if req.DiscountRate.LessThanOrEqual(decimal.Zero) || req.DiscountRate.GreaterThan(noDiscount) {
		return domain.PricingRule{}, domain.ErrInvalidDiscountRate
	}
	if !req.EffectiveEnd.After(req.EffectiveStart) {
		return domain.PricingRule{}, domain.ErrInvalidWindow
	}

	list, err := s.repo.FindList(ctx, s.db, listID)
	if err != nil {
		return domain.PricingRule{}, err
	}
	if list == nil {
		return domain.PricingRule{}, domain.ErrListNotFound
	}

	now := time.Now().UTC()
	rule := domain.PricingRule{
		ID:             s.genID.Generate(),
		PricingListID:  listID,
		SkuGroupID:     groupID,
		RuleType:       "DISCOUNT",
		DiscountRate:   req.DiscountRate,
		EffectiveStart: req.EffectiveStart.UTC(),
		EffectiveEnd:   req.EffectiveEnd.UTC(),
		Priority:       req.Priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertRule(ctx, s.db, &rule); err != nil {
		return domain.PricingRule{}, err
	}
	return rule, nil
}

func (s *Service) DeleteList(ctx context.Context, req domain.DeleteListRequest) error {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.ErrInvalidID
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		list, err := s.repo.FindList(ctx, tx, id)
		if err != nil {
			return err
		}
		if list == nil {
			return domain.ErrListNotFound
		}
		return s.repo.DeleteListCascade(ctx, tx, id)
	})
}

// ResolveRate selects the discount rule for a cost line. More than one
// ACTIVE list for the customer is a data-integrity fault and never resolved
// by silently picking one.
func (s *Service) ResolveRate(ctx context.Context, req domain.ResolveRateRequest) (decimal.Decimal, error) {
	if req.CustomerID == 0 {
		return noDiscount, domain.ErrInvalidID
	}

	groupID := req.SkuGroupID
	if groupID == 0 {
		skuID := strings.TrimSpace(req.SkuID)
		if skuID == "" {
			return noDiscount, domain.ErrMissingLineIdentity
		}
		resolved, err := s.repo.SkuGroupIDForSku(ctx, s.db, skuID)
		if err != nil {
			return noDiscount, err
		}
		if resolved == 0 {
			return noDiscount, domain.ErrSkuNotFound
		}
		groupID = resolved
	}

	lists, err := s.repo.ActiveListsWithRules(ctx, s.db, req.CustomerID)
	if err != nil {
		return noDiscount, err
	}
	if len(lists) > 1 {
		s.log.Error("customer has multiple active pricing lists",
			zap.String("customer_id", req.CustomerID.String()),
			zap.Int("active_lists", len(lists)),
		)
		return noDiscount, domain.ErrAmbiguousPricing
	}
	if len(lists) == 0 {
		return noDiscount, nil
	}

	rule := selectRule(lists[0].Rules, groupID, req.UsageDate.UTC())
	if rule == nil {
		return noDiscount, nil
	}
	return rule.DiscountRate, nil
}

// selectRule picks the matching rule with the lowest priority value. Ties on
// priority go to the most recently created rule.
func selectRule(rules []domain.PricingRule, groupID snowflake.ID, usageDate time.Time) *domain.PricingRule {
	var best *domain.PricingRule
	for i := range rules {
		rule := &rules[i]
		if rule.SkuGroupID != groupID {
			continue
		}
		// effective window is half-open: [start, end)
		if usageDate.Before(rule.EffectiveStart) || !usageDate.Before(rule.EffectiveEnd) {
			continue
		}
		if best == nil {
			best = rule
			continue
		}
		if rule.Priority < best.Priority {
			best = rule
			continue
		}
		if rule.Priority == best.Priority {
			if rule.CreatedAt.After(best.CreatedAt) ||
				(rule.CreatedAt.Equal(best.CreatedAt) && rule.ID > best.ID) {
				best = rule
			}
		}
	}
	return best
}
