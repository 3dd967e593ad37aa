package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/config"
	"github.com/smallbiznis/cirrus/internal/tax/domain"
	"github.com/smallbiznis/cirrus/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.BillingPolicyHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.BillingPolicyHolder
	repo   repository.Repository[domain.TaxDefinition]
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("tax.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   repository.ProvideStore[domain.TaxDefinition](p.DB),
	}
}

var tenThousand = decimal.NewFromInt(10_000)

// ComputeTax applies the customer's enabled tax definition, falling back to
// the platform default rate. Rounding is half-up on the final amount.
func (s *Service) ComputeTax(ctx context.Context, subtotal int64, customerID snowflake.ID) (int64, error) {
	if subtotal <= 0 {
		return 0, nil
	}

	rateBps, err := s.rateFor(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if rateBps == 0 {
		return 0, nil
	}

	tax := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(rateBps)).
		Div(tenThousand).
		Round(0)
	return tax.IntPart(), nil
}

func (s *Service) rateFor(ctx context.Context, customerID snowflake.ID) (int64, error) {
	if customerID != 0 {
		definition, err := s.repo.FindOne(ctx, &domain.TaxDefinition{CustomerID: &customerID, IsEnabled: true})
		if err != nil {
			return 0, err
		}
		if definition != nil {
			return definition.RateBps, nil
		}
	}
	return s.policy.Current().DefaultTaxRateBps, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.TaxDefinition, error) {
	now := s.clock.Now()
	definition := domain.TaxDefinition{
		ID:        s.genID.Generate(),
		Name:      strings.TrimSpace(req.Name),
		RateBps:   req.RateBps,
		IsEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.TaxDefinition{}, domain.ErrInvalidID
		}
		definition.CustomerID = &customerID
	}
	if err := definition.Validate(); err != nil {
		return domain.TaxDefinition{}, err
	}

	if err := s.repo.Create(ctx, &definition); err != nil {
		return domain.TaxDefinition{}, err
	}
	return definition, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.TaxDefinition, error) {
	filter := &domain.TaxDefinition{}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		filter.CustomerID = &customerID
	}

	items, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	definitions := make([]domain.TaxDefinition, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		definitions = append(definitions, *item)
	}
	return definitions, nil
}

func (s *Service) Disable(ctx context.Context, id string) error {
	definitionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}

	existing, err := s.repo.FindOne(ctx, &domain.TaxDefinition{ID: definitionID})
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}

	return s.repo.Update(ctx, definitionID.String(), map[string]any{
		"is_enabled": false,
		"updated_at": s.clock.Now(),
	})
}
