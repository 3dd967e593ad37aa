package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/catalog/domain"
	"github.com/smallbiznis/cirrus/pkg/db"
	"github.com/smallbiznis/cirrus/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	groupRepo repository.Repository[domain.SkuGroup]
	skuRepo   repository.Repository[domain.Sku]
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("catalog.service"),
		genID:     p.GenID,
		groupRepo: repository.ProvideStore[domain.SkuGroup](p.DB),
		skuRepo:   repository.ProvideStore[domain.Sku](p.DB),
	}
}

func (s *Service) CreateGroup(ctx context.Context, req domain.CreateSkuGroupRequest) (domain.SkuGroup, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.SkuGroup{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.SkuGroup{}, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	group := domain.SkuGroup{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.groupRepo.Create(ctx, &group); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.SkuGroup{}, domain.ErrDuplicateCode
		}
		return domain.SkuGroup{}, err
	}
	return group, nil
}

func (s *Service) ListGroups(ctx context.Context, _ domain.ListSkuGroupRequest) (domain.ListSkuGroupResponse, error) {
	items, err := s.groupRepo.Find(ctx, &domain.SkuGroup{})
	if err != nil {
		return domain.ListSkuGroupResponse{}, err
	}

	groups := make([]domain.SkuGroup, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		groups = append(groups, *item)
	}
	return domain.ListSkuGroupResponse{Groups: groups}, nil
}

func (s *Service) UpsertSkus(ctx context.Context, req domain.UpsertSkusRequest) ([]domain.Sku, error) {
	code := strings.ToLower(strings.TrimSpace(req.GroupCode))
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if len(req.Skus) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	for _, input := range req.Skus {
		if strings.TrimSpace(input.SkuID) == "" {
			return nil, domain.ErrInvalidSkuID
		}
	}

	var skus []domain.Sku
	err := s.db.Transaction(func(tx *gorm.DB) error {
		group, err := s.groupRepo.WithTrx(tx).FindOne(ctx, &domain.SkuGroup{Code: code})
		if err != nil {
			return err
		}
		if group == nil {
			return domain.ErrGroupNotFound
		}

		now := time.Now().UTC()
		skus = make([]domain.Sku, 0, len(req.Skus))
		for _, input := range req.Skus {
			skuID := strings.TrimSpace(input.SkuID)
			existing, err := s.skuRepo.WithTrx(tx).FindOne(ctx, &domain.Sku{SkuID: skuID})
			if err != nil {
				return err
			}
			if existing != nil {
				existing.SkuGroupID = group.ID
				existing.Service = strings.TrimSpace(input.Service)
				existing.Description = strings.TrimSpace(input.Description)
				existing.UpdatedAt = now
				if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
					return err
				}
				skus = append(skus, *existing)
				continue
			}

			sku := domain.Sku{
				ID:          s.genID.Generate(),
				SkuID:       skuID,
				SkuGroupID:  group.ID,
				Service:     strings.TrimSpace(input.Service),
				Description: strings.TrimSpace(input.Description),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.skuRepo.WithTrx(tx).Create(ctx, &sku); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrDuplicateSkuID
				}
				return err
			}
			skus = append(skus, sku)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sku batch upserted",
		zap.String("group_code", code),
		zap.Int("count", len(skus)),
	)
	return skus, nil
}

func (s *Service) ListSkus(ctx context.Context, req domain.ListSkusRequest) (domain.ListSkusResponse, error) {
	filter := &domain.Sku{}
	if code := strings.ToLower(strings.TrimSpace(req.GroupCode)); code != "" {
		group, err := s.groupRepo.FindOne(ctx, &domain.SkuGroup{Code: code})
		if err != nil {
			return domain.ListSkusResponse{}, err
		}
		if group == nil {
			return domain.ListSkusResponse{}, domain.ErrGroupNotFound
		}
		filter.SkuGroupID = group.ID
	}

	items, err := s.skuRepo.Find(ctx, filter)
	if err != nil {
		return domain.ListSkusResponse{}, err
	}

	skus := make([]domain.Sku, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		skus = append(skus, *item)
	}
	return domain.ListSkusResponse{Skus: skus}, nil
}
