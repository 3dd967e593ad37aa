package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/ingestion/domain"
	"github.com/smallbiznis/cirrus/internal/observability/metrics"
	"github.com/smallbiznis/cirrus/pkg/billingmonth"
	"github.com/smallbiznis/cirrus/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *metrics.Metrics
	batchRepo repository.Repository[domain.IngestionBatch]
	entryRepo repository.Repository[domain.RawCostEntry]
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("ingestion.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		batchRepo: repository.ProvideStore[domain.IngestionBatch](p.DB),
		entryRepo: repository.ProvideStore[domain.RawCostEntry](p.DB),
	}
}

func (s *Service) IngestBatch(ctx context.Context, req domain.IngestBatchRequest) (domain.IngestBatchResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return domain.IngestBatchResponse{}, domain.ErrInvalidProvider
	}
	if len(req.Entries) == 0 {
		return domain.IngestBatchResponse{}, domain.ErrEmptyBatch
	}

	var rangeStart, rangeEnd time.Time
	for _, input := range req.Entries {
		if strings.TrimSpace(input.ProjectID) == "" {
			return domain.IngestBatchResponse{}, domain.ErrInvalidProjectID
		}
		if strings.TrimSpace(input.SkuID) == "" {
			return domain.IngestBatchResponse{}, domain.ErrInvalidSkuID
		}
		if input.UsageStartTime.IsZero() {
			return domain.IngestBatchResponse{}, domain.ErrInvalidUsageTime
		}
		currency := strings.ToUpper(strings.TrimSpace(input.Currency))
		if len(currency) != 3 {
			return domain.IngestBatchResponse{}, domain.ErrInvalidCurrency
		}

		usage := input.UsageStartTime.UTC()
		if rangeStart.IsZero() || usage.Before(rangeStart) {
			rangeStart = usage
		}
		if rangeEnd.IsZero() || usage.After(rangeEnd) {
			rangeEnd = usage
		}
	}

	now := s.clock.Now()
	batch := domain.IngestionBatch{
		ID:             s.genID.Generate(),
		Provider:       provider,
		RowCount:       int64(len(req.Entries)),
		TimeRangeStart: rangeStart,
		TimeRangeEnd:   rangeEnd,
		CreatedAt:      now,
	}

	entries := make([]*domain.RawCostEntry, 0, len(req.Entries))
	for _, input := range req.Entries {
		entry := &domain.RawCostEntry{
			ID:             s.genID.Generate(),
			BatchID:        batch.ID,
			ProjectID:      strings.TrimSpace(input.ProjectID),
			SkuID:          strings.TrimSpace(input.SkuID),
			UsageStartTime: input.UsageStartTime.UTC(),
			CostAmount:     input.CostAmount,
			Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
			Provider:       provider,
			CreatedAt:      now,
		}
		if input.UsageEndTime != nil {
			end := input.UsageEndTime.UTC()
			entry.UsageEndTime = &end
		}
		entries = append(entries, entry)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTrx(tx).Create(ctx, &batch); err != nil {
			return err
		}
		return s.entryRepo.WithTrx(tx).BatchCreate(ctx, entries)
	})
	if err != nil {
		return domain.IngestBatchResponse{}, err
	}

	s.metrics.RecordCostRowsIngested(ctx, provider, batch.RowCount)
	s.log.Info("cost batch ingested",
		zap.String("batch_id", batch.ID.String()),
		zap.String("provider", provider),
		zap.Int64("rows", batch.RowCount),
	)
	return domain.IngestBatchResponse{Batch: batch}, nil
}

func (s *Service) ListEntries(ctx context.Context, req domain.ListEntriesRequest) (domain.ListEntriesResponse, error) {
	stmt := s.db.Model(&domain.RawCostEntry{})

	if month := strings.TrimSpace(req.BillingMonth); month != "" {
		start, end, err := billingmonth.Parse(month)
		if err != nil {
			return domain.ListEntriesResponse{}, domain.ErrInvalidBillingMonth
		}
		stmt = stmt.Where("usage_start_time >= ? AND usage_start_time < ?", start, end)
	}
	if projectID := strings.TrimSpace(req.ProjectID); projectID != "" {
		stmt = stmt.Where("project_id = ?", projectID)
	}

	var entries []domain.RawCostEntry
	if err := stmt.WithContext(ctx).
		Order("usage_start_time asc, id asc").
		Find(&entries).Error; err != nil {
		return domain.ListEntriesResponse{}, err
	}
	return domain.ListEntriesResponse{Entries: entries}, nil
}

func (s *Service) BatchIDsForRange(ctx context.Context, start, end time.Time) ([]string, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM ingestion_batches
		 WHERE time_range_start < ? AND time_range_end >= ?
		 ORDER BY id ASC`,
		end,
		start,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out, nil
}
