package domain

import (
	"context"
	"errors"
	"time"
)

type CostEntryInput struct {
	ProjectID      string
	SkuID          string
	UsageStartTime time.Time
	UsageEndTime   *time.Time
	CostAmount     int64
	Currency       string
}

// IngestBatchRequest carries one delivery of cost rows. The whole batch is
// committed or none of it is.
type IngestBatchRequest struct {
	Provider string
	Entries  []CostEntryInput
}

type IngestBatchResponse struct {
	Batch IngestionBatch `json:"batch"`
}

type ListEntriesRequest struct {
	BillingMonth string
	ProjectID    string
}

type ListEntriesResponse struct {
	Entries []RawCostEntry `json:"entries"`
}

type Service interface {
	IngestBatch(context.Context, IngestBatchRequest) (IngestBatchResponse, error)
	ListEntries(context.Context, ListEntriesRequest) (ListEntriesResponse, error)

	// BatchIDsForRange returns ids of batches whose rows overlap the range,
	// consumed as invoice-run provenance.
	BatchIDsForRange(ctx context.Context, start, end time.Time) ([]string, error)
}

var (
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrEmptyBatch          = errors.New("empty_batch")
	ErrInvalidProjectID    = errors.New("invalid_project_id")
	ErrInvalidSkuID        = errors.New("invalid_sku_id")
	ErrInvalidUsageTime    = errors.New("invalid_usage_time")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidBillingMonth = errors.New("invalid_billing_month")
)
