package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IngestionBatch records provenance for one delivery of raw cost rows.
// Invoice runs reference batch ids covering their billing month.
type IngestionBatch struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Provider       string       `gorm:"not null;index" json:"provider"`
	RowCount       int64        `gorm:"not null" json:"row_count"`
	TimeRangeStart time.Time    `gorm:"not null" json:"time_range_start"`
	TimeRangeEnd   time.Time    `gorm:"not null" json:"time_range_end"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (IngestionBatch) TableName() string {
	return "ingestion_batches"
}

// RawCostEntry is a normalized provider cost line. Rows are immutable once
// ingested; corrections arrive as new entries in later batches.
type RawCostEntry struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	BatchID        snowflake.ID `gorm:"not null;index" json:"batch_id"`
	ProjectID      string       `gorm:"not null;index" json:"project_id"`
	SkuID          string       `gorm:"not null;index" json:"sku_id"`
	UsageStartTime time.Time    `gorm:"not null;index" json:"usage_start_time"`
	UsageEndTime   *time.Time   `json:"usage_end_time,omitempty"`
	CostAmount     int64        `gorm:"not null" json:"cost_amount"`
	Currency       string       `gorm:"not null" json:"currency"`
	Provider       string       `gorm:"not null" json:"provider"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (RawCostEntry) TableName() string {
	return "raw_cost_entries"
}
