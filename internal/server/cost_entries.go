package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
)

type costEntryInput struct {
	ProjectID      string     `json:"project_id"`
	SkuID          string     `json:"sku_id"`
	UsageStartTime time.Time  `json:"usage_start_time"`
	UsageEndTime   *time.Time `json:"usage_end_time"`
	CostAmount     int64      `json:"cost_amount"`
	Currency       string     `json:"currency"`
}

type ingestCostEntriesRequest struct {
	Provider string           `json:"provider"`
	Entries  []costEntryInput `json:"entries"`
}

func (s *Server) IngestCostEntries(c *gin.Context) {
	var req ingestCostEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries := make([]ingestiondomain.CostEntryInput, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, ingestiondomain.CostEntryInput{
			ProjectID:      strings.TrimSpace(entry.ProjectID),
			SkuID:          strings.TrimSpace(entry.SkuID),
			UsageStartTime: entry.UsageStartTime,
			UsageEndTime:   entry.UsageEndTime,
			CostAmount:     entry.CostAmount,
			Currency:       strings.TrimSpace(entry.Currency),
		})
	}

	resp, err := s.ingestionSvc.IngestBatch(c.Request.Context(), ingestiondomain.IngestBatchRequest{
		Provider: strings.TrimSpace(req.Provider),
		Entries:  entries,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCostEntries(c *gin.Context) {
	resp, err := s.ingestionSvc.ListEntries(c.Request.Context(), ingestiondomain.ListEntriesRequest{
		BillingMonth: strings.TrimSpace(c.Query("billing_month")),
		ProjectID:    strings.TrimSpace(c.Query("project_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
