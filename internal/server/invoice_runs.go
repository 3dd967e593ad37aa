package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicerundomain "github.com/smallbiznis/cirrus/internal/invoicerun/domain"
)

type startInvoiceRunRequest struct {
	BillingMonth string `json:"billing_month"`
	SourceKey    string `json:"source_key"`
}

func (s *Server) StartInvoiceRun(c *gin.Context) {
	var req startInvoiceRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.runSvc.Start(c.Request.Context(), invoicerundomain.StartRunRequest{
		BillingMonth: strings.TrimSpace(req.BillingMonth),
		SourceKey:    strings.TrimSpace(req.SourceKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "invoice_run.start", "invoice_run", resp.ID.String(), map[string]any{
		"billing_month": resp.BillingMonth,
		"source_key":    resp.SourceKey,
		"status":        string(resp.Status),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceRunByID(c *gin.Context) {
	resp, err := s.runSvc.Get(c.Request.Context(), invoicerundomain.GetRunRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoiceRuns(c *gin.Context) {
	resp, err := s.runSvc.List(c.Request.Context(), invoicerundomain.ListRunsRequest{
		BillingMonth: strings.TrimSpace(c.Query("billing_month")),
		Status:       invoicerundomain.RunStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type releaseStaleRunsRequest struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

func (s *Server) ReleaseStaleInvoiceRuns(c *gin.Context) {
	var req releaseStaleRunsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.OlderThanMinutes <= 0 {
		AbortWithError(c, newValidationError("older_than_minutes", "invalid_older_than_minutes", "must be positive"))
		return
	}

	released, err := s.runSvc.ReleaseStaleRuns(c.Request.Context(), time.Duration(req.OlderThanMinutes)*time.Minute)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "invoice_run.release", "invoice_run", "", map[string]any{
		"released":           released,
		"older_than_minutes": req.OlderThanMinutes,
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"released": released}})
}
