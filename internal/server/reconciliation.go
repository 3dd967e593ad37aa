package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cirrus/internal/accessctx"
	recondomain "github.com/smallbiznis/cirrus/internal/reconciliation/domain"
)

func (s *Server) GetReconciliationReport(c *gin.Context) {
	req := recondomain.ReportRequest{
		BillingMonth: strings.TrimSpace(c.Param("month")),
	}

	// Customer-scoped actors only see their own slice of the breakdown.
	if actor, ok := accessctx.ActorFromContext(c.Request.Context()); ok && s.authzSvc != nil {
		scoped, err := s.authzSvc.ScopedCustomerIDs(c.Request.Context(), actor)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.CustomerIDs = scoped
	}

	resp, err := s.reconSvc.Report(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
