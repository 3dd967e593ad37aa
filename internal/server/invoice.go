package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	"github.com/smallbiznis/cirrus/pkg/db/pagination"
)

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID   string `form:"customer_id"`
		BillingMonth string `form:"billing_month"`
		Status       string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoicesRequest{
		PageToken:    query.PageToken,
		PageSize:     int32(query.PageSize),
		CustomerID:   strings.TrimSpace(query.CustomerID),
		BillingMonth: strings.TrimSpace(query.BillingMonth),
		Status:       invoicedomain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	resp, err := s.invoiceSvc.Get(c.Request.Context(), invoicedomain.GetInvoiceRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.invoiceSvc.Issue(c.Request.Context(), invoicedomain.IssueInvoiceRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "invoice.issue", "invoice", id, map[string]any{
		"invoice_number": resp.InvoiceNumber,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.invoiceSvc.Cancel(c.Request.Context(), invoicedomain.CancelInvoiceRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "invoice.cancel", "invoice", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) LockInvoice(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.invoiceSvc.Lock(c.Request.Context(), invoicedomain.LockInvoiceRequest{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "invoice.lock", "invoice", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
