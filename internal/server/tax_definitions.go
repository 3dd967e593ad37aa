package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	taxdomain "github.com/smallbiznis/cirrus/internal/tax/domain"
)

func (s *Server) CreateTaxDefinition(c *gin.Context) {
	var req taxdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.taxSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "tax.create", "tax_definition", resp.ID.String(), map[string]any{
		"rate_bps": resp.RateBps,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTaxDefinitions(c *gin.Context) {
	resp, err := s.taxSvc.List(c.Request.Context(), taxdomain.ListRequest{
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"tax_definitions": resp}})
}

func (s *Server) DisableTaxDefinition(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.taxSvc.Disable(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "tax.disable", "tax_definition", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id}})
}
