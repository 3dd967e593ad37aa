package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/cirrus/internal/pricing/domain"
)

type createPricingListRequest struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

func (s *Server) CreatePricingList(c *gin.Context) {
	var req createPricingListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.CreateList(c.Request.Context(), pricingdomain.CreateListRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Name:       strings.TrimSpace(req.Name),
		Status:     pricingdomain.ListStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "pricing_list.create", "pricing_list", resp.ID.String(), map[string]any{
		"customer_id": resp.CustomerID.String(),
		"status":      string(resp.Status),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPricingLists(c *gin.Context) {
	resp, err := s.pricingSvc.ListLists(c.Request.Context(), pricingdomain.ListPricingListsRequest{
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPricingListByID(c *gin.Context) {
	resp, err := s.pricingSvc.GetListWithRules(c.Request.Context(), pricingdomain.GetListRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePricingList(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := s.pricingSvc.DeleteList(c.Request.Context(), pricingdomain.DeleteListRequest{ID: id}); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "pricing_list.delete", "pricing_list", id, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id}})
}

type addPricingRuleRequest struct {
	SkuGroupID     string    `json:"sku_group_id"`
	DiscountRate   string    `json:"discount_rate"`
	EffectiveStart time.Time `json:"effective_start"`
	EffectiveEnd   time.Time `json:"effective_end"`
	Priority       int       `json:"priority"`
}

func (s *Server) AddPricingRule(c *gin.Context) {
	var req addPricingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(req.DiscountRate))
	if err != nil {
		AbortWithError(c, newValidationError("discount_rate", "invalid_discount_rate", "invalid discount_rate"))
		return
	}

	resp, err := s.pricingSvc.AddRule(c.Request.Context(), pricingdomain.AddRuleRequest{
		PricingListID:  strings.TrimSpace(c.Param("id")),
		SkuGroupID:     strings.TrimSpace(req.SkuGroupID),
		DiscountRate:   rate,
		EffectiveStart: req.EffectiveStart,
		EffectiveEnd:   req.EffectiveEnd,
		Priority:       req.Priority,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
