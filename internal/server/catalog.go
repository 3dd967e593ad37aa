package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/cirrus/internal/catalog/domain"
)

type createSkuGroupRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) CreateSkuGroup(c *gin.Context) {
	var req createSkuGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.CreateGroup(c.Request.Context(), catalogdomain.CreateSkuGroupRequest{
		Code: strings.TrimSpace(req.Code),
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSkuGroups(c *gin.Context) {
	resp, err := s.catalogSvc.ListGroups(c.Request.Context(), catalogdomain.ListSkuGroupRequest{})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type upsertSkusRequest struct {
	GroupCode string `json:"group_code"`
	Skus      []struct {
		SkuID       string `json:"sku_id"`
		Service     string `json:"service"`
		Description string `json:"description"`
	} `json:"skus"`
}

func (s *Server) UpsertSkus(c *gin.Context) {
	var req upsertSkusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	skus := make([]catalogdomain.SkuInput, 0, len(req.Skus))
	for _, sku := range req.Skus {
		skus = append(skus, catalogdomain.SkuInput{
			SkuID:       strings.TrimSpace(sku.SkuID),
			Service:     strings.TrimSpace(sku.Service),
			Description: strings.TrimSpace(sku.Description),
		})
	}

	resp, err := s.catalogSvc.UpsertSkus(c.Request.Context(), catalogdomain.UpsertSkusRequest{
		GroupCode: strings.TrimSpace(req.GroupCode),
		Skus:      skus,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"skus": resp}})
}

func (s *Server) ListSkus(c *gin.Context) {
	resp, err := s.catalogSvc.ListSkus(c.Request.Context(), catalogdomain.ListSkusRequest{
		GroupCode: strings.TrimSpace(c.Query("group_code")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
