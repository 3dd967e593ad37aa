package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
)

type createCreditRequest struct {
	CustomerID     string    `json:"customer_id"`
	Type           string    `json:"type"`
	TotalAmount    int64     `json:"total_amount"`
	Currency       string    `json:"currency"`
	ValidFrom      time.Time `json:"valid_from"`
	ValidTo        time.Time `json:"valid_to"`
	AllowCarryOver bool      `json:"allow_carry_over"`
}

func (s *Server) CreateCredit(c *gin.Context) {
	var req createCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.creditSvc.Create(c.Request.Context(), creditdomain.CreateCreditRequest{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Type:           creditdomain.CreditType(strings.ToUpper(strings.TrimSpace(req.Type))),
		TotalAmount:    req.TotalAmount,
		Currency:       strings.TrimSpace(req.Currency),
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		AllowCarryOver: req.AllowCarryOver,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "credit.create", "credit", resp.ID.String(), map[string]any{
		"customer_id":  resp.CustomerID.String(),
		"total_amount": resp.TotalAmount,
		"currency":     resp.Currency,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCredits(c *gin.Context) {
	resp, err := s.creditSvc.List(c.Request.Context(), creditdomain.ListCreditsRequest{
		CustomerID: strings.TrimSpace(c.Query("customer_id")),
		Status:     creditdomain.CreditStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCreditByID(c *gin.Context) {
	resp, err := s.creditSvc.GetWithLedger(c.Request.Context(), creditdomain.GetCreditRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type applyCreditAmountRequest struct {
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	IssueDate string `json:"issue_date"`
}

func (s *Server) ApplyCreditAmount(c *gin.Context) {
	creditID := strings.TrimSpace(c.Param("id"))

	var req applyCreditAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issueDate := time.Now().UTC()
	if parsed, err := parseOptionalTime(req.IssueDate, false); err != nil {
		AbortWithError(c, newValidationError("issue_date", "invalid_issue_date", "invalid issue_date"))
		return
	} else if parsed != nil {
		issueDate = *parsed
	}

	resp, err := s.creditSvc.ApplyCreditAmount(c.Request.Context(), creditdomain.ApplyCreditAmountRequest{
		CreditID:  creditID,
		Currency:  strings.TrimSpace(req.Currency),
		Amount:    req.Amount,
		IssueDate: issueDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "credit.apply", "credit", creditID, map[string]any{
		"amount_applied": resp.AmountApplied,
		"currency":       resp.Currency,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
