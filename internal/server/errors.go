package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cirrus/internal/audit/domain"
	"github.com/smallbiznis/cirrus/internal/authorization"
	catalogdomain "github.com/smallbiznis/cirrus/internal/catalog/domain"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
	customerdomain "github.com/smallbiznis/cirrus/internal/customer/domain"
	ingestiondomain "github.com/smallbiznis/cirrus/internal/ingestion/domain"
	invoicedomain "github.com/smallbiznis/cirrus/internal/invoice/domain"
	invoicerundomain "github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	pricingdomain "github.com/smallbiznis/cirrus/internal/pricing/domain"
	reconciliationdomain "github.com/smallbiznis/cirrus/internal/reconciliation/domain"
	taxdomain "github.com/smallbiznis/cirrus/internal/tax/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog mirrors mapError for the request logger; handlers stay
// opaque about internals either way.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, pricingdomain.ErrAmbiguousPricing):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "configuration_error",
			Message: "ambiguous pricing configuration",
		}
	case errors.Is(err, creditdomain.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "currency_mismatch",
			Message: "currency mismatch",
		}
	case errors.Is(err, creditdomain.ErrInsufficientCreditBalance):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_credit_balance",
			Message: "insufficient credit balance",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limited",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, customerdomain.ErrInvalidName),
		errors.Is(err, customerdomain.ErrInvalidEmail),
		errors.Is(err, customerdomain.ErrInvalidCurrency),
		errors.Is(err, customerdomain.ErrInvalidID),
		errors.Is(err, customerdomain.ErrInvalidProjectID):
		return true
	case errors.Is(err, catalogdomain.ErrInvalidCode),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidSkuID),
		errors.Is(err, catalogdomain.ErrEmptyBatch):
		return true
	case errors.Is(err, pricingdomain.ErrInvalidID),
		errors.Is(err, pricingdomain.ErrInvalidName),
		errors.Is(err, pricingdomain.ErrInvalidDiscountRate),
		errors.Is(err, pricingdomain.ErrInvalidWindow),
		errors.Is(err, pricingdomain.ErrMissingLineIdentity):
		return true
	case errors.Is(err, creditdomain.ErrInvalidID),
		errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, creditdomain.ErrInvalidCurrency),
		errors.Is(err, creditdomain.ErrInvalidValidityWindow),
		errors.Is(err, creditdomain.ErrCreditNotApplicable):
		return true
	case errors.Is(err, ingestiondomain.ErrInvalidProvider),
		errors.Is(err, ingestiondomain.ErrEmptyBatch),
		errors.Is(err, ingestiondomain.ErrInvalidProjectID),
		errors.Is(err, ingestiondomain.ErrInvalidSkuID),
		errors.Is(err, ingestiondomain.ErrInvalidUsageTime),
		errors.Is(err, ingestiondomain.ErrInvalidCurrency),
		errors.Is(err, ingestiondomain.ErrInvalidBillingMonth):
		return true
	case errors.Is(err, invoicedomain.ErrInvalidID):
		return true
	case errors.Is(err, invoicerundomain.ErrInvalidBillingMonth),
		errors.Is(err, invoicerundomain.ErrInvalidID):
		return true
	case errors.Is(err, reconciliationdomain.ErrInvalidBillingMonth):
		return true
	case errors.Is(err, taxdomain.ErrInvalidName),
		errors.Is(err, taxdomain.ErrInvalidID),
		errors.Is(err, taxdomain.ErrInvalidTaxRate):
		return true
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict):
		return true
	case errors.Is(err, invoicerundomain.ErrRunInProgress):
		return true
	case errors.Is(err, customerdomain.ErrDuplicateProject),
		errors.Is(err, customerdomain.ErrAlreadyBound),
		errors.Is(err, customerdomain.ErrNotBound):
		return true
	case errors.Is(err, catalogdomain.ErrDuplicateCode),
		errors.Is(err, catalogdomain.ErrDuplicateSkuID):
		return true
	case errors.Is(err, invoicedomain.ErrInvalidState),
		errors.Is(err, invoicedomain.ErrInvoiceLocked),
		errors.Is(err, invoicedomain.ErrDuplicateDraft):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrProjectNotFound),
		errors.Is(err, catalogdomain.ErrGroupNotFound),
		errors.Is(err, pricingdomain.ErrListNotFound),
		errors.Is(err, pricingdomain.ErrSkuNotFound),
		errors.Is(err, creditdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicerundomain.ErrNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
