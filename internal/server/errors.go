package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/charitydesk/internal/checkout/domain"
	claimdomain "github.com/smallbiznis/charitydesk/internal/claim/domain"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/identity"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
	"github.com/smallbiznis/charitydesk/pkg/db/pagination"
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
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrNotConfigured),
		errors.Is(err, identity.ErrNotConfigured):
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: "service is not configured",
		}
	case errors.Is(err, paymentdomain.ErrGateway):
		return http.StatusInternalServerError, errorPayload{
			Type:    "payment_error",
			Message: "payment could not be started, please try again",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type and code the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrs = []error{
	ErrInvalidRequest,
	checkoutdomain.ErrInvalidAmount,
	checkoutdomain.ErrInvalidCurrency,
	checkoutdomain.ErrInvalidFrequency,
	checkoutdomain.ErrInvalidDonorType,
	checkoutdomain.ErrGuestNameRequired,
	checkoutdomain.ErrGuestEmailRequired,
	claimdomain.ErrIdentifierRequired,
	claimdomain.ErrAlreadyLinked,
	claimdomain.ErrAlreadyClaimed,
	claimdomain.ErrEmailMismatch,
	pagination.ErrInvalidPageToken,
}

func validationCode(err error) (string, bool) {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, donationdomain.ErrNotFound),
		errors.Is(err, donationdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_amount":
		return "amount"
	case "invalid_currency":
		return "currency"
	case "invalid_frequency":
		return "frequency"
	case "invalid_donor_type":
		return "donorType"
	case "guest_name_required":
		return "guestInfo.name"
	case "guest_email_required":
		return "guestInfo.email"
	case "claim_identifier_required":
		return "transaction_id"
	case "email_mismatch":
		return "email"
	case "invalid_page_token":
		return "page_token"
	default:
		return "donation"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_amount":
		return "amount must be a positive number"
	case "guest_name_required":
		return "guest name is required"
	case "guest_email_required":
		return "guest email is required"
	case "claim_identifier_required":
		return "provide exactly one of transaction_id or claim_token"
	case "already_linked":
		return "this donation is already linked to an account"
	case "already_claimed":
		return "this donation has already been claimed"
	case "email_mismatch":
		return "the email does not match the donation"
	default:
		return "invalid value"
	}
}
