package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/claimdesk/internal/wizard"
)

// Error codes that do not come from wizard validation
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeInFlight       = "in_flight"
	CodeStale          = "stale"
	CodeExternal       = "external_error"
	CodeTooLarge       = "too_large"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	RespondMessage(c, status, code, msg)
}

func RespondMessage(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondFromError maps wizard errors to a status and envelope. Backend
// failures carry only the user-facing message; internal details stay in logs.
func RespondFromError(c *gin.Context, err error) {
	var (
		verr *wizard.ValidationError
		xerr *wizard.ExternalError
	)
	switch {
	case errors.As(err, &verr):
		RespondMessage(c, validationStatus(verr.Code), verr.Code, verr.Message)
	case errors.Is(err, wizard.ErrInFlight):
		RespondMessage(c, http.StatusConflict, CodeInFlight, "This action is already in progress.")
	case errors.Is(err, wizard.ErrStale):
		RespondMessage(c, http.StatusConflict, CodeStale, "The session changed while this action was running. Please try again.")
	case errors.As(err, &xerr):
		RespondMessage(c, http.StatusBadGateway, CodeExternal, xerr.UserMessage())
	default:
		RespondMessage(c, http.StatusInternalServerError, CodeInternal, wizard.GenericFailureMessage)
	}
}

func validationStatus(code string) int {
	switch code {
	case wizard.CodeConflictNotFound:
		return http.StatusNotFound
	case wizard.CodeStepLocked, wizard.CodeUnresolvedConflicts, wizard.CodeAlreadyEscalated,
		wizard.CodeNoFacts, wizard.CodeNoSignals, wizard.CodeNoTimeline,
		wizard.CodeNoRecommendation, wizard.CodeNoRationale:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
