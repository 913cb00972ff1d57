package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/lessonapi"
	"github.com/verte-zerg/arcade/internal/remotesync"
)

// APIError is the error body returned to clients.
type APIError struct {
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Fields  []ledger.FieldError `json:"fields,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: msg, Code: "bad_request"}})
}

// respondError maps err to a status and the user-facing message.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	body := APIError{Message: arcade.UserMessage(err), Code: code}
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "user_id", userID(c), "error", err)
	}
	c.JSON(status, ErrorEnvelope{Error: body})
}

func classify(err error) (int, string) {
	var (
		verr   *ledger.ValidationError
		skill  *ledger.UnknownSkillError
		cached *arcade.CachedQuotaError
		apiErr *lessonapi.APIError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_setup"
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.As(err, &skill):
		return http.StatusNotFound, "unknown_skill"
	case errors.Is(err, ledger.ErrInvalidModule):
		return http.StatusBadRequest, "invalid_module"
	case errors.Is(err, ledger.ErrStorageFull):
		return http.StatusInsufficientStorage, "storage_full"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, arcade.ErrInvalidActivity):
		return http.StatusBadRequest, "invalid_activity"
	case errors.As(err, &cached):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &apiErr):
		if apiErr.Kind == lessonapi.KindQuotaExhausted {
			return http.StatusTooManyRequests, string(apiErr.Kind)
		}
		return http.StatusBadGateway, string(apiErr.Kind)
	case remotesync.IsSyncError(err):
		return http.StatusBadGateway, "sync_failed"
	}
	return http.StatusInternalServerError, "internal"
}
