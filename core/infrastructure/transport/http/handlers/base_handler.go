package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/widgetquery/core/shared/errors"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger logging.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(tag string) *BaseHandler {
	return &BaseHandler{
		logger: logging.New(tag),
	}
}

// Logger returns the handler's logger
func (h *BaseHandler) Logger() logging.Logger {
	return h.logger
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteError writes an error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		h.logger.Errorf("Unhandled error: %v", err)
		appErr = errors.NewAppError(errors.ErrCodeInternalError, "internal error", err)
	}

	h.WriteJSON(w, appErr.Status, dto.ErrorResponse{
		Success: false,
		Code:    string(appErr.Code),
		Error:   appErr.Message,
	})
}

// WriteValidationError writes a validation error response
func (h *BaseHandler) WriteValidationError(w http.ResponseWriter, validationErrors map[string]string) {
	details := make([]dto.ErrorDetail, 0, len(validationErrors))
	for field, tag := range validationErrors {
		details = append(details, dto.ErrorDetail{
			Field:   field,
			Tag:     tag,
			Message: "Validation failed",
		})
	}

	h.WriteJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
		Success: false,
		Error:   "Validation failed",
		Details: details,
	})
}

// WriteEnvelope writes a widget result. Failures map to the status of their
// error code; rate-limited results carry Retry-After in whole seconds.
func (h *BaseHandler) WriteEnvelope(w http.ResponseWriter, env *domain.ResultEnvelope) {
	if env.Success {
		h.WriteJSON(w, http.StatusOK, env)
		return
	}

	code := errors.ErrCodeInternalError
	if env.Error != nil {
		code = errors.ErrorCode(env.Error.Code)
	}
	if code == errors.ErrCodeRateLimited {
		seconds := int64(math.Ceil(env.RetryAfter().Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}
	h.WriteJSON(w, errors.HTTPStatus(code), env)
}

// WriteSuccess writes a success response
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, data any) {
	h.WriteJSON(w, http.StatusOK, data)
}
