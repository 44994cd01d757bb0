package response

import (
	"errors"
	"net/http"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/template"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries error information back to the client.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error codes used across the API.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// HTTPStatusFromError maps domain errors onto HTTP status codes.
func HTTPStatusFromError(err error) int {
	var (
		wfNotFound     *engine.WorkflowNotFoundError
		notCancellable *engine.WorkflowNotCancellableError
		badDefinition  *engine.DefinitionError
		tplNotFound    *template.NotFoundError
		tplDuplicate   *template.DuplicateError
		storeNotFound  *storage.NotFoundError
		storeDown      *storage.StorageUnavailableError
	)

	switch {
	case errors.As(err, &wfNotFound), errors.As(err, &tplNotFound), errors.As(err, &storeNotFound):
		return http.StatusNotFound
	case errors.As(err, &notCancellable), errors.As(err, &tplDuplicate):
		return http.StatusConflict
	case errors.As(err, &badDefinition):
		return http.StatusBadRequest
	case errors.As(err, &storeDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns the API error code for an HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError maps a domain error to status and code and writes it.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := ErrorCodeFromStatus(status)
	Error(w, status, code, err.Error(), requestID)
}
