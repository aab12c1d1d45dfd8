package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/lingo/internal/api/middleware"
	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Error codes returned in the error body.
const (
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeInvalidAnswerFormat = "INVALID_ANSWER_FORMAT"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeItemNotFound        = "ITEM_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeSessionCompleted    = "SESSION_COMPLETED"
	CodeConflict            = "CONFLICT"
	CodeDuplicateAnswer     = "DUPLICATE_ANSWER"
	CodeRatingUpdateFailed  = "RATING_UPDATE_FAILED"
	CodeTimeout             = "TIMEOUT"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// APIError represents a structured API error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// ErrorResponse is the JSON structure for error responses
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

var statusTable = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidConfig, http.StatusBadRequest, CodeInvalidConfig},
	{domain.ErrInvalidAnswerFormat, http.StatusBadRequest, CodeInvalidAnswerFormat},
	{domain.ErrSessionCompleted, http.StatusBadRequest, CodeSessionCompleted},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound},
	{domain.ErrItemNotFound, http.StatusNotFound, CodeItemNotFound},
	{domain.ErrAnswerNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrDuplicateAnswer, http.StatusConflict, CodeDuplicateAnswer},
	{domain.ErrRatingUpdateFailed, http.StatusInternalServerError, CodeRatingUpdateFailed},
	{domain.ErrConflict, http.StatusConflict, CodeConflict},
	{domain.ErrTimeout, http.StatusInternalServerError, CodeTimeout},
	{domain.ErrStorageUnavailable, http.StatusInternalServerError, CodeStorageUnavailable},
}

// StatusFor maps an error to its HTTP status and error code. Unknown errors
// are internal errors.
func StatusFor(err error) (int, string) {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// FromError builds the API error for err. Internal details are not exposed
// for 5xx responses.
func FromError(err error) (int, *APIError) {
	status, code := StatusFor(err)
	apiErr := &APIError{Code: code, Message: err.Error(), cause: err}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		apiErr.Field = ve.Field
	}
	if status >= 500 {
		apiErr.Message = http.StatusText(status)
		if code != CodeInternal {
			apiErr.Message = publicMessage(code)
		}
	}
	return status, apiErr
}

func publicMessage(code string) string {
	switch code {
	case CodeRatingUpdateFailed:
		return "rating update failed, resubmit the answer"
	case CodeTimeout:
		return "storage timed out"
	case CodeStorageUnavailable:
		return "storage unavailable"
	}
	return "internal error"
}

// WriteError writes an error response for err
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := FromError(err)
	writeAPIError(w, r, status, apiErr)
}

// BadRequest writes a 400 for a malformed request body or query
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, http.StatusBadRequest, &APIError{Code: CodeBadRequest, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	logAttrs := []any{
		"code", apiErr.Code,
		"message", apiErr.Message,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"correlation_id", middleware.GetCorrelationID(r.Context()),
	}
	if apiErr.cause != nil {
		logAttrs = append(logAttrs, "cause", apiErr.cause.Error())
	}

	if status >= 500 {
		slog.Error("api error", logAttrs...)
	} else {
		slog.Warn("api error", logAttrs...)
	}

	WriteJSON(w, status, ErrorResponse{Error: apiErr})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
