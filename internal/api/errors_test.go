package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.InvalidConfig("lang", "required"), http.StatusBadRequest, CodeInvalidConfig},
		{domain.InvalidAnswer("answer_id", "required"), http.StatusBadRequest, CodeInvalidAnswerFormat},
		{domain.ErrSessionCompleted, http.StatusBadRequest, CodeSessionCompleted},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
		{fmt.Errorf("session s1: %w", domain.ErrForbidden), http.StatusForbidden, CodeForbidden},
		{domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound},
		{domain.ErrItemNotFound, http.StatusNotFound, CodeItemNotFound},
		{domain.ErrConflict, http.StatusConflict, CodeConflict},
		{domain.ErrDuplicateAnswer, http.StatusConflict, CodeDuplicateAnswer},
		{fmt.Errorf("%w after 5 attempts: %v", domain.ErrRatingUpdateFailed, domain.ErrConflict), http.StatusInternalServerError, CodeRatingUpdateFailed},
		{domain.ErrTimeout, http.StatusInternalServerError, CodeTimeout},
		{domain.ErrStorageUnavailable, http.StatusInternalServerError, CodeStorageUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("StatusFor(%v) = %d %s; want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestFromError_HidesInternalDetail(t *testing.T) {
	err := fmt.Errorf("get rating: %w: dial tcp 10.0.0.5:5432: connection refused", domain.ErrStorageUnavailable)

	status, apiErr := FromError(err)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", status)
	}
	if apiErr.Message != "storage unavailable" {
		t.Errorf("Message = %q; want public message", apiErr.Message)
	}
	if !errors.Is(apiErr, domain.ErrStorageUnavailable) {
		t.Error("APIError should unwrap to its cause")
	}
}

func TestFromError_ValidationField(t *testing.T) {
	_, apiErr := FromError(domain.InvalidConfig("duration_s", "must be positive"))
	if apiErr.Field != "duration_s" {
		t.Errorf("Field = %q; want duration_s", apiErr.Field)
	}
	if apiErr.Message == "" {
		t.Error("Message should describe the validation failure")
	}
}
