// Package storage holds helpers shared by the persistence backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// DefaultTimeout bounds every persistence call when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// Bound derives a context that expires after timeout. A non-positive timeout
// uses DefaultTimeout.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Translate maps context errors onto the domain taxonomy. Domain errors and
// nil pass through unchanged.
func Translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case isDomain(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
}

func isDomain(err error) bool {
	for _, target := range []error{
		domain.ErrConflict,
		domain.ErrDuplicateAnswer,
		domain.ErrSessionNotFound,
		domain.ErrItemNotFound,
		domain.ErrAnswerNotFound,
		domain.ErrInvalidConfig,
		domain.ErrInvalidAnswerFormat,
		domain.ErrTimeout,
		domain.ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
