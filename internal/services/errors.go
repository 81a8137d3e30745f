package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
)

// MapError classifies infrastructure failures into domain codes. Errors
// already carrying a code pass through unchanged so callers can branch
// on the original kind.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *types.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case database.IsNotFoundError(err):
		return types.Wrap(types.CodeNotFound, op, err)
	case database.IsRetryableError(err):
		return types.Wrap(types.CodeTransient, op, err)
	case database.IsDuplicateError(err):
		return types.Wrap(types.CodeValidation, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.Wrap(types.CodeTransient, op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "lock timeout"),
		strings.Contains(msg, "could not obtain lock"):
		return types.Wrap(types.CodeTransient, op, err)
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
		return types.Wrap(types.CodeValidation, op, err)
	default:
		return types.Wrap(types.CodeInternal, op, err)
	}
}
