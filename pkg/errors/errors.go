package errors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Review engine failure taxonomy. Every call either completes its whole unit
// of work or fails with one of these; the engine never leaves an item
// half-transitioned.
var (
	// ErrInvalidAction is returned when an actor/item/action combination is not permitted.
	ErrInvalidAction = errors.New("action not permitted for this item")
	// ErrUpdateConflict is returned when a version check fails because another
	// actor already mutated the item. Safe to retry after re-reading.
	ErrUpdateConflict = errors.New("item was updated by someone else")
	// ErrHandlerFailure is returned when a variant handler's side effect failed.
	ErrHandlerFailure = errors.New("action handler failed")
	// ErrValidation is returned when input is rejected before any write.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound is returned when a reviewable item cannot be found.
	ErrNotFound = errors.New("reviewable item not found")
	// ErrTargetNotFound is returned when a moderated target cannot be loaded.
	ErrTargetNotFound = errors.New("target not found")
	// ErrUnauthorized is returned when the actor may not see or touch the item at all.
	ErrUnauthorized = errors.New("actor not authorized")
)

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context, preserving the chain so
// callers can still match sentinels with errors.Is.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// LogWithError logs the error with context and returns a wrapped error. Use this for standardized error logging across services.
func LogWithError(ctx context.Context, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		if ctx != nil {
			if reqID, ok := ctx.Value("request_id").(string); ok && reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
		}
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}
