package errors

import (
	"errors"
)

// Common error types
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternal      = errors.New("internal error")
	ErrDatabaseError = errors.New("database error")

	// ErrGuardUnavailable is returned when chat membership cannot be resolved in time.
	// The message is treated as sent by a privileged member.
	ErrGuardUnavailable = errors.New("privilege guard unavailable")

	// ErrStoreUnavailable is returned when strike or dedup storage fails.
	// No action is taken on the message.
	ErrStoreUnavailable = errors.New("moderation store unavailable")

	// ErrConfigInvalid is returned when a rules snapshot fails validation.
	ErrConfigInvalid = errors.New("invalid moderation rules")
)
