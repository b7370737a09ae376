package models

import "errors"

// Domain outcomes. Conflict and NotReady are expected results of idempotent
// retries and out-of-order triggers, not failures; callers must branch on
// them with errors.Is rather than treat them as fatal.
var (
	// ErrConflict is returned when a create or claim hits a row that
	// already exists for the date. The unique date constraint surfaces as
	// this error.
	ErrConflict = errors.New("prediction record already exists for date")

	// ErrNotFound is returned when no record exists for the requested date.
	ErrNotFound = errors.New("prediction record not found")

	// ErrLocked is returned on an attempt to mutate band or bias fields of
	// a locked record.
	ErrLocked = errors.New("prediction record is locked")

	// ErrNotReady is returned by the scorer when prerequisite data is
	// missing. The caller retries later; nothing is guessed.
	ErrNotReady = errors.New("record not ready for scoring")

	// ErrProviderUnavailable covers transport failures and timeouts
	// talking to an external provider.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrValidation covers payloads or prices that failed sanity checks.
	// The offending value is discarded, never persisted.
	ErrValidation = errors.New("validation failed")
)
