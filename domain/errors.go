package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the lookup.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSessionIDs is returned by bulk operations called without ids.
	ErrNoSessionIDs = errors.New("session ids are required")

	// ErrInvalidBulkAction is returned for an unrecognized bulk action name.
	ErrInvalidBulkAction = errors.New("invalid bulk action")
)
