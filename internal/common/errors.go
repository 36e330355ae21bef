// Package common defines shared constants and sentinel errors used across
// the portkeeper client core. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Persistence errors. Durable reads and writes are best-effort;
	// in-memory state stays authoritative for the running session.
	ErrPersistence = errors.New("persistence error")

	// Auth errors.
	ErrAuthentication = errors.New("authentication failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
	ErrNoSession      = errors.New("no active session")

	// Queue errors.
	ErrQueuePaused   = errors.New("queue is paused")
	ErrUnknownAction = errors.New("unknown queue action")
)
