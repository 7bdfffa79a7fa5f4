package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Collaborator errors.
	ErrorNotConfigured = errors.New("provider not configured")
	ErrorRejected      = errors.New("rejected by provider")

	// Session errors.
	ErrorNoUser       = errors.New("no user in session")
	ErrorNotHydrated  = errors.New("session not hydrated")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrorUnauthorized = errors.New("unauthorized")
)
