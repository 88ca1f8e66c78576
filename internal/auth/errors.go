package auth

import "errors"

var (
	// ErrUnauthenticated is returned when a request carries no session token.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrSessionExpired is returned when the token is unknown or past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidSignup is returned for a malformed email or short password.
	ErrInvalidSignup = errors.New("invalid email or password too short")
)
