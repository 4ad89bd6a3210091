package auth

import "errors"

// Closed set of failures raised by the auth service. Route adapters map
// these to HTTP statuses; anything else is a 500.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrWeakPassword           = errors.New("password does not meet policy")
	ErrValidation             = errors.New("invalid input")
)

// Token codec failures. Both are terminal for the presented token; the
// middleware treats them as a refresh-fallback signal, never as partial trust.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)
