package auth

import "errors"

// Errors surfaced to callers of the core. Login and reset paths collapse
// "unknown account" into the same error as "wrong secret".
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountSuspended      = errors.New("account is suspended")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token has expired")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrUnknownTag            = errors.New("unknown permission tag")
	ErrStoreUnavailable      = errors.New("credential store unavailable")
	ErrWeakPassword          = errors.New("password does not meet policy")
)

// Store-level errors.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("username already exists")
	ErrRoleNotFound  = errors.New("role not found")
	ErrResetNotFound = errors.New("reset credential not found")
	ErrInvalidStatus = errors.New("invalid account status")
)
