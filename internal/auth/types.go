package auth

import (
	"regexp"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const maxUsernameLength = 64

// IsValidUsername reports whether username is 1-64 characters of letters,
// digits, dots, hyphens and underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// RoleID names a bundle of permission tags.
type RoleID string

// RoleAdmin is the role seeded with TagAdmin.
const RoleAdmin RoleID = "ADMIN"

// Role is a named set of permission tags owned by the store.
type Role struct {
	ID          RoleID          `json:"id"`
	Description string          `json:"description,omitempty"`
	Tags        []PermissionTag `json:"tags"`
}

// User is an account record as held by the credential store.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Status       Status    `json:"status"`
	Roles        []RoleID  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the subject proven by a session token. The zero value, or
// any Identity built outside VerifySession, is unverified and is rejected
// by PermissionGate.Authorize.
type Identity struct {
	Username  string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time

	verified bool
}

// Verified reports whether the identity came from VerifySession.
func (i Identity) Verified() bool {
	return i.verified
}

// ResetCredential is the stored half of a password-reset token. Only the
// SHA-256 of the secret is kept.
type ResetCredential struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	SecretHash string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Consumed reports whether the credential has been used.
func (c *ResetCredential) Consumed() bool {
	return c.ConsumedAt != nil
}

// ValidAt reports whether the credential may be honoured at now:
// unconsumed and now within [IssuedAt, ExpiresAt).
func (c *ResetCredential) ValidAt(now time.Time) bool {
	return !c.Consumed() && !now.Before(c.IssuedAt) && now.Before(c.ExpiresAt)
}

// ResetTicket is handed to the caller after a successful RequestReset so the
// secret can be delivered out of band. It is never persisted.
type ResetTicket struct {
	Username  string
	Secret    string
	ExpiresAt time.Time
}
