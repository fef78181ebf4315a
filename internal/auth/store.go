package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CredentialStore is the account and role store consumed by the core.
type CredentialStore interface {
	// GetByIdentity returns ErrUserNotFound for unknown usernames.
	GetByIdentity(ctx context.Context, username string) (*User, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) error
	// GetRolesOf returns an empty slice for an account without roles and
	// ErrUserNotFound for an unknown account.
	GetRolesOf(ctx context.Context, username string) ([]RoleID, error)
	// GetRoleDefinition returns ErrRoleNotFound for an undefined role.
	GetRoleDefinition(ctx context.Context, role RoleID) ([]PermissionTag, error)
	SetStatus(ctx context.Context, username string, status Status) error
}

// ResetStore persists reset credentials, at most one per account.
type ResetStore interface {
	// Issue stores cred for cred.Username, replacing any earlier credential
	// in the same statement. ErrUserNotFound if the account is gone.
	Issue(ctx context.Context, cred *ResetCredential) error
	// Latest returns ErrResetNotFound when the account has no credential.
	Latest(ctx context.Context, username string) (*ResetCredential, error)
	// Consume marks credential id consumed and sets the account password in
	// one transaction. ErrResetNotFound if id is unknown or already consumed.
	Consume(ctx context.Context, id, passwordHash string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// storeFailure passes domain errors through and folds everything else,
// including deadlines, into ErrStoreUnavailable.
func storeFailure(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrUserExists),
		errors.Is(err, ErrRoleNotFound),
		errors.Is(err, ErrResetNotFound),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrUnknownTag):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
