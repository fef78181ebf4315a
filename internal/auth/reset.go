package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// resetSecretBytes is the entropy of a reset secret before encoding.
const resetSecretBytes = 32

// ResetManager issues, validates and consumes password-reset credentials,
// and performs authenticated password changes.
type ResetManager struct {
	cfg    Config
	users  CredentialStore
	resets ResetStore
	opts   options
}

// NewResetManager returns a manager over the two stores.
func NewResetManager(cfg Config, users CredentialStore, resets ResetStore, opts ...Option) *ResetManager {
	return &ResetManager{
		cfg:    cfg.withDefaults(),
		users:  users,
		resets: resets,
		opts:   buildOptions(opts),
	}
}

// Window returns how long a freshly issued credential stays valid.
func (m *ResetManager) Window() time.Duration {
	return m.cfg.ResetWindow
}

// RequestReset issues a new credential for username, replacing any earlier
// one. For unknown or suspended accounts it returns (nil, nil) so callers
// cannot tell them apart from a successful request; the returned ticket is
// the only place the raw secret ever appears.
func (m *ResetManager) RequestReset(ctx context.Context, username string) (*ResetTicket, error) {
	secret, err := newResetSecret()
	if err != nil {
		return nil, err
	}

	user, err := m.loadUser(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		m.ignored(ctx, username, "unknown_user")
		return nil, nil
	case err != nil:
		return nil, err
	case user.Status != StatusActive:
		m.ignored(ctx, username, "suspended")
		return nil, nil
	}

	now := m.opts.now().UTC()
	cred := &ResetCredential{
		Username:   user.Username,
		SecretHash: HashToken(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.cfg.ResetWindow),
	}

	sctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()
	if err := m.resets.Issue(sctx, cred); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.ignored(ctx, username, "unknown_user")
			return nil, nil
		}
		return nil, storeFailure("issuing reset credential", err)
	}

	m.opts.logger.Info("reset credential issued", "username", user.Username, "expires_at", cred.ExpiresAt)
	m.opts.record(ctx, Event{Kind: EventResetRequest, Subject: user.Username, Outcome: OutcomeSuccess})
	return &ResetTicket{Username: user.Username, Secret: secret, ExpiresAt: cred.ExpiresAt}, nil
}

// CheckCredential reports whether secret is the current, unconsumed and
// unexpired credential of username. Every failure reason yields
// (false, nil); only store outages are errors.
func (m *ResetManager) CheckCredential(ctx context.Context, username, secret string) (bool, error) {
	_, err := m.lookup(ctx, username, secret)
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ConsumeCredential sets newPassword for username if secret is valid, and
// spends the credential in the same store transaction. A second call with
// the same secret fails with ErrInvalidOrExpiredToken.
func (m *ResetManager) ConsumeCredential(ctx context.Context, username, secret, newPassword string) error {
	cred, err := m.lookup(ctx, username, secret)
	if err != nil {
		m.consumeFailed(ctx, username, err)
		return err
	}

	if err := ValidatePassword(newPassword, m.cfg.MinPasswordLength); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	sctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()

	err = m.resets.Consume(sctx, cred.ID, hash, m.opts.now().UTC())
	if errors.Is(err, ErrResetNotFound) || errors.Is(err, ErrUserNotFound) {
		// Lost a race with another consumer or a newer request.
		err = ErrInvalidOrExpiredToken
	} else if err != nil {
		err = storeFailure("consuming reset credential", err)
	}
	if err != nil {
		m.consumeFailed(ctx, username, err)
		return err
	}

	m.opts.logger.Info("password reset completed", "username", username)
	m.opts.record(ctx, Event{Kind: EventResetConsume, Subject: username, Outcome: OutcomeSuccess})
	return nil
}

// ChangePassword replaces the password of username after checking the
// current one. Wrong or unknown credentials yield ErrInvalidCredentials.
func (m *ResetManager) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := m.loadUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		burnPasswordCheck(oldPassword)
		m.passwordChangeFailed(ctx, username, "unknown_user")
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		m.passwordChangeFailed(ctx, username, "bad_password")
		return ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		m.passwordChangeFailed(ctx, username, "suspended")
		return ErrAccountSuspended
	}

	if err := ValidatePassword(newPassword, m.cfg.MinPasswordLength); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	sctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()
	if err := m.users.UpdatePasswordHash(sctx, user.Username, hash); err != nil {
		return storeFailure("updating password", err)
	}

	m.opts.record(ctx, Event{Kind: EventPasswordChange, Subject: user.Username, Outcome: OutcomeSuccess})
	return nil
}

// PurgeExpired deletes credentials whose window closed before now.
func (m *ResetManager) PurgeExpired(ctx context.Context) (int64, error) {
	sctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()

	n, err := m.resets.DeleteExpired(sctx, m.opts.now().UTC())
	if err != nil {
		return 0, storeFailure("purging reset credentials", err)
	}
	return n, nil
}

// lookup returns the live credential matching secret or
// ErrInvalidOrExpiredToken, without saying which check failed.
func (m *ResetManager) lookup(ctx context.Context, username, secret string) (*ResetCredential, error) {
	if secret == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	sctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()

	cred, err := m.resets.Latest(sctx, username)
	if errors.Is(err, ErrResetNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, storeFailure("loading reset credential", err)
	}

	presented := HashToken(secret)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(cred.SecretHash)) != 1 {
		return nil, ErrInvalidOrExpiredToken
	}
	if !cred.ValidAt(m.opts.now()) {
		return nil, ErrInvalidOrExpiredToken
	}
	return cred, nil
}

func (m *ResetManager) loadUser(ctx context.Context, username string) (*User, error) {
	ctx, cancel := bounded(ctx, m.cfg.StoreTimeout)
	defer cancel()

	user, err := m.users.GetByIdentity(ctx, username)
	return user, storeFailure("loading account", err)
}

func (m *ResetManager) ignored(ctx context.Context, username, reason string) {
	m.opts.logger.Info("reset request ignored", "username", username, "reason", reason)
	m.opts.record(ctx, Event{Kind: EventResetRequest, Subject: username, Outcome: OutcomeFailure, Reason: reason})
}

func (m *ResetManager) consumeFailed(ctx context.Context, username string, err error) {
	reason := "invalid_or_expired"
	if errors.Is(err, ErrStoreUnavailable) {
		reason = "store_unavailable"
	}
	m.opts.record(ctx, Event{Kind: EventResetConsume, Subject: username, Outcome: OutcomeFailure, Reason: reason})
}

func (m *ResetManager) passwordChangeFailed(ctx context.Context, username, reason string) {
	m.opts.logger.Info("password change refused", "username", username, "reason", reason)
	m.opts.record(ctx, Event{Kind: EventPasswordChange, Subject: username, Outcome: OutcomeFailure, Reason: reason})
}

func newResetSecret() (string, error) {
	buf := make([]byte, resetSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating reset secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
