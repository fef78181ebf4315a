package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is a freshly minted session token and its validity window.
type Session struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionVerifier turns a presented token into a verified Identity.
type SessionVerifier interface {
	VerifySession(token string) (Identity, error)
}

// SessionAuthenticator issues and verifies HS256 session tokens.
// The only state it holds is the immutable signing key.
type SessionAuthenticator struct {
	cfg   Config
	store CredentialStore
	opts  options
}

// NewSessionAuthenticator validates cfg and returns an authenticator.
func NewSessionAuthenticator(cfg Config, store CredentialStore, opts ...Option) (*SessionAuthenticator, error) {
	cfg = cfg.withDefaults()
	if len(cfg.SessionSecret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &SessionAuthenticator{cfg: cfg, store: store, opts: buildOptions(opts)}, nil
}

// IssueSession checks password against the stored hash for username and
// mints a session token. Unknown accounts and wrong passwords both yield
// ErrInvalidCredentials. Suspension is only reported to a caller who has
// proven the password.
func (a *SessionAuthenticator) IssueSession(ctx context.Context, username, password string) (Session, error) {
	user, err := a.loadUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		burnPasswordCheck(password)
		a.reject(ctx, username, "unknown_user")
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		a.opts.logger.Error("stored password hash unreadable", "username", username, "error", err)
	}
	if err != nil || !ok {
		a.reject(ctx, username, "bad_password")
		return Session{}, ErrInvalidCredentials
	}

	if user.Status == StatusSuspended {
		a.reject(ctx, username, "suspended")
		return Session{}, ErrAccountSuspended
	}

	session, err := a.mint(user.Username)
	if err != nil {
		return Session{}, err
	}

	a.opts.record(ctx, Event{Kind: EventSessionIssue, Subject: user.Username, Outcome: OutcomeSuccess})
	return session, nil
}

// VerifySession checks the token signature, then its expiry. Any signature
// or format problem is ErrInvalidToken; a well-signed token at or past its
// expiry is ErrTokenExpired. No store access happens here.
func (a *SessionAuthenticator) VerifySession(token string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.opts.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if a.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.cfg.Issuer))
	}

	// jwt/v5 verifies the signature before validating claims, so an
	// expired-but-tampered token reports the signature failure.
	_, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return a.cfg.SessionSecret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	id := Identity{
		Username:  claims.Subject,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		verified:  true,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, nil
}

// TTL returns the configured session lifetime.
func (a *SessionAuthenticator) TTL() time.Duration {
	return a.cfg.SessionTTL
}

func (a *SessionAuthenticator) mint(username string) (Session, error) {
	// Token timestamps have one-second resolution.
	now := a.opts.now().UTC().Truncate(time.Second)
	expires := now.Add(a.cfg.SessionTTL)

	claims := jwt.RegisteredClaims{
		Issuer:    a.cfg.Issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SessionSecret)
	if err != nil {
		return Session{}, fmt.Errorf("signing session token: %w", err)
	}
	return Session{Token: signed, IssuedAt: now, ExpiresAt: expires}, nil
}

func (a *SessionAuthenticator) loadUser(ctx context.Context, username string) (*User, error) {
	ctx, cancel := bounded(ctx, a.cfg.StoreTimeout)
	defer cancel()

	user, err := a.store.GetByIdentity(ctx, username)
	return user, storeFailure("loading account", err)
}

func (a *SessionAuthenticator) reject(ctx context.Context, username, reason string) {
	a.opts.logger.Info("session refused", "username", username, "reason", reason)
	a.opts.record(ctx, Event{Kind: EventSessionIssue, Subject: username, Outcome: OutcomeFailure, Reason: reason})
}
