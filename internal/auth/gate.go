package auth

import (
	"context"
	"errors"
	"fmt"
)

// Operation identifies a protected entry point of the service.
type Operation string

const (
	OpUserCreate          Operation = "users.create"
	OpUserUpdate          Operation = "users.update"
	OpUserFind            Operation = "users.find"
	OpUserSuspend         Operation = "users.suspend"
	OpUserActivate        Operation = "users.activate"
	OpUserAssignRole      Operation = "users.assign_role"
	OpUserCheckPermission Operation = "users.check_permission"
	OpProfileView         Operation = "users.profile.view"
	OpProfileUpdate       Operation = "users.profile.update"
	OpChangePassword      Operation = "users.change_password"
	OpCatalogView         Operation = "catalog.view"
	OpAuditView           Operation = "audit.view"
)

// sessionOnly marks operations that need a live session but no tag.
const sessionOnly PermissionTag = ""

// operationTags is the single table of required tags. Operations absent
// from it are refused.
var operationTags = map[Operation]PermissionTag{
	OpUserCreate:          TagAdmin,
	OpUserUpdate:          TagAdmin,
	OpUserFind:            TagAdmin,
	OpUserSuspend:         TagAdmin,
	OpUserActivate:        TagAdmin,
	OpUserAssignRole:      TagAdmin,
	OpUserCheckPermission: TagAdmin,
	OpAuditView:           TagAdmin,
	OpProfileView:         sessionOnly,
	OpProfileUpdate:       sessionOnly,
	OpChangePassword:      sessionOnly,
	OpCatalogView:         sessionOnly,
}

// RequiredTag returns the tag op demands. ok is false for unknown operations;
// an empty tag with ok true means a session is sufficient.
func RequiredTag(op Operation) (tag PermissionTag, ok bool) {
	tag, ok = operationTags[op]
	return tag, ok
}

// PermissionGate decides whether a verified identity may run an operation.
type PermissionGate struct {
	sessions SessionVerifier
	resolver *RoleResolver
	store    CredentialStore
	cfg      Config
	opts     options
}

// NewPermissionGate wires the two guard stages together.
func NewPermissionGate(cfg Config, sessions SessionVerifier, resolver *RoleResolver, store CredentialStore, opts ...Option) *PermissionGate {
	return &PermissionGate{
		sessions: sessions,
		resolver: resolver,
		store:    store,
		cfg:      cfg.withDefaults(),
		opts:     buildOptions(opts),
	}
}

// Guard is the full pipeline for a protected operation: verify the session
// token, then authorise the resulting identity for op's tag. It is the only
// way the HTTP layer reaches Authorize.
func (g *PermissionGate) Guard(ctx context.Context, token string, op Operation) (Identity, error) {
	id, err := g.sessions.VerifySession(token)
	if err != nil {
		return Identity{}, err
	}

	tag, ok := RequiredTag(op)
	if !ok {
		g.deny(ctx, id.Username, op, "unknown_operation")
		return Identity{}, fmt.Errorf("%w: operation %q is not registered", ErrPermissionDenied, op)
	}

	if tag == sessionOnly {
		if err := g.requireActive(ctx, id); err != nil {
			g.deny(ctx, id.Username, op, reasonFor(err))
			return Identity{}, err
		}
		return id, nil
	}

	if err := g.authorize(ctx, id, tag); err != nil {
		g.deny(ctx, id.Username, op, reasonFor(err))
		return Identity{}, err
	}
	g.opts.record(ctx, Event{Kind: EventAccessCheck, Subject: id.Username, Outcome: OutcomeSuccess, Operation: string(op)})
	return id, nil
}

// Authorize succeeds iff tag is granted to the identity's current roles.
// The account status is re-read so a suspension takes effect on the next
// protected call even though the session token is stateless.
func (g *PermissionGate) Authorize(ctx context.Context, id Identity, tag PermissionTag) error {
	err := g.authorize(ctx, id, tag)
	if err != nil {
		g.deny(ctx, id.Username, "", reasonFor(err))
	}
	return err
}

func (g *PermissionGate) authorize(ctx context.Context, id Identity, tag PermissionTag) error {
	if err := g.requireActive(ctx, id); err != nil {
		return err
	}

	perms, err := g.resolver.ResolvePermissions(ctx, id.Username)
	if errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	if err != nil {
		return err
	}
	if !perms.Has(tag) {
		return fmt.Errorf("%w: %s required", ErrPermissionDenied, tag)
	}
	return nil
}

// CheckPermission reports whether username holds tag: nil when it does,
// ErrPermissionDenied when it does not.
func (g *PermissionGate) CheckPermission(ctx context.Context, username string, tag PermissionTag) error {
	if !IsKnownTag(tag) {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	perms, err := g.resolver.ResolvePermissions(ctx, username)
	if err != nil {
		return err
	}
	if !perms.Has(tag) {
		return fmt.Errorf("%w: %s lacks %s", ErrPermissionDenied, username, tag)
	}
	return nil
}

// Resolver exposes the resolver used by the gate.
func (g *PermissionGate) Resolver() *RoleResolver {
	return g.resolver
}

func (g *PermissionGate) requireActive(ctx context.Context, id Identity) error {
	if !id.Verified() {
		return fmt.Errorf("%w: identity was not produced by session verification", ErrInvalidToken)
	}

	sctx, cancel := bounded(ctx, g.cfg.StoreTimeout)
	defer cancel()

	user, err := g.store.GetByIdentity(sctx, id.Username)
	if errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	if err != nil {
		return storeFailure("loading account", err)
	}
	if user.Status != StatusActive {
		return ErrAccountSuspended
	}
	return nil
}

func (g *PermissionGate) deny(ctx context.Context, username string, op Operation, reason string) {
	g.opts.logger.Info("access denied", "username", username, "operation", op, "reason", reason)
	g.opts.record(ctx, Event{
		Kind:      EventAccessCheck,
		Subject:   username,
		Outcome:   OutcomeFailure,
		Reason:    reason,
		Operation: string(op),
	})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrAccountSuspended):
		return "suspended"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_identity"
	case errors.Is(err, ErrPermissionDenied):
		return "missing_permission"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
