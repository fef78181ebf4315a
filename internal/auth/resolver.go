package auth

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

// PermissionSet is the union of tags granted to an account.
type PermissionSet map[PermissionTag]struct{}

// Has reports whether tag is in the set.
func (s PermissionSet) Has(tag PermissionTag) bool {
	_, ok := s[tag]
	return ok
}

// Tags returns the members in sorted order.
func (s PermissionSet) Tags() []PermissionTag {
	tags := slices.AppendSeq(make([]PermissionTag, 0, len(s)), maps.Keys(s))
	slices.Sort(tags)
	return tags
}

// RoleResolver maps an account to the permissions its roles grant. It reads
// the store on every call; role changes apply to the next request.
type RoleResolver struct {
	store   CredentialStore
	timeout time.Duration
}

// NewRoleResolver bounds each store lookup by timeout (zero disables the bound).
func NewRoleResolver(store CredentialStore, timeout time.Duration) *RoleResolver {
	return &RoleResolver{store: store, timeout: timeout}
}

// ResolvePermissions returns the union of the tags of every role assigned
// to username. A role that no longer exists contributes nothing.
func (r *RoleResolver) ResolvePermissions(ctx context.Context, username string) (PermissionSet, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	roles, err := r.store.GetRolesOf(ctx, username)
	if err != nil {
		return nil, storeFailure("loading roles", err)
	}

	set := make(PermissionSet)
	for _, role := range roles {
		tags, err := r.store.GetRoleDefinition(ctx, role)
		if errors.Is(err, ErrRoleNotFound) {
			continue
		}
		if err != nil {
			return nil, storeFailure("loading role "+string(role), err)
		}
		for _, tag := range tags {
			set[tag] = struct{}{}
		}
	}
	return set, nil
}
