package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// seedPasswordBytes is the number of random bytes for a generated superuser password.
const seedPasswordBytes = 16

// SeedStore is the subset of the credential store used at first boot.
type SeedStore interface {
	GetByIdentity(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	AssignRoles(ctx context.Context, username string, roles []RoleID) error
	DefineRole(ctx context.Context, role Role) error
}

// SuperuserSeed describes the bootstrap administrator.
type SuperuserSeed struct {
	Username string
	Password string
	Email    string
}

// SeedSuperuser makes sure the ADMIN role exists and, when seed names a
// user, that the user exists and holds it. An existing account keeps its
// password. When a new account is created without a configured password,
// one is generated, logged once and returned.
func SeedSuperuser(ctx context.Context, store SeedStore, seed SuperuserSeed, logger *slog.Logger) (string, error) {
	if err := store.DefineRole(ctx, Role{
		ID:          RoleAdmin,
		Description: "Account administration",
		Tags:        []PermissionTag{TagAdmin},
	}); err != nil {
		return "", fmt.Errorf("defining admin role: %w", err)
	}

	if seed.Username == "" {
		logger.Info("no superuser configured, skipping seed")
		return "", nil
	}

	existing, err := store.GetByIdentity(ctx, seed.Username)
	switch {
	case err == nil:
		if slices.Contains(existing.Roles, RoleAdmin) {
			logger.Info("superuser present", "username", seed.Username)
			return "", nil
		}
		roles := append(slices.Clone(existing.Roles), RoleAdmin)
		if err := store.AssignRoles(ctx, seed.Username, roles); err != nil {
			return "", fmt.Errorf("granting admin role: %w", err)
		}
		logger.Warn("existing account promoted to superuser", "username", seed.Username)
		return "", nil
	case !errors.Is(err, ErrUserNotFound):
		return "", fmt.Errorf("looking up superuser: %w", err)
	}

	password := seed.Password
	generated := password == ""
	if generated {
		buf := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating superuser password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing superuser password: %w", err)
	}

	if err := store.CreateUser(ctx, &User{
		Username:     seed.Username,
		FirstName:    "Super",
		LastName:     "User",
		Email:        seed.Email,
		PasswordHash: hash,
		Status:       StatusActive,
		Roles:        []RoleID{RoleAdmin},
	}); err != nil {
		return "", fmt.Errorf("creating superuser: %w", err)
	}

	if !generated {
		logger.Info("superuser created", "username", seed.Username)
		return "", nil
	}

	logger.Warn("superuser created with generated password",
		"username", seed.Username,
		"generated_password", password,
		"action_required", "change this password immediately",
	)
	return password, nil
}
