package auth

import (
	"context"
	"log/slog"
	"slices"
	"testing"
)

func TestSeedSuperuser_CreatesWithGeneratedPassword(t *testing.T) {
	store := NewCredentialStore(testDB(t))
	ctx := context.Background()

	password, err := SeedSuperuser(ctx, store, SuperuserSeed{Username: "root", Email: "root@example.com"}, slog.Default())
	if err != nil {
		t.Fatalf("SeedSuperuser() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedSuperuser() should return the generated password")
	}

	root, err := store.GetByIdentity(ctx, "root")
	if err != nil {
		t.Fatalf("GetByIdentity(root) error = %v", err)
	}
	if !slices.Contains(root.Roles, RoleAdmin) {
		t.Errorf("Roles = %v, want ADMIN", root.Roles)
	}
	ok, err := VerifyPassword(password, root.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}

	tags, err := store.GetRoleDefinition(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("GetRoleDefinition() error = %v", err)
	}
	if !slices.Equal(tags, []PermissionTag{TagAdmin}) {
		t.Errorf("ADMIN tags = %v", tags)
	}
}

func TestSeedSuperuser_ConfiguredPassword(t *testing.T) {
	store := NewCredentialStore(testDB(t))
	ctx := context.Background()

	password, err := SeedSuperuser(ctx, store, SuperuserSeed{Username: "root", Password: "configured-secret"}, slog.Default())
	if err != nil {
		t.Fatalf("SeedSuperuser() error = %v", err)
	}
	if password != "" {
		t.Error("SeedSuperuser() should not echo a configured password")
	}

	root, err := store.GetByIdentity(ctx, "root")
	if err != nil {
		t.Fatalf("GetByIdentity(root) error = %v", err)
	}
	if ok, _ := VerifyPassword("configured-secret", root.PasswordHash); !ok { //nolint:errcheck // hash is ours
		t.Error("configured password should verify")
	}
}

func TestSeedSuperuser_Idempotent(t *testing.T) {
	store := NewCredentialStore(testDB(t))
	ctx := context.Background()
	seed := SuperuserSeed{Username: "root", Password: "configured-secret"}

	if _, err := SeedSuperuser(ctx, store, seed, slog.Default()); err != nil {
		t.Fatalf("SeedSuperuser() error = %v", err)
	}
	first, err := store.GetByIdentity(ctx, "root")
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}

	seed.Password = "different-secret"
	if _, err := SeedSuperuser(ctx, store, seed, slog.Default()); err != nil {
		t.Fatalf("second SeedSuperuser() error = %v", err)
	}
	second, err := store.GetByIdentity(ctx, "root")
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}
	if first.PasswordHash != second.PasswordHash {
		t.Error("re-seeding must not replace an existing password")
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestSeedSuperuser_PromotesExisting(t *testing.T) {
	store := NewCredentialStore(testDB(t))
	ctx := context.Background()
	seedTestUser(t, store, "ops")

	if _, err := SeedSuperuser(ctx, store, SuperuserSeed{Username: "ops"}, slog.Default()); err != nil {
		t.Fatalf("SeedSuperuser() error = %v", err)
	}

	ops, err := store.GetByIdentity(ctx, "ops")
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}
	if !slices.Contains(ops.Roles, RoleAdmin) {
		t.Errorf("Roles = %v, want ADMIN", ops.Roles)
	}
	if ok, _ := VerifyPassword(testPassword, ops.PasswordHash); !ok { //nolint:errcheck // hash is ours
		t.Error("promotion must keep the existing password")
	}
}

func TestSeedSuperuser_NoUsername(t *testing.T) {
	store := NewCredentialStore(testDB(t))
	ctx := context.Background()

	password, err := SeedSuperuser(ctx, store, SuperuserSeed{}, slog.Default())
	if err != nil {
		t.Fatalf("SeedSuperuser() error = %v", err)
	}
	if password != "" {
		t.Errorf("password = %q, want empty", password)
	}
	if _, err := store.GetRoleDefinition(ctx, RoleAdmin); err != nil {
		t.Errorf("ADMIN role should still be defined: %v", err)
	}
}
