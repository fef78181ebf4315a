package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func requestReset(t *testing.T, f *fixture, username string) *ResetTicket {
	t.Helper()

	ticket, err := f.reset.RequestReset(context.Background(), username)
	if err != nil {
		t.Fatalf("RequestReset(%s) error = %v", username, err)
	}
	if ticket == nil {
		t.Fatalf("RequestReset(%s) returned no ticket", username)
	}
	return ticket
}

func checkCredential(t *testing.T, f *fixture, username, secret string) bool {
	t.Helper()

	ok, err := f.reset.CheckCredential(context.Background(), username, secret)
	if err != nil {
		t.Fatalf("CheckCredential() error = %v", err)
	}
	return ok
}

func TestRequestReset_Supersedes(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")

	t1 := requestReset(t, f, "bob")
	t2 := requestReset(t, f, "bob")

	if t1.Secret == t2.Secret {
		t.Fatal("consecutive requests returned the same secret")
	}
	if checkCredential(t, f, "bob", t1.Secret) {
		t.Error("CheckCredential(T1) = true, want false after supersession")
	}
	if !checkCredential(t, f, "bob", t2.Secret) {
		t.Error("CheckCredential(T2) = false, want true")
	}

	err := f.reset.ConsumeCredential(context.Background(), "bob", t1.Secret, "brand-new-password")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ConsumeCredential(T1) error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestRequestReset_StoresOnlyDigest(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")

	ticket := requestReset(t, f, "bob")

	cred, err := f.resets.Latest(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if cred.SecretHash == ticket.Secret {
		t.Error("raw secret was stored")
	}
	if cred.SecretHash != HashToken(ticket.Secret) {
		t.Error("stored hash does not match the secret digest")
	}
	if !cred.ExpiresAt.Equal(ticket.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, ticket.ExpiresAt)
	}
	if got := cred.ExpiresAt.Sub(cred.IssuedAt); got != 30*time.Minute {
		t.Errorf("window = %v, want 30m", got)
	}
}

func TestRequestReset_Silent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTestUser(t, f.users, "mallory")
	if err := f.users.SetStatus(ctx, "mallory", StatusSuspended); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	for _, username := range []string{"nobody", "mallory"} {
		t.Run(username, func(t *testing.T) {
			ticket, err := f.reset.RequestReset(ctx, username)
			if err != nil {
				t.Fatalf("RequestReset() error = %v, want nil", err)
			}
			if ticket != nil {
				t.Error("RequestReset() returned a ticket for an ineligible account")
			}
			if _, err := f.resets.Latest(ctx, username); !errors.Is(err, ErrResetNotFound) {
				t.Errorf("Latest() error = %v, want ErrResetNotFound", err)
			}
		})
	}
}

func TestCheckCredential_Window(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")
	ticket := requestReset(t, f, "bob")

	f.clock.Advance(30*time.Minute - time.Second)
	if !checkCredential(t, f, "bob", ticket.Secret) {
		t.Error("CheckCredential() just inside the window = false")
	}

	f.clock.Advance(time.Second)
	if checkCredential(t, f, "bob", ticket.Secret) {
		t.Error("CheckCredential() at expiry = true")
	}

	err := f.reset.ConsumeCredential(context.Background(), "bob", ticket.Secret, "brand-new-password")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ConsumeCredential() after expiry error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestCheckCredential_Mismatch(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")
	seedTestUser(t, f.users, "dave")
	ticket := requestReset(t, f, "bob")

	tests := []struct {
		name     string
		username string
		secret   string
	}{
		{"other account", "dave", ticket.Secret},
		{"unknown account", "nobody", ticket.Secret},
		{"wrong secret", "bob", "not-the-secret"},
		{"empty secret", "bob", ""},
		{"digest instead of secret", "bob", HashToken(ticket.Secret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if checkCredential(t, f, tt.username, tt.secret) {
				t.Error("CheckCredential() = true, want false")
			}
		})
	}
}

func TestConsumeCredential_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTestUser(t, f.users, "bob")
	ticket := requestReset(t, f, "bob")

	if err := f.reset.ConsumeCredential(ctx, "bob", ticket.Secret, "brand-new-password"); err != nil {
		t.Fatalf("ConsumeCredential() error = %v", err)
	}

	if _, err := f.sessions.IssueSession(ctx, "bob", "brand-new-password"); err != nil {
		t.Errorf("IssueSession() with new password error = %v", err)
	}
	if _, err := f.sessions.IssueSession(ctx, "bob", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("IssueSession() with old password error = %v, want ErrInvalidCredentials", err)
	}

	if checkCredential(t, f, "bob", ticket.Secret) {
		t.Error("CheckCredential() after consume = true")
	}
	err := f.reset.ConsumeCredential(ctx, "bob", ticket.Secret, "another-password")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("second ConsumeCredential() error = %v, want ErrInvalidOrExpiredToken", err)
	}

	cred, err := f.resets.Latest(ctx, "bob")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if !cred.Consumed() {
		t.Error("credential should be marked consumed")
	}
}

func TestConsumeCredential_WeakPasswordKeepsCredential(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")
	ticket := requestReset(t, f, "bob")

	err := f.reset.ConsumeCredential(context.Background(), "bob", ticket.Secret, "short")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("ConsumeCredential() error = %v, want ErrWeakPassword", err)
	}
	if !checkCredential(t, f, "bob", ticket.Secret) {
		t.Error("a rejected password must not spend the credential")
	}
}

func TestConsumeCredential_InvalidTokenBeforePolicy(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")

	err := f.reset.ConsumeCredential(context.Background(), "bob", "bogus", "short")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ConsumeCredential() error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTestUser(t, f.users, "alice")

	tests := []struct {
		name     string
		username string
		old      string
		new      string
		wantErr  error
	}{
		{"wrong current password", "alice", "wrong", "another-password", ErrInvalidCredentials},
		{"unknown user", "ghost", testPassword, "another-password", ErrInvalidCredentials},
		{"weak new password", "alice", testPassword, "short", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.reset.ChangePassword(ctx, tt.username, tt.old, tt.new)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ChangePassword() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := f.reset.ChangePassword(ctx, "alice", testPassword, "another-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := f.sessions.IssueSession(ctx, "alice", "another-password"); err != nil {
		t.Errorf("IssueSession() with changed password error = %v", err)
	}
	if e := f.events.last(); e.Kind != EventSessionIssue {
		t.Errorf("last event kind = %s", e.Kind)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t)
	seedTestUser(t, f.users, "bob")
	seedTestUser(t, f.users, "dave")

	requestReset(t, f, "bob")
	f.clock.Advance(20 * time.Minute)
	requestReset(t, f, "dave")

	f.clock.Advance(15 * time.Minute)

	n, err := f.reset.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if _, err := f.resets.Latest(context.Background(), "dave"); err != nil {
		t.Errorf("Latest(dave) error = %v, want live credential", err)
	}
}
