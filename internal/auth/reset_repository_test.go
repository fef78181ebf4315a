package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResetStore_IssueAndLatest(t *testing.T) {
	db := testDB(t)
	users := NewCredentialStore(db)
	resets := NewResetStore(db)
	ctx := context.Background()
	seedTestUser(t, users, "bob")

	issued := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	cred := &ResetCredential{
		Username:   "bob",
		SecretHash: HashToken("s1"),
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(30 * time.Minute),
	}
	if err := resets.Issue(ctx, cred); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if cred.ID == "" {
		t.Fatal("Issue() should assign an ID")
	}

	got, err := resets.Latest(ctx, "bob")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != cred.ID || got.SecretHash != cred.SecretHash {
		t.Errorf("Latest() = %+v", got)
	}
	if !got.IssuedAt.Equal(issued) {
		t.Errorf("IssuedAt = %v, want %v (nanoseconds preserved)", got.IssuedAt, issued)
	}
	if got.Consumed() {
		t.Error("fresh credential reported consumed")
	}

	second := &ResetCredential{
		Username:   "bob",
		SecretHash: HashToken("s2"),
		IssuedAt:   issued.Add(time.Minute),
		ExpiresAt:  issued.Add(31 * time.Minute),
	}
	if err := resets.Issue(ctx, second); err != nil {
		t.Fatalf("Issue() second error = %v", err)
	}
	got, err = resets.Latest(ctx, "bob")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != second.ID || got.SecretHash != HashToken("s2") {
		t.Errorf("Latest() after re-issue = %+v, want second credential", got)
	}

	// The first id can no longer be consumed.
	if err := resets.Consume(ctx, cred.ID, "hash", issued.Add(2*time.Minute)); !errors.Is(err, ErrResetNotFound) {
		t.Errorf("Consume(superseded) error = %v, want ErrResetNotFound", err)
	}
}

func TestResetStore_IssueUnknownUser(t *testing.T) {
	resets := NewResetStore(testDB(t))

	err := resets.Issue(context.Background(), &ResetCredential{
		Username:   "ghost",
		SecretHash: "x",
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Issue(ghost) error = %v, want ErrUserNotFound", err)
	}
	if _, err := resets.Latest(context.Background(), "ghost"); !errors.Is(err, ErrResetNotFound) {
		t.Errorf("Latest(ghost) error = %v, want ErrResetNotFound", err)
	}
}

func TestResetStore_Consume(t *testing.T) {
	db := testDB(t)
	users := NewCredentialStore(db)
	resets := NewResetStore(db)
	ctx := context.Background()
	seedTestUser(t, users, "bob")

	now := time.Now().UTC()
	cred := &ResetCredential{Username: "bob", SecretHash: "h", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := resets.Issue(ctx, cred); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := resets.Consume(ctx, cred.ID, "replaced-hash", now.Add(time.Minute)); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if err := resets.Consume(ctx, cred.ID, "other-hash", now.Add(2*time.Minute)); !errors.Is(err, ErrResetNotFound) {
		t.Errorf("second Consume() error = %v, want ErrResetNotFound", err)
	}

	user, err := users.GetByIdentity(ctx, "bob")
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}
	if user.PasswordHash != "replaced-hash" {
		t.Errorf("PasswordHash = %q, want the first consumer's hash", user.PasswordHash)
	}

	got, err := resets.Latest(ctx, "bob")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ConsumedAt == nil || !got.ConsumedAt.Equal(now.Add(time.Minute)) {
		t.Errorf("ConsumedAt = %v", got.ConsumedAt)
	}
}

func TestResetCredential_ValidAt(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	consumed := issued.Add(time.Minute)

	tests := []struct {
		name string
		cred ResetCredential
		at   time.Time
		want bool
	}{
		{"at issue", ResetCredential{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)}, issued, true},
		{"before issue", ResetCredential{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)}, issued.Add(-time.Nanosecond), false},
		{"last instant", ResetCredential{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)}, issued.Add(time.Hour - time.Nanosecond), true},
		{"at expiry", ResetCredential{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)}, issued.Add(time.Hour), false},
		{"consumed", ResetCredential{IssuedAt: issued, ExpiresAt: issued.Add(time.Hour), ConsumedAt: &consumed}, issued.Add(2 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.ValidAt(tt.at); got != tt.want {
				t.Errorf("ValidAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("secret")
	if len(a) != 64 {
		t.Errorf("len(HashToken()) = %d, want 64", len(a))
	}
	if a != HashToken("secret") {
		t.Error("HashToken() is not deterministic")
	}
	if a == HashToken("secret2") {
		t.Error("HashToken() collided")
	}
}
