package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatehouse/internal/infrastructure/database"
)

// resetTimeLayout is fixed-width so stored timestamps sort lexicographically
// in time order, with nanosecond precision for exact window checks.
const resetTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HashToken returns the hex SHA-256 of a raw secret. Raw reset secrets are
// never stored, only this digest.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// SQLiteResetStore implements ResetStore on SQLite.
type SQLiteResetStore struct {
	db *sql.DB
}

// NewResetStore returns a reset store over db.
func NewResetStore(db *sql.DB) *SQLiteResetStore {
	return &SQLiteResetStore{db: db}
}

// Issue writes cred as the only credential of its account. The upsert
// replaces the id and hash in one statement, so a superseded secret can
// neither validate nor win a later Consume.
func (s *SQLiteResetStore) Issue(ctx context.Context, cred *ResetCredential) error {
	if cred.ID == "" {
		cred.ID = "rst-" + uuid.NewString()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reset_credentials (user_id, id, secret_hash, issued_at, expires_at, consumed_at)
		 SELECT id, ?, ?, ?, ?, NULL FROM users WHERE username = ?
		 ON CONFLICT(user_id) DO UPDATE SET
		     id = excluded.id,
		     secret_hash = excluded.secret_hash,
		     issued_at = excluded.issued_at,
		     expires_at = excluded.expires_at,
		     consumed_at = NULL`,
		cred.ID, cred.SecretHash,
		cred.IssuedAt.UTC().Format(resetTimeLayout),
		cred.ExpiresAt.UTC().Format(resetTimeLayout),
		cred.Username,
	)
	if err != nil {
		return fmt.Errorf("issuing reset credential: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

// Latest returns the current credential of username.
func (s *SQLiteResetStore) Latest(ctx context.Context, username string) (*ResetCredential, error) {
	var c ResetCredential
	var issuedAt, expiresAt string
	var consumedAt sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT rc.id, u.username, rc.secret_hash, rc.issued_at, rc.expires_at, rc.consumed_at
		 FROM reset_credentials rc JOIN users u ON u.id = rc.user_id
		 WHERE u.username = ?`, username,
	).Scan(&c.ID, &c.Username, &c.SecretHash, &issuedAt, &expiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("loading reset credential: %w", err)
	}

	if c.IssuedAt, err = time.Parse(resetTimeLayout, issuedAt); err != nil {
		return nil, fmt.Errorf("parsing issued_at: %w", err)
	}
	if c.ExpiresAt, err = time.Parse(resetTimeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if consumedAt.Valid {
		t, err := time.Parse(resetTimeLayout, consumedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing consumed_at: %w", err)
		}
		c.ConsumedAt = &t
	}

	return &c, nil
}

// Consume flips consumed_at from NULL on credential id and writes the new
// password hash in the same transaction. Only one caller can observe the
// NULL, so concurrent consumers get exactly one winner.
func (s *SQLiteResetStore) Consume(ctx context.Context, id, passwordHash string, at time.Time) error {
	stamp := at.UTC().Format(resetTimeLayout)

	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE reset_credentials SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL",
			stamp, id)
		if err != nil {
			return fmt.Errorf("consuming reset credential: %w", err)
		}
		if err := requireRow(res, ErrResetNotFound); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ?
			 WHERE id = (SELECT user_id FROM reset_credentials WHERE id = ?)`,
			passwordHash, at.UTC().Format(time.RFC3339), id)
		if err != nil {
			return fmt.Errorf("updating password: %w", err)
		}
		return requireRow(res, ErrUserNotFound)
	})
}

// DeleteExpired removes credentials that expired before the cutoff and
// returns how many were removed.
func (s *SQLiteResetStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reset_credentials WHERE expires_at < ?", before.UTC().Format(resetTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting expired reset credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}
