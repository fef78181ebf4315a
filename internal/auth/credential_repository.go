package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatehouse/internal/infrastructure/database"
)

// Page size bounds for FindUsers.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserFilter selects accounts for FindUsers. Empty fields are ignored.
type UserFilter struct {
	Username string
	Email    string
	Status   Status
	Limit    int
	Offset   int
}

// UserPage is one page of FindUsers results.
type UserPage struct {
	Users  []User `json:"users"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// SQLiteCredentialStore implements CredentialStore plus the account
// administration operations on SQLite.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewCredentialStore returns a store over db.
func NewCredentialStore(db *sql.DB) *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: db}
}

// userColumns aggregates role ids so a single row carries the whole account.
const userColumns = `u.id, u.username, u.first_name, u.last_name, u.email, u.password_hash, u.status,
	u.created_at, u.updated_at, COALESCE(GROUP_CONCAT(ur.role_id, ','), '')`

const userFrom = `FROM users u LEFT JOIN user_roles ur ON ur.user_id = u.id`

// GetByIdentity loads an account with its roles.
func (s *SQLiteCredentialStore) GetByIdentity(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" "+userFrom+" WHERE u.username = ? GROUP BY u.id", username)
	return scanUserFrom(row)
}

// UpdatePasswordHash replaces the stored hash.
func (s *SQLiteCredentialStore) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE username = ?", hash, now, username)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

// GetRolesOf lists the roles assigned to username, sorted.
func (s *SQLiteCredentialStore) GetRolesOf(ctx context.Context, username string) ([]RoleID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ur.role_id FROM users u LEFT JOIN user_roles ur ON ur.user_id = u.id
		 WHERE u.username = ? ORDER BY ur.role_id`, username)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	found := false
	roles := []RoleID{}
	for rows.Next() {
		found = true
		var role sql.NullString
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		if role.Valid {
			roles = append(roles, RoleID(role.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	if !found {
		return nil, ErrUserNotFound
	}
	return roles, nil
}

// GetRoleDefinition lists the tags granted by role, sorted.
func (s *SQLiteCredentialStore) GetRoleDefinition(ctx context.Context, role RoleID) ([]PermissionTag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rp.tag FROM roles r LEFT JOIN role_permissions rp ON rp.role_id = r.id
		 WHERE r.id = ? ORDER BY rp.tag`, string(role))
	if err != nil {
		return nil, fmt.Errorf("querying role permissions: %w", err)
	}
	defer rows.Close()

	found := false
	tags := []PermissionTag{}
	for rows.Next() {
		found = true
		var tag sql.NullString
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		if tag.Valid {
			tags = append(tags, PermissionTag(tag.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	if !found {
		return nil, ErrRoleNotFound
	}
	return tags, nil
}

// SetStatus suspends or reactivates an account.
func (s *SQLiteCredentialStore) SetStatus(ctx context.Context, username string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET status = ?, updated_at = ? WHERE username = ?", string(status), now, username)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

// CreateUser inserts user and its role assignments. ID and timestamps are
// generated; an empty Status means active.
func (s *SQLiteCredentialStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}
	if user.Status == "" {
		user.Status = StatusActive
	}
	if !user.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, user.Status)
	}

	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt, user.UpdatedAt = now, now
	stamp := now.Format(time.RFC3339)

	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, first_name, last_name, email, password_hash, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Username, user.FirstName, user.LastName, nullString(user.Email),
			user.PasswordHash, string(user.Status), stamp, stamp,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrUserExists
			}
			return fmt.Errorf("creating user: %w", err)
		}
		return insertUserRoles(ctx, tx, user.ID, user.Roles, stamp)
	})
}

// UpdateProfile changes the descriptive fields of an account.
func (s *SQLiteCredentialStore) UpdateProfile(ctx context.Context, user *User) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, email = ?, updated_at = ? WHERE username = ?`,
		user.FirstName, user.LastName, nullString(user.Email), now.Format(time.RFC3339), user.Username,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if err := requireRow(res, ErrUserNotFound); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// AssignRoles replaces the role set of username.
func (s *SQLiteCredentialStore) AssignRoles(ctx context.Context, username string, roles []RoleID) error {
	stamp := time.Now().UTC().Format(time.RFC3339)

	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("looking up user: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("clearing roles: %w", err)
		}
		if err := insertUserRoles(ctx, tx, userID, roles, stamp); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", stamp, userID)
		return err
	})
}

// DefineRole creates or replaces a role and its tag set. Tags must be in
// the catalog.
func (s *SQLiteCredentialStore) DefineRole(ctx context.Context, role Role) error {
	if role.ID == "" {
		return fmt.Errorf("%w: empty role id", ErrRoleNotFound)
	}
	for _, tag := range role.Tags {
		if !IsKnownTag(tag) {
			return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
	}
	stamp := time.Now().UTC().Format(time.RFC3339)

	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, description, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET description = excluded.description`,
			string(role.ID), role.Description, stamp,
		); err != nil {
			return fmt.Errorf("upserting role: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id = ?", string(role.ID)); err != nil {
			return fmt.Errorf("clearing role permissions: %w", err)
		}
		for _, tag := range role.Tags {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO role_permissions (role_id, tag) VALUES (?, ?)",
				string(role.ID), string(tag),
			); err != nil {
				return fmt.Errorf("granting %s: %w", tag, err)
			}
		}
		return nil
	})
}

// FindUsers lists accounts matching filter, oldest first.
func (s *SQLiteCredentialStore) FindUsers(ctx context.Context, filter UserFilter) (*UserPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	filter.Limit = min(filter.Limit, maxPageSize)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any
	if filter.Username != "" {
		conditions = append(conditions, "u.username = ?")
		args = append(args, filter.Username)
	}
	if filter.Email != "" {
		conditions = append(conditions, "u.email = ?")
		args = append(args, filter.Email)
	}
	if filter.Status != "" {
		conditions = append(conditions, "u.status = ?")
		args = append(args, string(filter.Status))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users u "+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from fixed fragments
		return nil, fmt.Errorf("counting users: %w", err)
	}

	query := "SELECT " + userColumns + " " + userFrom + " " + where + //nolint:gosec // WHERE built from fixed fragments
		" GROUP BY u.id ORDER BY u.created_at ASC, u.username ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return &UserPage{Users: users, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Count returns the number of accounts.
func (s *SQLiteCredentialStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func insertUserRoles(ctx context.Context, tx *sql.Tx, userID string, roles []RoleID, stamp string) error {
	for _, role := range roles {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO user_roles (user_id, role_id, created_at) VALUES (?, ?, ?)",
			userID, string(role), stamp)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %q", ErrRoleNotFound, role)
			}
			return fmt.Errorf("assigning role %s: %w", role, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUserFrom(s scanner) (*User, error) {
	var u User
	var email sql.NullString
	var status, createdAt, updatedAt, roles string

	err := s.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &email,
		&u.PasswordHash, &status, &createdAt, &updatedAt, &roles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Email = email.String
	u.Status = Status(status)
	u.Roles = []RoleID{}
	if roles != "" {
		for _, r := range strings.Split(roles, ",") {
			u.Roles = append(u.Roles, RoleID(r))
		}
		slices.Sort(u.Roles)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
