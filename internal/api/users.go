package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username  string        `json:"username"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email,omitempty"`
	Password  string        `json:"password"`
	Roles     []auth.RoleID `json:"roles,omitempty"`
}

// profileFields are the descriptive fields an account may change. Nil
// pointers leave the stored value alone.
type profileFields struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type updateUserRequest struct {
	Username string `json:"username"`
	profileFields
}

type usernameRequest struct {
	Username string `json:"username"`
}

type assignRoleRequest struct {
	Username string        `json:"username"`
	Roles    []auth.RoleID `json:"roles"`
}

type checkPermissionRequest struct {
	Username   string             `json:"username"`
	Permission auth.PermissionTag `json:"permission"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ─── Admin Handlers ────────────────────────────────────────────────

// handleCreateUser creates a new account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "username must be 1-64 letters, digits, dots, hyphens or underscores")
		return
	}
	if err := auth.ValidatePassword(req.Password, s.secCfg.Password.MinLength); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hashing password failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Username:     req.Username,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Roles:        req.Roles,
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(r, "user.create", user.Username, map[string]any{"roles": user.Roles})
	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUser changes the profile fields of any account.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	user, ok := s.applyProfile(w, r, req.Username, req.profileFields)
	if !ok {
		return
	}

	s.auditLog(r, "user.update", user.Username, nil)
	writeJSON(w, http.StatusOK, user)
}

// handleFindUsers lists accounts.
//
// Query parameters:
//   - username, email, status: exact-match filters
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleFindUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.UserFilter{
		Username: q.Get("username"),
		Email:    q.Get("email"),
		Status:   auth.Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "status must be active or suspended")
		return
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	page, err := s.users.FindUsers(ctx, filter)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleSuspendUser blocks an account. Its outstanding sessions are refused
// from the next protected call.
func (s *Server) handleSuspendUser(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, auth.StatusSuspended, "user.suspend")
}

// handleActivateUser lifts a suspension.
func (s *Server) handleActivateUser(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, auth.StatusActive, "user.activate")
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status auth.Status, action string) {
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	if err := s.users.SetStatus(ctx, req.Username, status); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(r, action, req.Username, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"username": req.Username,
		"status":   status,
	})
}

// handleAssignRole replaces the role set of an account.
func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}
	if req.Roles == nil {
		req.Roles = []auth.RoleID{}
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	if err := s.users.AssignRoles(ctx, req.Username, req.Roles); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(r, "user.assign_role", req.Username, map[string]any{"roles": req.Roles})
	writeJSON(w, http.StatusOK, map[string]any{
		"username": req.Username,
		"roles":    req.Roles,
	})
}

// handleCheckPermission reports whether another account holds a tag. A
// missing tag is an answer, not an error.
func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Permission == "" {
		writeBadRequest(w, "username and permission are required")
		return
	}

	err := s.gate.CheckPermission(r.Context(), req.Username, req.Permission)
	if err != nil && !errors.Is(err, auth.ErrPermissionDenied) {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":   req.Username,
		"permission": req.Permission,
		"granted":    err == nil,
	})
}

// ─── Session Handlers ──────────────────────────────────────────────

// handleGetProfile returns the caller's own account.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	user, err := s.users.GetByIdentity(ctx, id.Username)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateProfile lets the caller change their own profile fields.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, _ := identityFromContext(r.Context())
	user, ok := s.applyProfile(w, r, id.Username, req)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword replaces the caller's password after checking the
// current one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.NewPassword == "" {
		writeBadRequest(w, "new_password is required")
		return
	}

	id, _ := identityFromContext(r.Context())
	if err := s.reset.ChangePassword(r.Context(), id.Username, req.OldPassword, req.NewPassword); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// applyProfile loads username, applies the non-nil fields and saves it. On
// failure the response has been written and ok is false.
func (s *Server) applyProfile(w http.ResponseWriter, r *http.Request, username string, fields profileFields) (*auth.User, bool) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	user, err := s.users.GetByIdentity(ctx, username)
	if err != nil {
		s.writeAuthError(w, r, err)
		return nil, false
	}

	if fields.FirstName != nil {
		user.FirstName = strings.TrimSpace(*fields.FirstName)
	}
	if fields.LastName != nil {
		user.LastName = strings.TrimSpace(*fields.LastName)
	}
	if fields.Email != nil {
		user.Email = strings.TrimSpace(*fields.Email)
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		s.writeAuthError(w, r, err)
		return nil, false
	}
	return user, true
}
