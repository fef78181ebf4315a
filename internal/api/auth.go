package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// timeFormat renders expiry times in responses.
const timeFormat = time.RFC3339

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

// permissionView is one catalog entry.
type permissionView struct {
	Tag auth.PermissionTag `json:"tag"`
	auth.TagView
}

// handleLogin exchanges a username and password for a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	session, err := s.sessions.IssueSession(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.sessions.TTL().Seconds()),
		ExpiresAt:   session.ExpiresAt.UTC().Format(timeFormat),
	})
}

// handlePermissions returns the permission catalog and the tags the caller
// currently holds.
func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())

	granted, err := s.gate.Resolver().ResolvePermissions(r.Context(), id.Username)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	catalog := auth.Catalog()
	tags := auth.CatalogTags()
	views := make([]permissionView, 0, len(tags))
	for _, tag := range tags {
		views = append(views, permissionView{Tag: tag, TagView: catalog[tag]})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": views,
		"granted":     granted.Tags(),
	})
}
