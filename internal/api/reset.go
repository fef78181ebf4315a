package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// resetRequestedMessage is returned by mailResetPassword whether or not the
// account exists.
const resetRequestedMessage = "if the account exists and is active, a reset link has been sent"

type mailResetPasswordRequest struct {
	Username string `json:"username"`
}

type resetPasswordRequest struct {
	Username    string `json:"username,omitempty"`
	Token       string `json:"token,omitempty"` //nolint:gosec // G117: request field, never logged
	NewPassword string `json:"new_password"`
}

// handleMailResetPassword issues a reset credential and hands the ticket to
// the notifier. The response never reveals whether a ticket was issued.
func (s *Server) handleMailResetPassword(w http.ResponseWriter, r *http.Request) {
	var req mailResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	ticket, err := s.reset.RequestReset(r.Context(), req.Username)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if ticket != nil {
		s.deliveries.Add(1)
		go s.deliverResetLink(*ticket)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    resetRequestedMessage,
		"expires_in": int(s.reset.Window().Seconds()),
	})
}

// deliverResetLink hands ticket to the notifier off the request path, so
// known and unknown accounts answer in the same time. A failed delivery
// leaves the credential in place; the caller can ask again.
func (s *Server) deliverResetLink(ticket auth.ResetTicket) {
	defer s.deliveries.Done()

	ctx, cancel := context.WithTimeout(context.Background(), resetDeliveryTimeout)
	defer cancel()

	if err := s.notifier.SendResetLink(ctx, ticket); err != nil {
		s.logger.Error("reset link delivery failed", "username", ticket.Username, "error", err)
	}
}

// handleCheckResetPasswordCred reports whether the username and token query
// parameters name a live reset credential.
func (s *Server) handleCheckResetPasswordCred(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username, token := q.Get("username"), q.Get("token")
	if username == "" || token == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}

	valid, err := s.reset.CheckCredential(r.Context(), username, token)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// handleResetPassword spends a reset credential to set a new password. The
// username and token come from the link's query string; the body may carry
// them instead.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	q := r.URL.Query()
	if v := q.Get("username"); v != "" {
		req.Username = v
	}
	if v := q.Get("token"); v != "" {
		req.Token = v
	}
	if req.NewPassword == "" {
		writeBadRequest(w, "new_password is required")
		return
	}

	if err := s.reset.ConsumeCredential(r.Context(), req.Username, req.Token, req.NewPassword); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}
