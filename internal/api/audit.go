package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gatehouse/internal/audit"
)

// auditLog enqueues an administrative action performed by the caller.
// Writes are best-effort; the recorder drops entries when its queue is full.
func (s *Server) auditLog(r *http.Request, action, subject string, details map[string]any) {
	if s.audit == nil {
		return
	}

	actor := ""
	if id, ok := identityFromContext(r.Context()); ok {
		actor = id.Username
	}

	s.audit.Enqueue(&audit.AuditLog{
		Action:  action,
		Subject: subject,
		Actor:   actor,
		Outcome: "success",
		Source:  "api",
		Details: details,
	})
}

// handleListAuditLogs returns paginated audit entries with optional filters.
//
// Query parameters:
//   - action: e.g. session.issue, reset.consume, user.suspend
//   - subject: the affected username
//   - outcome: success or failure
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditLogs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Subject: q.Get("subject"),
		Outcome: q.Get("outcome"),
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
	result, err := s.auditLogs.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
