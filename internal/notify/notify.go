// Package notify delivers password-reset links out of band.
//
// The core never sends mail itself. A Dispatcher hands the ticket to a
// transport: MQTT for a mail relay subscribed to the notify topic, or the
// log-only dispatcher when no transport is configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// Dispatcher delivers a reset ticket to its account holder.
type Dispatcher interface {
	SendResetLink(ctx context.Context, ticket auth.ResetTicket) error
}

// ResetLinkMessage is the wire form of a reset delivery.
type ResetLinkMessage struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"` //nolint:gosec // G117: the delivery payload carries the secret
	Link      string    `json:"link,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BuildLink appends username and token query parameters to base. An empty
// base yields an empty link.
func BuildLink(base string, ticket auth.ResetTicket) (string, error) {
	if base == "" {
		return "", nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing reset link base: %w", err)
	}
	q := u.Query()
	q.Set("username", ticket.Username)
	q.Set("token", ticket.Secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogDispatcher records that a reset was requested without delivering it.
// The secret is never logged.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher returns a dispatcher that only logs.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// SendResetLink implements Dispatcher.
func (d *LogDispatcher) SendResetLink(_ context.Context, ticket auth.ResetTicket) error {
	d.logger.Warn("reset link not delivered, no notification transport configured",
		"username", ticket.Username,
		"expires_at", ticket.ExpiresAt,
	)
	return nil
}
