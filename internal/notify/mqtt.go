package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// Publisher is the subset of the MQTT client used for deliveries.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTDispatcher publishes reset links for a relay to turn into mail.
type MQTTDispatcher struct {
	pub      Publisher
	topic    string
	linkBase string
	logger   *slog.Logger
}

// NewMQTTDispatcher publishes to topic; linkBase is the reset page URL.
func NewMQTTDispatcher(pub Publisher, topic, linkBase string, logger *slog.Logger) *MQTTDispatcher {
	return &MQTTDispatcher{pub: pub, topic: topic, linkBase: linkBase, logger: logger}
}

// SendResetLink implements Dispatcher.
func (d *MQTTDispatcher) SendResetLink(ctx context.Context, ticket auth.ResetTicket) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending reset link: %w", err)
	}

	link, err := BuildLink(d.linkBase, ticket)
	if err != nil {
		return err
	}

	msg := ResetLinkMessage{
		Username:  ticket.Username,
		Token:     ticket.Secret,
		Link:      link,
		ExpiresAt: ticket.ExpiresAt.UTC(),
	}
	if err := d.pub.PublishJSON(d.topic, msg); err != nil {
		return fmt.Errorf("publishing reset link: %w", err)
	}

	d.logger.Info("reset link dispatched", "username", ticket.Username, "topic", d.topic)
	return nil
}
