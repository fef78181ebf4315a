package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gatehouse/internal/auth"
)

type capturePublisher struct {
	topic string
	msg   any
	err   error
}

func (p *capturePublisher) PublishJSON(topic string, v any) error {
	p.topic, p.msg = topic, v
	return p.err
}

func testTicket() auth.ResetTicket {
	return auth.ResetTicket{
		Username:  "bob",
		Secret:    "s3cr3t+/=",
		ExpiresAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestBuildLink(t *testing.T) {
	link, err := BuildLink("https://id.example.com/reset?lang=en", testTicket())
	if err != nil {
		t.Fatalf("BuildLink() error = %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parsing link: %v", err)
	}
	q := u.Query()
	if q.Get("username") != "bob" || q.Get("token") != "s3cr3t+/=" || q.Get("lang") != "en" {
		t.Errorf("query = %v", q)
	}

	link, err = BuildLink("", testTicket())
	if err != nil || link != "" {
		t.Errorf("BuildLink(\"\") = %q, %v; want empty", link, err)
	}

	if _, err := BuildLink("://bad", testTicket()); err == nil {
		t.Error("BuildLink() with invalid base should fail")
	}
}

func TestMQTTDispatcher_SendResetLink(t *testing.T) {
	pub := &capturePublisher{}
	d := NewMQTTDispatcher(pub, "gatehouse/notify/reset-link", "https://id.example.com/reset", slog.New(slog.DiscardHandler))

	if err := d.SendResetLink(context.Background(), testTicket()); err != nil {
		t.Fatalf("SendResetLink() error = %v", err)
	}
	if pub.topic != "gatehouse/notify/reset-link" {
		t.Errorf("topic = %q", pub.topic)
	}
	msg, ok := pub.msg.(ResetLinkMessage)
	if !ok {
		t.Fatalf("published %T, want ResetLinkMessage", pub.msg)
	}
	if msg.Username != "bob" || msg.Token != "s3cr3t+/=" || !strings.HasPrefix(msg.Link, "https://id.example.com/reset?") {
		t.Errorf("message = %+v", msg)
	}
}

func TestMQTTDispatcher_Errors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	d := NewMQTTDispatcher(pub, "t", "", slog.New(slog.DiscardHandler))

	if err := d.SendResetLink(context.Background(), testTicket()); err == nil {
		t.Error("SendResetLink() should surface publish errors")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.SendResetLink(ctx, testTicket()); !errors.Is(err, context.Canceled) {
		t.Errorf("SendResetLink(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestLogDispatcher_NeverLogsSecret(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := d.SendResetLink(context.Background(), testTicket()); err != nil {
		t.Fatalf("SendResetLink() error = %v", err)
	}
	if strings.Contains(buf.String(), "s3cr3t") {
		t.Errorf("log output leaked the secret: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"username":"bob"`) {
		t.Errorf("log output = %s, want username", buf.String())
	}
}
