package auth

import (
	"context"
	"time"
)

// EventKind identifies the auth operation an Event describes.
type EventKind string

const (
	EventSessionIssue   EventKind = "session.issue"
	EventAccessCheck    EventKind = "access.check"
	EventResetRequest   EventKind = "reset.request"
	EventResetConsume   EventKind = "reset.consume"
	EventPasswordChange EventKind = "password.change"
)

// Outcome is the result of the operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one auth decision. Reason is for operators only; it never reaches
// the API caller.
type Event struct {
	Kind      EventKind
	Subject   string
	Outcome   Outcome
	Reason    string
	Operation string
	At        time.Time
}

// EventRecorder receives auth events. Implementations must not block for
// long and must handle their own failures.
type EventRecorder interface {
	RecordAuthEvent(ctx context.Context, e Event)
}

// MultiRecorder fans an event out to several recorders.
type MultiRecorder []EventRecorder

// RecordAuthEvent implements EventRecorder.
func (m MultiRecorder) RecordAuthEvent(ctx context.Context, e Event) {
	for _, r := range m {
		if r != nil {
			r.RecordAuthEvent(ctx, e)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(context.Context, Event) {}
