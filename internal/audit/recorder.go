package audit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nerrad567/gatehouse/internal/auth"
)

// queueSize is the buffer of pending entries. Entries beyond it are dropped.
const queueSize = 256

// Recorder writes audit entries asynchronously through a single drain
// goroutine. It implements auth.EventRecorder.
type Recorder struct {
	repo    Repository
	logger  *slog.Logger
	queue   chan *AuditLog
	dropped atomic.Int64
}

// NewRecorder returns a recorder over repo. Call Run to start draining.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, queueSize),
	}
}

// RecordAuthEvent enqueues e.
func (r *Recorder) RecordAuthEvent(_ context.Context, e auth.Event) {
	entry := &AuditLog{
		Action:    string(e.Kind),
		Subject:   e.Subject,
		Outcome:   string(e.Outcome),
		Source:    "core",
		CreatedAt: e.At,
	}
	if e.Reason != "" || e.Operation != "" {
		entry.Details = map[string]any{}
		if e.Reason != "" {
			entry.Details["reason"] = e.Reason
		}
		if e.Operation != "" {
			entry.Details["operation"] = e.Operation
		}
	}
	r.Enqueue(entry)
}

// Enqueue adds entry to the write queue without blocking.
func (r *Recorder) Enqueue(entry *AuditLog) {
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping entry", "action", entry.Action, "subject", entry.Subject)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then flushes whatever
// is still queued and returns.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// Detached so entries drained during shutdown still land.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed", "action", entry.Action, "subject", entry.Subject, "error", err)
	}
}
