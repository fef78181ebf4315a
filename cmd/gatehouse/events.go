package main

import (
	"context"
	"time"

	"github.com/nerrad567/gatehouse/internal/auth"
	"github.com/nerrad567/gatehouse/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatehouse/internal/infrastructure/logging"
)

// authEventWriter is the part of the InfluxDB client the recorder needs.
type authEventWriter interface {
	WriteAuthEvent(e influxdb.AuthEvent)
}

// influxRecorder forwards auth decisions to the time-series store.
type influxRecorder struct {
	client authEventWriter
}

// RecordAuthEvent implements auth.EventRecorder.
func (r influxRecorder) RecordAuthEvent(_ context.Context, e auth.Event) {
	r.client.WriteAuthEvent(influxdb.AuthEvent{
		Kind:      string(e.Kind),
		Outcome:   string(e.Outcome),
		Subject:   e.Subject,
		Reason:    e.Reason,
		Operation: e.Operation,
		At:        e.At,
	})
}

// expiredPurger removes reset credentials past their window.
type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// startPurge runs purgeLoop in the background. The returned stop cancels it
// and waits for an in-flight purge to finish.
func startPurge(ctx context.Context, p expiredPurger, interval time.Duration, log *logging.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, p, interval, log)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

// purgeLoop deletes expired reset credentials every interval until ctx is done.
func purgeLoop(ctx context.Context, p expiredPurger, interval time.Duration, log *logging.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purging expired reset credentials", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("purged expired reset credentials", "count", n)
			}
		}
	}
}
