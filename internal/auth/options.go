package auth

import (
	"context"
	"log/slog"
	"time"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultSessionTTL        = 60 * time.Minute
	DefaultResetWindow       = 30 * time.Minute
	DefaultMinPasswordLength = 8
)

// Config is built once at startup and passed by value to each component.
type Config struct {
	SessionSecret     []byte
	SessionTTL        time.Duration
	Issuer            string
	ResetWindow       time.Duration
	StoreTimeout      time.Duration
	MinPasswordLength int
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = DefaultResetWindow
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = DefaultMinPasswordLength
	}
	// Callers may not keep a handle on the key.
	c.SessionSecret = append([]byte(nil), c.SessionSecret...)
	return c
}

// Option customises a core component.
type Option func(*options)

type options struct {
	now      func() time.Time
	logger   *slog.Logger
	recorder EventRecorder
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sends auth events to r.
func WithRecorder(r EventRecorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	return o
}

// record emits e detached from ctx's cancellation so a timed-out request
// still leaves an audit entry.
func (o options) record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = o.now().UTC()
	}
	o.recorder.RecordAuthEvent(context.WithoutCancel(ctx), e)
}

// bounded derives the per-call store deadline.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
