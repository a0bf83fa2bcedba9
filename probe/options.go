package probe

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultResponseTimeout bounds an entire stream probe attempt.
	DefaultResponseTimeout = 20 * time.Second
	// DefaultAttemptTimeout bounds a single HTTP candidate request.
	DefaultAttemptTimeout = 10 * time.Second
	// DefaultTotalBudget caps elapsed time across all HTTP candidates.
	DefaultTotalBudget = 30 * time.Second
	// DefaultSniffTimeout bounds the HTTP content pre-check.
	DefaultSniffTimeout = 5 * time.Second
)

// Option is a function that can be used to modify the prober Config.
type Option func(*Config)

// Config controls probing behavior.
type Config struct {
	// ResponseTimeout is the wall-clock deadline for a whole stream probe.
	ResponseTimeout time.Duration

	// AttemptTimeout bounds one HTTP candidate request.
	AttemptTimeout time.Duration

	// TotalBudget caps elapsed HTTP probing time across all candidates;
	// the cascade terminates early once exceeded, even mid-flight.
	TotalBudget time.Duration

	// SniffTimeout bounds the HTTP content-type pre-check.
	SniffTimeout time.Duration

	// HTTPClient overrides the client used for HTTP probing.
	HTTPClient *http.Client

	// Callback receives probing lifecycle events.
	Callback Callback
}

// NewConfig returns a Config with defaults applied, then modified by opts.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		ResponseTimeout: DefaultResponseTimeout,
		AttemptTimeout:  DefaultAttemptTimeout,
		TotalBudget:     DefaultTotalBudget,
		SniffTimeout:    DefaultSniffTimeout,
		Callback:        noopCallback{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithResponseTimeout sets the stream probe deadline.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *Config) {
		o.ResponseTimeout = d
	}
}

// WithAttemptTimeout sets the per-candidate HTTP timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Config) {
		o.AttemptTimeout = d
	}
}

// WithTotalBudget sets the cap on total elapsed HTTP probing time.
func WithTotalBudget(d time.Duration) Option {
	return func(o *Config) {
		o.TotalBudget = d
	}
}

// WithSniffTimeout sets the HTTP pre-check timeout.
func WithSniffTimeout(d time.Duration) Option {
	return func(o *Config) {
		o.SniffTimeout = d
	}
}

// WithHTTPClient sets the client used for HTTP probing.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Config) {
		o.HTTPClient = client
	}
}

// WithCallback sets the probing lifecycle callback.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		if cb != nil {
			o.Callback = cb
		}
	}
}

// Callback receives probing lifecycle events.
type Callback interface {
	// OnProbeStart fires once per probe attempt.
	OnProbeStart(ctx context.Context, serverID, transport string)
	// OnMethodAttempt fires before each candidate request, with its rank.
	OnMethodAttempt(ctx context.Context, serverID, method string, index int)
	// OnMethodRejected fires when a server declines a candidate method.
	OnMethodRejected(ctx context.Context, serverID, method string)
	// OnProbeResolved fires on success with the discovered tool count.
	OnProbeResolved(ctx context.Context, serverID string, tools int)
	// OnProbeFailed fires on terminal failure.
	OnProbeFailed(ctx context.Context, serverID string, err error)
}

type noopCallback struct{}

func (noopCallback) OnProbeStart(ctx context.Context, serverID, transport string)            {}
func (noopCallback) OnMethodAttempt(ctx context.Context, serverID, method string, index int) {}
func (noopCallback) OnMethodRejected(ctx context.Context, serverID, method string)           {}
func (noopCallback) OnProbeResolved(ctx context.Context, serverID string, tools int)         {}
func (noopCallback) OnProbeFailed(ctx context.Context, serverID string, err error)           {}
