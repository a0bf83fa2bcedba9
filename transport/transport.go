package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "transport")

// DefaultCallTimeout bounds a single call, handshake included.
const DefaultCallTimeout = 60 * time.Second

//go:generate mockgen -source=transport.go -destination=../mocks/mocktransport/transport_mock.gen.go  -package mocktransport

// Caller issues JSON-RPC calls against one agent server.
type Caller interface {
	// Call issues a single method call and returns the raw result payload.
	// A server-side error response is returned as an error carrying the
	// decoded RPC error.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Close releases any resources held by the caller.
	Close() error
}

// Config carries transport tuning.
type Config struct {
	CallTimeout time.Duration
	HTTPClient  *http.Client
}

// Option configures a Caller.
type Option func(*Config)

// NewConfig creates a new Config with default values and applies options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		CallTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithCallTimeout bounds each call end to end, handshake included.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CallTimeout = d
	}
}

// WithHTTPClient sets the HTTP client used by HTTP callers.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// New returns a Caller for the server's transport kind.
func New(srv *registry.Server, opts ...Option) (Caller, error) {
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	switch srv.Kind {
	case registry.TransportStream:
		return NewStreamCaller(srv, opts...), nil
	case registry.TransportHTTP:
		return NewHTTPCaller(srv, opts...), nil
	default:
		return nil, errors.Newf("unsupported transport kind: %s", srv.Kind)
	}
}
