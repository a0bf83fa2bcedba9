package discovery

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/probe"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "discovery")

// Request types selecting how the target server is reached.
const (
	TypeConfig = "config"
	TypeURL    = "url"
)

// ServerConfig describes a stream server to spawn.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command" validate:"required"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Request asks the engine to discover the tools of one server.
type Request struct {
	// Type selects the transport: "config" spawns a local process,
	// "url" probes a remote HTTP endpoint.
	Type     string        `json:"type" yaml:"type" validate:"required,oneof=config url"`
	ServerID string        `json:"server_id" yaml:"server_id" validate:"required"`
	Config   *ServerConfig `json:"config,omitempty" yaml:"config,omitempty" validate:"required_if=Type config"`
	URL      string        `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Type url,omitempty,url"`

	// Hint overrides the namespace hint used to rank candidate methods.
	// Empty derives one from the command or URL.
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

var validate = validator.New()

// Validate checks the request shape before any probing starts.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.WithMessage(err, "invalid discovery request")
	}
	if r.Type == TypeConfig && r.Config != nil && r.Config.Command == "" {
		return errors.New("invalid discovery request: config requires a command")
	}
	return nil
}

// server builds the registry identity the probers operate on.
func (r *Request) server() *registry.Server {
	srv := &registry.Server{ID: r.ServerID, Hint: r.Hint}
	switch r.Type {
	case TypeConfig:
		srv.Kind = registry.TransportStream
		srv.Command = r.Config.Command
		srv.Args = r.Config.Args
		srv.Env = r.Config.Env
		if srv.Hint == "" {
			srv.Hint = hintFromCommand(r.Config.Command, r.Config.Args)
		}
	case TypeURL:
		srv.Kind = registry.TransportHTTP
		srv.URL = r.URL
		if srv.Hint == "" {
			srv.Hint = probe.HintFromURL(r.URL)
		}
	}
	return srv
}

// hintFromCommand derives an identity hint from the spawned script name,
// falling back to the command itself: "python3 weather_server.py" hints
// "weather_server".
func hintFromCommand(command string, args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		base := filepath.Base(args[i])
		if strings.Contains(base, ".") && !strings.HasPrefix(base, "-") {
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return filepath.Base(command)
}

// Response carries the discovery outcome: the tool descriptors on
// success, or a single descriptive error string.
type Response struct {
	ServerID string                    `json:"server_id" yaml:"server_id"`
	Tools    []registry.ToolDescriptor `json:"tools,omitempty" yaml:"tools,omitempty"`
	Error    string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Prober resolves a server's tool listing over one transport.
type Prober interface {
	Probe(ctx context.Context, srv *registry.Server, candidates []string) ([]registry.ToolDescriptor, error)
}

// ProberFactory builds a prober per discovery attempt; attempts share
// nothing but the registry.
type ProberFactory func(opts ...probe.Option) Prober

// Option modifies the Service.
type Option func(*Service)

// WithRecordStore sets the durable backing for server and probe records.
func WithRecordStore(store registry.RecordStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithWellKnown merges extra hint aliases over the built-in table.
func WithWellKnown(aliases map[string]string) Option {
	return func(s *Service) {
		s.ranker = probe.NewRanker(aliases)
	}
}

// WithProbeOptions sets options applied to every prober.
func WithProbeOptions(opts ...probe.Option) Option {
	return func(s *Service) {
		s.popts = append(s.popts, opts...)
	}
}

// WithCallback sets the probing lifecycle callback.
func WithCallback(cb probe.Callback) Option {
	return func(s *Service) {
		s.cb = cb
	}
}

// WithStreamProber overrides how stream probers are built.
func WithStreamProber(f ProberFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.newStreamProber = f
		}
	}
}

// WithHTTPProber overrides how HTTP probers are built.
func WithHTTPProber(f ProberFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.newHTTPProber = f
		}
	}
}

// Service is the external interface of the engine: it turns a discovery
// request into a populated registry entry. Independent servers may be
// discovered concurrently; each call owns its prober instance and shares
// nothing but the registry and the record store.
type Service struct {
	reg    *registry.Registry
	ranker *probe.Ranker
	store  registry.RecordStore
	cb     probe.Callback
	popts  []probe.Option

	newStreamProber ProberFactory
	newHTTPProber   ProberFactory
}

// New creates a discovery Service over the registry.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		reg:    reg,
		ranker: probe.NewRanker(nil),
		newStreamProber: func(opts ...probe.Option) Prober {
			return probe.NewStreamProber(opts...)
		},
		newHTTPProber: func(opts ...probe.Option) Prober {
			return probe.NewHTTPProber(opts...)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry this service populates.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// Discover probes the requested server for its tool listing. On success
// the registry is populated exactly once for that server and, when a
// record store is configured, the server and an audit record persist.
// Failures come back as a single descriptive string, never a panic.
func (s *Service) Discover(ctx context.Context, req *Request) *Response {
	res := &Response{ServerID: req.ServerID}
	if err := req.Validate(); err != nil {
		res.Error = err.Error()
		return res
	}

	srv := req.server()
	candidates := s.ranker.Rank(srv.Hint)

	metricskey.StatsDiscoveryStarted.IncrCounter(1, srv.ID, string(srv.Kind))
	started := time.Now()
	defer metricskey.PerfDiscovery.MeasureSince(started, srv.ID)

	rec := &attemptRecorder{next: s.cb}
	popts := append(append([]probe.Option{}, s.popts...), probe.WithCallback(rec))

	var prober Prober
	if srv.Kind == registry.TransportStream {
		prober = s.newStreamProber(popts...)
	} else {
		prober = s.newHTTPProber(popts...)
	}

	tools, err := prober.Probe(ctx, srv, candidates)
	s.appendRecord(ctx, srv, rec, len(tools), err)

	if err != nil {
		metricskey.StatsDiscoveryFailed.IncrCounter(1, srv.ID, string(srv.Kind))
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "discovery_failed",
			"server", srv.ID,
			"kind", srv.Kind,
			"attempts", rec.count(),
			"err", err.Error(),
		)
		res.Error = err.Error()
		return res
	}

	if rerr := s.reg.Register(srv, tools); rerr != nil {
		metricskey.StatsDiscoveryFailed.IncrCounter(1, srv.ID, string(srv.Kind))
		res.Error = rerr.Error()
		return res
	}
	if s.store != nil {
		saved := *srv
		saved.Tools = tools
		if serr := s.store.SaveServer(ctx, &saved); serr != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "failed_to_save_server",
				"server", srv.ID,
				"err", serr.Error(),
			)
		}
	}

	metricskey.StatsDiscoverySucceeded.IncrCounter(1, srv.ID, string(srv.Kind))
	logger.ContextKV(ctx, xlog.INFO,
		"status", "discovered",
		"server", srv.ID,
		"kind", srv.Kind,
		"method", rec.resolvedMethod(),
		"attempts", rec.count(),
		"tools", len(tools),
	)

	res.Tools = tools
	return res
}

func (s *Service) appendRecord(ctx context.Context, srv *registry.Server, rec *attemptRecorder, tools int, err error) {
	if s.store == nil {
		return
	}
	record := &registry.ProbeRecord{
		ServerID: srv.ID,
		Method:   rec.resolvedMethod(),
		Attempts: rec.count(),
		Tools:    tools,
		At:       time.Now().UTC(),
	}
	if err != nil {
		record.Err = err.Error()
	}
	if serr := s.store.AppendProbeRecord(ctx, record); serr != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "failed_to_append_probe_record",
			"server", srv.ID,
			"err", serr.Error(),
		)
	}
}

// attemptRecorder observes probing to know how many candidates were sent
// and which one resolved, forwarding every event to the configured
// callback.
type attemptRecorder struct {
	next probe.Callback

	mu       sync.Mutex
	attempts int
	last     string
	resolved bool
}

func (r *attemptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// resolvedMethod returns the method that produced the listing, or empty
// when the probe failed.
func (r *attemptRecorder) resolvedMethod() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolved {
		return ""
	}
	return r.last
}

func (r *attemptRecorder) OnProbeStart(ctx context.Context, serverID, transport string) {
	if r.next != nil {
		r.next.OnProbeStart(ctx, serverID, transport)
	}
}

func (r *attemptRecorder) OnMethodAttempt(ctx context.Context, serverID, method string, index int) {
	r.mu.Lock()
	r.attempts++
	r.last = method
	r.mu.Unlock()
	if r.next != nil {
		r.next.OnMethodAttempt(ctx, serverID, method, index)
	}
}

func (r *attemptRecorder) OnMethodRejected(ctx context.Context, serverID, method string) {
	if r.next != nil {
		r.next.OnMethodRejected(ctx, serverID, method)
	}
}

func (r *attemptRecorder) OnProbeResolved(ctx context.Context, serverID string, tools int) {
	r.mu.Lock()
	r.resolved = true
	r.mu.Unlock()
	if r.next != nil {
		r.next.OnProbeResolved(ctx, serverID, tools)
	}
}

func (r *attemptRecorder) OnProbeFailed(ctx context.Context, serverID string, err error) {
	if r.next != nil {
		r.next.OnProbeFailed(ctx, serverID, err)
	}
}
