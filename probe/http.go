package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

const (
	// sniffLimit bounds the body preview read during the pre-check.
	sniffLimit = 512
	// responseLimit bounds a candidate response body.
	responseLimit = 1 << 20
	// previewLimit bounds the body excerpt attached to errors.
	previewLimit = 256
)

// HTTPProber negotiates the tool-listing method of a remote JSON-RPC
// endpoint. A cheap content sniff runs first so that an HTML page or a
// static file server is rejected before any candidate budget is spent.
type HTTPProber struct {
	cfg    *Config
	client *http.Client
}

// NewHTTPProber returns an HTTP prober with the given options applied.
func NewHTTPProber(opts ...Option) *HTTPProber {
	cfg := NewConfig(opts...)
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{cfg: cfg, client: client}
}

// Probe issues one POST per candidate method, each with a unique
// correlation id and a per-attempt timeout, until one yields a list-shaped
// result. HTML anywhere in the cascade is decisive: the target is not an
// agent server and remaining candidates are not tried. Other failures are
// recorded and the cascade continues; exhaustion reports the last one.
func (p *HTTPProber) Probe(ctx context.Context, srv *registry.Server, candidates []string) ([]registry.ToolDescriptor, error) {
	cb := p.cfg.Callback
	cb.OnProbeStart(ctx, srv.ID, string(registry.TransportHTTP))

	fail := func(err error) ([]registry.ToolDescriptor, error) {
		cb.OnProbeFailed(ctx, srv.ID, err)
		return nil, err
	}

	if err := p.sniff(ctx, srv.URL); err != nil {
		return fail(err)
	}

	started := time.Now()
	var lastErr error
	var lastMethod string
	for i, method := range candidates {
		remaining := p.cfg.TotalBudget - time.Since(started)
		if remaining <= 0 {
			return fail((&Error{Kind: KindResponseTimeout, Method: lastMethod}).WithCause(lastErr))
		}
		lastMethod = method

		cb.OnMethodAttempt(ctx, srv.ID, method, i)
		metricskey.StatsProbeMethodAttempts.IncrCounter(1, srv.ID, method)

		tools, found, err := p.attempt(ctx, srv, method, min(remaining, p.cfg.AttemptTimeout))
		if found {
			cb.OnProbeResolved(ctx, srv.ID, len(tools))
			return tools, nil
		}
		if err != nil {
			if KindOf(err) == KindNotAnAgentServer {
				return fail(err)
			}
			logger.ContextKV(ctx, xlog.DEBUG,
				"server", srv.ID,
				"method", method,
				"err", err.Error(),
			)
			lastErr = err
			continue
		}
		cb.OnMethodRejected(ctx, srv.ID, method)
		metricskey.StatsProbeMethodsRejected.IncrCounter(1, srv.ID, method)
	}

	if lastErr != nil {
		return fail(lastErr)
	}
	return fail(&Error{Kind: KindMethodsExhausted, Method: lastMethod})
}

// attempt issues one candidate request. found reports a decoded tool list;
// a nil error with found false means the method was rejected or the reply
// was unrelated, and the cascade should continue.
func (p *HTTPProber) attempt(ctx context.Context, srv *registry.Server, method string, timeout time.Duration) (_ []registry.ToolDescriptor, found bool, _ error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.NewString()
	data, err := json.Marshal(wire.NewRequest(id, method, nil))
	if err != nil {
		return nil, false, errors.WithMessagef(err, "failed to encode request %q", method)
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, srv.URL, bytes.NewReader(data))
	if err != nil {
		return nil, false, errors.WithMessage(err, "invalid server URL")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "request %q failed", method)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return nil, false, errors.WithMessagef(err, "failed to read response for %q", method)
	}

	// HTML mid-cascade is decisive, not transient.
	if isHTMLContentType(resp.Header.Get("Content-Type")) || looksLikeHTML(body) {
		return nil, false, &Error{
			Kind:    KindNotAnAgentServer,
			Method:  method,
			Preview: preview(body),
		}
	}

	doc, complete := wire.ExtractDocument(body)
	if !complete {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, false, &Error{
				Kind:    KindHTTPStatus,
				Method:  method,
				Status:  resp.StatusCode,
				Preview: preview(body),
			}
		}
		return nil, false, &Error{
			Kind:    KindMalformedResponse,
			Method:  method,
			Preview: preview(body),
		}
	}

	if doc.ID != nil && !wire.SameID(doc.ID, id) {
		logger.ContextKV(ctx, xlog.DEBUG,
			"server", srv.ID,
			"method", method,
			"reason", "correlation id mismatch",
		)
		return nil, false, nil
	}

	switch {
	case doc.IsMethodNotFound():
		return nil, false, nil
	case doc.HasResult():
		tools, listShaped, derr := wire.DecodeToolList(doc.Result)
		if listShaped && derr == nil {
			return tools, true, nil
		}
		if listShaped {
			return nil, false, (&Error{
				Kind:    KindMalformedResponse,
				Method:  method,
				Preview: preview(body),
			}).WithCause(derr)
		}
	}
	// Well-formed but unrelated document: implicit try-next.
	return nil, false, nil
}

// sniff performs the cheap pre-check: a short GET whose declared content
// type, body prefix, or server identity betrays a plain web server.
// Reachability problems are not decisive here; they surface with proper
// classification in the main loop.
func (p *HTTPProber) sniff(ctx context.Context, rawURL string) error {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.SniffTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.WithMessage(err, "invalid server URL")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "sniff failed", "err", err.Error())
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, sniffLimit))
	if isHTMLContentType(resp.Header.Get("Content-Type")) ||
		looksLikeHTML(body) ||
		isStaticServerIdentity(resp.Header.Get("Server"), body) {
		return &Error{Kind: KindNotAnAgentServer, Preview: preview(body)}
	}
	return nil
}

// htmlMarkers are document prefixes that identify plain web content.
var htmlMarkers = []string{"<!doctype", "<html", "<head", "<body"}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(bytes.TrimSpace(body)))
	for _, m := range htmlMarkers {
		if strings.HasPrefix(head, m) {
			return true
		}
	}
	return false
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// staticServerIdentities are Server headers of generic static file
// servers.
var staticServerIdentities = []string{"simplehttp", "nginx", "apache", "caddy"}

// isStaticServerIdentity flags a static-file-server identity. nginx,
// apache and caddy also front real APIs as reverse proxies, so the
// identity alone is not decisive: it only rejects when the body is not
// JSON either.
func isStaticServerIdentity(server string, body []byte) bool {
	server = strings.ToLower(server)
	for _, id := range staticServerIdentities {
		if strings.Contains(server, id) {
			return !looksLikeJSON(body)
		}
	}
	return false
}

func looksLikeJSON(body []byte) bool {
	head := bytes.TrimSpace(body)
	return len(head) > 0 && (head[0] == '{' || head[0] == '[')
}

func preview(body []byte) string {
	return slices.StringUpto(strings.TrimSpace(string(body)), previewLimit)
}
