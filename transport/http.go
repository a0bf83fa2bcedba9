package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	"github.com/effective-security/x/slices"
	"github.com/google/uuid"
)

// responseLimit bounds a call response body.
const responseLimit = 10 << 20

// HTTPCaller invokes tools on a remote endpoint, one POST per call with a
// unique correlation id.
type HTTPCaller struct {
	srv    *registry.Server
	cfg    *Config
	client *http.Client
}

// NewHTTPCaller returns an HTTP caller for the given server.
func NewHTTPCaller(srv *registry.Server, opts ...Option) *HTTPCaller {
	cfg := NewConfig(opts...)
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPCaller{srv: srv, cfg: cfg, client: client}
}

// Call POSTs the envelope and matches the reply by correlation id.
func (c *HTTPCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	id := uuid.NewString()
	data, err := json.Marshal(wire.NewRequest(id, method, params))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.srv.URL, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "invalid server URL")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hres, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s failed", method)
	}
	defer func() {
		_ = hres.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(hres.Body, responseLimit))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read %s response", method)
	}
	if hres.StatusCode < 200 || hres.StatusCode >= 300 {
		return nil, errors.Newf("%s returned status %d: %s",
			method, hres.StatusCode, slices.StringUpto(string(body), 256))
	}

	var resp wire.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s response", method)
	}
	if resp.ID != nil && !wire.SameID(resp.ID, id) {
		return nil, errors.Newf("correlation id mismatch in %s response", method)
	}
	if resp.Error != nil {
		return nil, errors.WithMessagef(resp.Error, "%s rejected", method)
	}
	return resp.Result, nil
}

// Close is a no-op: the HTTP client manages its own connections.
func (c *HTTPCaller) Close() error {
	return nil
}
