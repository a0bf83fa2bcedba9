package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/transport"
	"github.com/effective-security/toolgate/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callServer(url string) *registry.Server {
	return &registry.Server{
		ID:   "test-server",
		Kind: registry.TransportHTTP,
		URL:  url,
	}
}

func Test_HTTPCall_RoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "tools/call", req["method"])
		params := req["params"].(map[string]any)
		assert.Equal(t, "get_forecast", params["name"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%q,"result":{"content":[{"type":"text","text":"Sunny, 24C"}]}}`, req["id"])
	}))
	defer ts.Close()

	c := transport.NewHTTPCaller(callServer(ts.URL))
	raw, err := c.Call(context.Background(), wire.MethodToolsCall, &wire.CallParams{
		Name:      "get_forecast",
		Arguments: map[string]any{"latitude": 48.85, "longitude": 2.35},
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	res, err := wire.DecodeCallResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sunny, 24C", res.Text())
}

func Test_HTTPCall_RPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%q,"error":{"code":-32602,"message":"missing required parameter: state"}}`, req["id"])
	}))
	defer ts.Close()

	c := transport.NewHTTPCaller(callServer(ts.URL))
	_, err := c.Call(context.Background(), wire.MethodToolsCall, &wire.CallParams{Name: "get_alerts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required parameter")

	var rpcErr *wire.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}

func Test_HTTPCall_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream unavailable")
	}))
	defer ts.Close()

	c := transport.NewHTTPCaller(callServer(ts.URL))
	_, err := c.Call(context.Background(), wire.MethodToolsCall, &wire.CallParams{Name: "get_alerts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func Test_HTTPCall_IDMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":"stale-id","result":{"content":[]}}`)
	}))
	defer ts.Close()

	c := transport.NewHTTPCaller(callServer(ts.URL))
	_, err := c.Call(context.Background(), wire.MethodToolsCall, &wire.CallParams{Name: "get_alerts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "correlation id mismatch")
}

func Test_HTTPCall_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	c := transport.NewHTTPCaller(callServer(ts.URL), transport.WithCallTimeout(150*time.Millisecond))
	started := time.Now()
	_, err := c.Call(context.Background(), wire.MethodToolsCall, &wire.CallParams{Name: "get_alerts"})
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func Test_New(t *testing.T) {
	c, err := transport.New(&registry.Server{ID: "s1", Kind: registry.TransportStream, Command: "/bin/echo"})
	require.NoError(t, err)
	_, ok := c.(*transport.StreamCaller)
	assert.True(t, ok)
	require.NoError(t, c.Close())

	c, err = transport.New(&registry.Server{ID: "s2", Kind: registry.TransportHTTP, URL: "http://127.0.0.1:9/"})
	require.NoError(t, err)
	_, ok = c.(*transport.HTTPCaller)
	assert.True(t, ok)
	require.NoError(t, c.Close())

	_, err = transport.New(&registry.Server{ID: "s3", Kind: "carrier-pigeon"})
	require.Error(t, err)
}
