package wire

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version spoken by agent-tool servers.
const Version = "2.0"

// ProtocolVersion is the agent-server protocol revision sent in the
// initialize handshake.
const ProtocolVersion = "2024-11-05"

// Method names with fixed meaning on the wire.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"

	// MethodExecuteTool is the method of the tool-call envelope embedded
	// in LLM reply text. It never travels to a server.
	MethodExecuteTool = "execute_tool"

	NotificationInitialized = "notifications/initialized"
)

// CodeMethodNotFound is the JSON-RPC error code a compliant server
// returns for an unsupported method. It is the only signal that advances
// the candidate cascade.
const CodeMethodNotFound = -32601

// Request is a JSON-RPC 2.0 request message. IDs may be numeric or
// string correlation tokens depending on the transport.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest creates a JSON-RPC 2.0 request with the given method and params.
func NewRequest(id any, method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Encode marshals the request followed by a newline delimiter, the
// framing used on stream transports.
func (r *Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification creates a JSON-RPC 2.0 notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Encode marshals the notification followed by a newline delimiter.
func (n *Notification) Encode() ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Response is a JSON-RPC 2.0 response message. Exactly one of Result or
// Error is set in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsMethodNotFound reports whether the response carries the fixed
// method-not-found error code.
func (r *Response) IsMethodNotFound() bool {
	return r.Error != nil && r.Error.Code == CodeMethodNotFound
}

// HasResult reports whether the response carries a non-empty result.
func (r *Response) HasResult() bool {
	return len(r.Result) > 0 && r.Error == nil
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for RPCError.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// SameID reports whether a decoded response id refers to the request id.
// JSON numbers decode as float64, so numeric ids compare by value.
func SameID(got, want any) bool {
	if got == nil || want == nil {
		return false
	}
	if g, ok := got.(float64); ok {
		switch w := want.(type) {
		case int:
			return g == float64(w)
		case int64:
			return g == float64(w)
		case uint64:
			return g == float64(w)
		case float64:
			return g == w
		}
	}
	if g, ok := got.(string); ok {
		w, ok := want.(string)
		return ok && g == w
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// ClientInfo identifies this client in the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is sent to a stream server before invoking tools.
// Discovery probes skip the handshake on purpose: a probe must tolerate
// servers that do not implement it.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// NewInitializeParams returns the handshake params for this client.
func NewInitializeParams() *InitializeParams {
	return &InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: ClientInfo{
			Name:    "toolgate",
			Version: "1.0.0",
		},
	}
}

// CallParams is the params payload of a tools/call request.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
