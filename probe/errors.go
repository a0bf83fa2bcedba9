package probe

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies a discovery failure.
type Kind string

const (
	// KindUnknown is returned by KindOf for errors that carry no classification.
	KindUnknown Kind = ""
	// KindSpawnFailure reports that the server process could not be started,
	// for example a missing executable or a permission problem.
	KindSpawnFailure Kind = "spawn_failure"
	// KindStreamUnavailable reports that the spawned process does not expose
	// usable input and output streams.
	KindStreamUnavailable Kind = "stream_unavailable"
	// KindMethodNotSupported reports a method-not-found reply. It is always
	// recovered locally by advancing to the next candidate and is never
	// returned from a prober; it exists for callbacks and logging.
	KindMethodNotSupported Kind = "method_not_supported"
	// KindMethodsExhausted reports that every candidate method was rejected.
	KindMethodsExhausted Kind = "methods_exhausted"
	// KindResponseTimeout reports that no candidate produced a decision
	// before the probe deadline.
	KindResponseTimeout Kind = "response_timeout"
	// KindProcessExited reports that the server process exited before any
	// candidate succeeded.
	KindProcessExited Kind = "process_exited"
	// KindNotAnAgentServer reports an endpoint serving plain web content,
	// such as an HTML page or a static file listing.
	KindNotAnAgentServer Kind = "not_an_agent_server"
	// KindHTTPStatus reports a non-success HTTP status with no usable body.
	KindHTTPStatus Kind = "http_status"
	// KindMalformedResponse reports a reply that looked like a tool list but
	// could not be decoded.
	KindMalformedResponse Kind = "malformed_response"
)

// Error is a classified discovery failure. The message carries enough
// context to diagnose a misconfigured or incompatible server; programmatic
// callers should branch on Kind via KindOf rather than parse the message.
type Error struct {
	Kind Kind
	// Method is the candidate in flight when the failure occurred, if any.
	Method string
	// ExitCode is the process exit code for KindProcessExited, -1 when the
	// process was signaled or the code is unknown.
	ExitCode int
	// Status is the HTTP status code for KindHTTPStatus.
	Status int
	// Stderr is a bounded tail of the captured standard error output.
	Stderr string
	// Preview is a bounded prefix of the offending response body.
	Preview string

	cause error
}

func (e *Error) Error() string {
	var parts []string
	switch e.Kind {
	case KindSpawnFailure:
		parts = append(parts, "failed to spawn server process")
	case KindStreamUnavailable:
		parts = append(parts, "server process streams unavailable")
	case KindMethodsExhausted:
		parts = append(parts, "no candidate method was accepted")
	case KindResponseTimeout:
		parts = append(parts, "no usable response before deadline")
	case KindProcessExited:
		parts = append(parts, fmt.Sprintf("server process exited with code %d", e.ExitCode))
	case KindNotAnAgentServer:
		parts = append(parts, "endpoint does not appear to be an agent server")
	case KindHTTPStatus:
		parts = append(parts, fmt.Sprintf("unexpected HTTP status %d", e.Status))
	case KindMalformedResponse:
		parts = append(parts, "tool list response could not be decoded")
	default:
		parts = append(parts, string(e.Kind))
	}
	if e.Method != "" {
		parts = append(parts, fmt.Sprintf("last method %q", e.Method))
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	if e.Stderr != "" {
		parts = append(parts, "stderr: "+e.Stderr)
	}
	if e.Preview != "" {
		parts = append(parts, "body: "+e.Preview)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error and returns e.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// KindOf returns the classification of err, or KindUnknown when err does not
// carry one anywhere in its chain.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
