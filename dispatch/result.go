package dispatch

import "github.com/effective-security/toolgate/chatmodel"

// Failure classifies why a dispatch did not produce a tool output.
type Failure string

const (
	// FailureNone marks a successful dispatch.
	FailureNone Failure = ""
	// FailureToolNotFound means no registered server owns the tool name.
	FailureToolNotFound Failure = "tool_not_found"
	// FailureParameterValidation means the supplied arguments did not
	// satisfy the tool's declared parameter schema. The server was not
	// contacted.
	FailureParameterValidation Failure = "parameter_validation"
	// FailureExecutionError means the tool was invoked and the transport
	// or the tool itself failed.
	FailureExecutionError Failure = "execution_error"
)

// Result is the outcome of dispatching one invocation. Failures are
// carried in Content as a message the conversation can continue with;
// a dispatch never aborts the caller.
type Result struct {
	// InvocationID is the ID of the invocation this result answers.
	// A reused outcome carries the requester's ID, not the executor's.
	InvocationID string  `json:"invocation_id" yaml:"invocation_id"`
	Tool         string  `json:"tool" yaml:"tool"`
	Fingerprint  string  `json:"fingerprint" yaml:"fingerprint"`
	Failure      Failure `json:"failure,omitempty" yaml:"failure,omitempty"`

	// Content is the flattened tool output on success, or a descriptive
	// message on failure.
	Content string `json:"content" yaml:"content"`

	// Source reports whether this call executed the tool, reused a
	// completed cache entry, or awaited an in-flight execution.
	Source Source `json:"-" yaml:"-"`
}

var _ chatmodel.ContentProvider = (*Result)(nil)

// OK reports whether the tool produced an output.
func (r *Result) OK() bool {
	return r.Failure == FailureNone
}

// GetContent implements chatmodel.ContentProvider.
func (r *Result) GetContent() string {
	return r.Content
}
