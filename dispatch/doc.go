// Package dispatch executes pending tool invocations against their owning servers, with a per-conversation invocation cache that guarantees at most one execution per unique fingerprint. Failures are converted into results the conversation can continue with, never escaping errors.
package dispatch
