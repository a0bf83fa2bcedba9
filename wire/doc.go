// Package wire defines the JSON-RPC 2.0 envelope spoken by agent-tool
// servers, and the interpretation of the documents they return: the
// tool-list shape, the method-not-found error code, tool-call results
// with content blocks, and the tool-call envelope embedded in LLM text.
// Probers and invocation transports share these types so a document is
// interpreted the same way regardless of how it arrived.
package wire
