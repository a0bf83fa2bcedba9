// Package transport issues tool invocations against discovered agent
// servers. A Caller hides the transport kind behind a uniform JSON-RPC
// call: stream servers are spawned per call and taken through the
// initialize handshake, HTTP servers receive the envelope as a POST.
package transport
