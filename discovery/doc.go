// Package discovery exposes the engine's entry point: it validates a discovery request, probes the target server over the right transport, and populates the tool registry with whatever the server advertises.
package discovery
