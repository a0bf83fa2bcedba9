// Package probe discovers the tool inventory of external agent servers.
// It ranks candidate listing methods, negotiates them one at a time over a
// spawned process stream or an HTTP endpoint, and classifies every failure
// so callers can tell an unreachable server from one that is not an agent
// server at all.
package probe
