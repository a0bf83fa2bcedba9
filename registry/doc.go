// Package registry holds the tool descriptors discovered from agent-tool
// servers. A Registry maps a server identity to the immutable descriptor
// list returned by its discovery probe; re-discovery replaces a server's
// descriptors wholesale. The package also provides a RecordStore for
// durable server/tool records backed by Redis, and JSON Schema rendering
// of descriptors for prompt and UI surfaces.
package registry
