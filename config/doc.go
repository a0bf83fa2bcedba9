// Package config loads the engine configuration: probing deadlines,
// extra well-known method aliases, and the optional Redis record store.
package config
