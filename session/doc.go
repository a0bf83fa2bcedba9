// Package session ties the engine together for one conversation: it extracts tool calls from assistant replies, dispatches them with caching and deduplication, and bounds automatic follow-up to a single round so tool output can never chain further invocations.
package session
