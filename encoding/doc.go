// Package encoding carries the JSON conventions of the engine: canonical
// serialization for invocation fingerprints, lenient decoding of
// LLM-emitted documents, and example-argument rendering for prompt
// instructions.
package encoding
