// Package extract recovers tool invocation requests from model reply
// text. Recognition runs as a cascade of tiers in strict priority
// order: structured JSON-RPC envelopes, positional function calls,
// explicit "Using tool:" phrases, and a small fixed set of domain
// intents. The first tier that recognizes anything wins outright;
// lower tiers never run against the same reply.
package extract
