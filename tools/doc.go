// Package tools defines the Tool interface for LLM agents, including parameter schema and the adapter for tools discovered on remote agent servers. Tools enable agents to interact with external systems and APIs in a structured, extensible way.
package tools
