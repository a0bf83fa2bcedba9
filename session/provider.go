package session

import "context"

//go:generate mockgen -source=provider.go -destination=../mocks/mocksession/session_mock.gen.go  -package mocksession

// Provider is the LLM collaborator a session uses for the follow-up
// round. The engine treats it as opaque: prompts in, text out.
type Provider interface {
	// GetName identifies the provider in logs and metrics.
	GetName() string

	// GenerateContent returns the model's reply for a prompt.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
