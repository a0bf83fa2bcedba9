package session

import (
	"context"

	"github.com/effective-security/toolgate/dispatch"
	"github.com/effective-security/toolgate/extract"
	"github.com/effective-security/toolgate/tools"
)

// Callback receives session lifecycle events on top of the dispatch ones.
type Callback interface {
	dispatch.Callback
	// OnInvocationsExtracted fires once per turn when the reply text
	// yielded tool calls, before any dispatch.
	OnInvocationsExtracted(ctx context.Context, invocations []*extract.PendingInvocation)
	// OnFollowUp fires with the provider's follow-up text.
	OnFollowUp(ctx context.Context, text string)
}

type noopCallback struct{}

func (noopCallback) OnToolStart(ctx context.Context, tool tools.ITool, input string)            {}
func (noopCallback) OnToolEnd(ctx context.Context, tool tools.ITool, input, output string)      {}
func (noopCallback) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {}
func (noopCallback) OnToolNotFound(ctx context.Context, toolName string)                        {}
func (noopCallback) OnToolCached(ctx context.Context, toolName, fingerprint string)             {}
func (noopCallback) OnInvocationsExtracted(ctx context.Context, invocations []*extract.PendingInvocation) {
}
func (noopCallback) OnFollowUp(ctx context.Context, text string) {}
