package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/chatmodel"
	"github.com/effective-security/toolgate/dispatch"
	"github.com/effective-security/toolgate/extract"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "session")

// Option modifies the Session.
type Option func(*Session)

// WithProvider sets the LLM collaborator used for the follow-up round.
// Without one, Respond dispatches tools and returns no follow-up.
func WithProvider(p Provider) Option {
	return func(s *Session) {
		s.provider = p
	}
}

// WithCallback sets the session lifecycle callback. It is also installed
// as the dispatch callback unless WithDispatcher supplied one.
func WithCallback(cb Callback) Option {
	return func(s *Session) {
		if cb != nil {
			s.callback = cb
		}
	}
}

// WithChatContext sets the conversation identity carried on every
// context passed to tools and callbacks.
func WithChatContext(chatCtx chatmodel.ChatContext) Option {
	return func(s *Session) {
		s.chatCtx = chatCtx
	}
}

// WithDispatcher replaces the session's dispatcher. The caller owns its
// configuration, callback included.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(s *Session) {
		s.dispatcher = d
	}
}

// WithDispatchOptions appends options for the dispatcher the session
// builds. Ignored when WithDispatcher is used.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(s *Session) {
		s.dispatchOpts = append(s.dispatchOpts, opts...)
	}
}

// Session drives one conversation: it extracts tool calls from assistant
// replies, dispatches them through a per-conversation cache, and runs at
// most one provider follow-up per turn. Sessions are not safe for
// concurrent use; each conversation owns its own.
type Session struct {
	reg        *registry.Registry
	chatCtx    chatmodel.ChatContext
	extractor  *extract.Extractor
	dispatcher *dispatch.Dispatcher
	provider   Provider
	callback   Callback

	dispatchOpts []dispatch.Option
}

// New creates a Session over the registry. The invocation cache lives in
// the session's dispatcher, never in package state.
func New(reg *registry.Registry, opts ...Option) *Session {
	s := &Session{
		reg:       reg,
		extractor: extract.NewExtractor(),
		callback:  noopCallback{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chatCtx == nil {
		s.chatCtx = chatmodel.NewChatContext(chatmodel.NewChatID(), nil)
	}
	if s.dispatcher == nil {
		dopts := append([]dispatch.Option{dispatch.WithCallback(s.callback)}, s.dispatchOpts...)
		s.dispatcher = dispatch.New(reg, dopts...)
	}
	return s
}

// ChatContext returns the conversation identity.
func (s *Session) ChatContext() chatmodel.ChatContext {
	return s.chatCtx
}

// Dispatcher returns the session's dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// ToolInstructions renders the prompt block declaring every registered
// tool, for the caller to place in the system prompt. It returns an
// empty string when the registry has no tools.
func (s *Session) ToolInstructions() string {
	var descs []*registry.ToolDescriptor
	for _, name := range s.reg.Names() {
		if d, _, ok := s.reg.Find(name); ok {
			descs = append(descs, d)
		}
	}
	return tools.Instructions(descs...)
}

// Turn is the outcome of one assistant reply processed by the session.
type Turn struct {
	// Invocations are the tool calls recovered from the reply text, in
	// extraction order.
	Invocations []*extract.PendingInvocation
	// Results align with Invocations.
	Results []*dispatch.Result
	// FollowUp is the provider's natural-language round over the
	// results, returned verbatim. Tool-call syntax inside it is never
	// extracted or dispatched.
	FollowUp string
}

var _ chatmodel.ContentProvider = (*Turn)(nil)

// Executed reports whether any tool ran this turn.
func (t *Turn) Executed() bool {
	return len(t.Results) > 0
}

// GetContent returns the text the conversation should continue with:
// the follow-up when the provider produced one, otherwise the raw tool
// outputs, one per line.
func (t *Turn) GetContent() string {
	if t.FollowUp != "" {
		return t.FollowUp
	}
	var parts []string
	for _, res := range t.Results {
		parts = append(parts, res.Content)
	}
	return strings.Join(parts, "\n")
}

// Respond processes one assistant reply: extract pending invocations,
// dispatch each through the cache, then give the provider exactly one
// follow-up opportunity over the results. The follow-up text is final —
// the session refuses to re-enter extraction for it, so a reply chain
// can never trigger more than one dispatch round per turn.
func (s *Session) Respond(ctx context.Context, assistantText string) (*Turn, error) {
	started := time.Now()
	defer metricskey.PerfSessionTurn.MeasureSince(started, s.providerName())

	ctx = chatmodel.WithChatContext(ctx, s.chatCtx)

	turn := &Turn{
		Invocations: s.extractor.Extract(ctx, assistantText, s.reg),
	}
	if len(turn.Invocations) == 0 {
		return turn, nil
	}
	s.callback.OnInvocationsExtracted(ctx, turn.Invocations)

	for _, inv := range turn.Invocations {
		turn.Results = append(turn.Results, s.dispatcher.Dispatch(ctx, inv))
	}

	if s.provider == nil {
		return turn, nil
	}

	followUp, err := s.provider.GenerateContent(ctx, followUpPrompt(assistantText, turn.Results))
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "follow_up_failed",
			"provider", s.providerName(),
			"err", err.Error(),
		)
		return turn, errors.WithMessage(err, "follow-up generation failed")
	}

	turn.FollowUp = followUp
	s.callback.OnFollowUp(ctx, followUp)

	logger.ContextKV(ctx, xlog.DEBUG,
		"chat_id", s.chatCtx.GetChatID(),
		"invocations", len(turn.Invocations),
		"follow_up_len", len(followUp),
	)
	return turn, nil
}

func (s *Session) providerName() string {
	if s.provider != nil {
		return s.provider.GetName()
	}
	return "none"
}

// followUpPrompt feeds the tool outcomes back to the model for one
// natural-language round.
func followUpPrompt(assistantText string, results []*dispatch.Result) string {
	var sb strings.Builder
	sb.WriteString("You previously replied:\n")
	sb.WriteString(assistantText)
	sb.WriteString("\n\nThe requested tool calls were executed with these results:\n")
	for _, res := range results {
		fmt.Fprintf(&sb, "Tool %s returned: %s\n", res.Tool, res.Content)
	}
	sb.WriteString("\nAnswer the user in natural language based on these results. Do not request any more tool calls.")
	return sb.String()
}
