package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/chatmodel"
	"github.com/effective-security/toolgate/extract"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/transport"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "dispatch")

// CallerFactory builds a transport caller for a discovered server.
type CallerFactory func(srv *registry.Server, opts ...transport.Option) (transport.Caller, error)

// Callback receives dispatch lifecycle events.
type Callback interface {
	tools.Callback
	// OnToolNotFound fires when no server or local tool owns the name.
	OnToolNotFound(ctx context.Context, toolName string)
	// OnToolCached fires when a dispatch reuses a completed or in-flight
	// outcome instead of invoking the tool.
	OnToolCached(ctx context.Context, toolName, fingerprint string)
}

type noopCallback struct{}

func (noopCallback) OnToolStart(ctx context.Context, tool tools.ITool, input string)           {}
func (noopCallback) OnToolEnd(ctx context.Context, tool tools.ITool, input, output string)     {}
func (noopCallback) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {}
func (noopCallback) OnToolNotFound(ctx context.Context, toolName string)                       {}
func (noopCallback) OnToolCached(ctx context.Context, toolName, fingerprint string)            {}

// Option modifies the Dispatcher.
type Option func(*Dispatcher)

// WithCallback sets the dispatch lifecycle callback.
func WithCallback(cb Callback) Option {
	return func(d *Dispatcher) {
		if cb != nil {
			d.callback = cb
		}
	}
}

// WithCallerFactory overrides how transport callers are built.
func WithCallerFactory(f CallerFactory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.newCaller = f
		}
	}
}

// WithTransportOptions sets options applied to every transport caller.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(d *Dispatcher) {
		d.tropts = append(d.tropts, opts...)
	}
}

// WithLocalTools registers in-process tools callable alongside discovered
// ones. A local tool owns its name: a discovered tool with the same name
// is shadowed.
func WithLocalTools(list ...tools.ITool) Option {
	return func(d *Dispatcher) {
		for _, t := range list {
			name := strings.ToLower(t.Name())
			if _, ok := d.local[name]; !ok {
				d.localNames = append(d.localNames, t.Name())
			}
			d.local[name] = t
		}
	}
}

// Dispatcher resolves pending invocations against the registry and the
// per-conversation invocation cache. Failures never escape: every
// dispatch yields a Result whose content the conversation can continue
// with.
type Dispatcher struct {
	reg        *registry.Registry
	cache      *Cache
	local      map[string]tools.ITool
	localNames []string
	newCaller  CallerFactory
	tropts     []transport.Option
	callback   Callback
}

// New creates a Dispatcher over the registry with a fresh cache.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		cache:     NewCache(),
		local:     map[string]tools.ITool{},
		newCaller: transport.New,
		callback:  noopCallback{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cache exposes the dispatcher's invocation cache.
func (d *Dispatcher) Cache() *Cache {
	return d.cache
}

// ToolNames returns the names callable through this dispatcher: locally
// registered tools plus every discovered tool, sorted case-insensitively.
func (d *Dispatcher) ToolNames() []string {
	names := append([]string{}, d.localNames...)
	names = append(names, d.reg.Names()...)
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names
}

// Dispatch resolves one invocation. Identical invocations execute at most
// once per cache lifetime: a repeat is answered from the cache without
// re-invoking the server, and a concurrent repeat awaits the in-flight
// execution instead of starting another.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *extract.PendingInvocation) *Result {
	res, src, err := d.cache.Do(ctx, inv.Fingerprint, func() *Result {
		return d.execute(ctx, inv)
	})
	if err != nil {
		inv.Status = extract.StatusError
		return &Result{
			InvocationID: inv.ID,
			Tool:         inv.ToolName,
			Fingerprint:  inv.Fingerprint,
			Failure:      FailureExecutionError,
			Content:      fmt.Sprintf("Tool call failed: %s", err.Error()),
			Source:       src,
		}
	}
	if src == SourceExecuted {
		return res
	}

	if src == SourceCache {
		metricskey.StatsToolCallsCached.IncrCounter(1, inv.ToolName)
	} else {
		metricskey.StatsToolCallsCoalesced.IncrCounter(1, inv.ToolName)
	}
	d.callback.OnToolCached(ctx, inv.ToolName, inv.Fingerprint)
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", inv.ToolName,
		"fingerprint", inv.Fingerprint,
		"source", src.String(),
	)

	// Reused outcome answers with the requester's identity.
	out := *res
	out.InvocationID = inv.ID
	out.Source = src
	if out.OK() {
		inv.Status = extract.StatusSuccess
	} else {
		inv.Status = extract.StatusError
	}
	return &out
}

func (d *Dispatcher) execute(ctx context.Context, inv *extract.PendingInvocation) *Result {
	inv.Status = extract.StatusInProgress

	fail := func(kind Failure, content string) *Result {
		inv.Status = extract.StatusError
		return &Result{
			InvocationID: inv.ID,
			Tool:         inv.ToolName,
			Fingerprint:  inv.Fingerprint,
			Failure:      kind,
			Content:      content,
		}
	}

	input := encodeArgs(inv.Args)

	tool := d.local[strings.ToLower(inv.ToolName)]
	if tool == nil {
		desc, srv, ok := d.reg.Find(inv.ToolName)
		if !ok {
			metricskey.StatsToolCallsNotFound.IncrCounter(1, inv.ToolName)
			d.callback.OnToolNotFound(ctx, inv.ToolName)
			available := strings.Join(d.ToolNames(), ", ")
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "tool_not_found",
				"tool", inv.ToolName,
				"available_tools", available,
			)
			return fail(FailureToolNotFound, fmt.Sprintf(
				"Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s",
				inv.ToolName, available))
		}

		caller, err := d.newCaller(srv, d.tropts...)
		if err != nil {
			metricskey.StatsToolCallsFailed.IncrCounter(1, inv.ToolName)
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "caller_unavailable",
				"tool", inv.ToolName,
				"server", srv.ID,
				"err", err.Error(),
			)
			return fail(FailureExecutionError, fmt.Sprintf("Tool call failed: %s", err.Error()))
		}
		defer func() {
			_ = caller.Close()
		}()

		remote := tools.NewRemote(desc, caller)
		if verr := ValidateArgs(desc, inv.Args); verr != nil {
			metricskey.StatsToolCallsInvalid.IncrCounter(1, inv.ToolName)
			d.callback.OnToolError(ctx, remote, input, verr)
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "invalid_arguments",
				"tool", inv.ToolName,
				"err", verr.Error(),
			)
			return fail(FailureParameterValidation, fmt.Sprintf(
				"Invalid arguments for tool `%s`: %s. Check the declared parameters and try again.",
				inv.ToolName, verr.Error()))
		}
		tool = remote
	}

	d.callback.OnToolStart(ctx, tool, input)

	started := time.Now()
	out, err := tool.Call(ctx, input)
	metricskey.PerfToolCall.MeasureSince(started, inv.ToolName)

	if err != nil {
		d.callback.OnToolError(ctx, tool, input, err)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool", inv.ToolName,
			"err", err.Error(),
		)
		if errors.Is(err, chatmodel.ErrFailedUnmarshalInput) {
			metricskey.StatsToolCallsInvalid.IncrCounter(1, inv.ToolName)
			return fail(FailureParameterValidation,
				"Failed to unmarshal input, check the JSON schema and try again.")
		}
		metricskey.StatsToolCallsFailed.IncrCounter(1, inv.ToolName)
		return fail(FailureExecutionError, fmt.Sprintf("Tool call failed: %s", err.Error()))
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, inv.ToolName)
	d.callback.OnToolEnd(ctx, tool, input, out)
	inv.Status = extract.StatusSuccess
	return &Result{
		InvocationID: inv.ID,
		Tool:         inv.ToolName,
		Fingerprint:  inv.Fingerprint,
		Content:      out,
	}
}

// encodeArgs renders the ordered arguments as the JSON input passed to a
// tool, preserving key order.
func encodeArgs(args *orderedmap.OrderedMap[string, any]) string {
	if args == nil || args.Len() == 0 {
		return "{}"
	}
	bs, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(bs)
}
