package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsDiscoveryStarted is base for counter metric for total discovery attempts
	StatsDiscoveryStarted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_discovery_started",
		Help:         "stats_discovery_started provides total discovery attempts",
		RequiredTags: []string{"server", "transport"},
	}

	StatsDiscoverySucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_discovery_succeeded",
		Help:         "stats_discovery_succeeded provides total discovery attempts succeeded",
		RequiredTags: []string{"server", "transport"},
	}

	StatsDiscoveryFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_discovery_failed",
		Help:         "stats_discovery_failed provides total discovery attempts failed",
		RequiredTags: []string{"server", "transport"},
	}

	StatsProbeMethodAttempts = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_probe_method_attempts",
		Help:         "stats_probe_method_attempts provides total candidate method requests sent",
		RequiredTags: []string{"server", "method"},
	}

	StatsProbeMethodsRejected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_probe_methods_rejected",
		Help:         "stats_probe_methods_rejected provides total candidate methods rejected by servers",
		RequiredTags: []string{"server", "method"},
	}

	StatsInvocationsExtracted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_invocations_extracted",
		Help:         "stats_invocations_extracted provides total tool invocations extracted from model output",
		RequiredTags: []string{"tier"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls to unknown tools",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsInvalid = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid",
		Help:         "stats_tool_calls_invalid provides total tool calls rejected by parameter validation",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsCached = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_cached",
		Help:         "stats_tool_calls_cached provides total tool calls served from the invocation cache",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsCoalesced = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_coalesced",
		Help:         "stats_tool_calls_coalesced provides total tool calls that awaited an in-flight execution",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfDiscovery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_discovery",
		Help:         "perf_discovery provides duration of a discovery attempt",
		RequiredTags: []string{"server"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfSessionTurn = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_session_turn",
		Help:         "perf_session_turn provides duration of a session turn",
		RequiredTags: []string{"provider"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfDiscovery,
	&PerfSessionTurn,
	&PerfToolCall,
	&StatsDiscoveryFailed,
	&StatsDiscoveryStarted,
	&StatsDiscoverySucceeded,
	&StatsInvocationsExtracted,
	&StatsProbeMethodAttempts,
	&StatsProbeMethodsRejected,
	&StatsToolCallsCached,
	&StatsToolCallsCoalesced,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalid,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
