package probe

import "github.com/cockroachdb/errors"

// State identifies a phase of the stream probing state machine. The machine
// tracks a single probe attempt; the candidate index advances alongside it
// in the prober.
type State int

const (
	// StateIdle is the initial state before the process is spawned.
	StateIdle State = iota
	// StateSpawned means the process started and its streams are wired.
	StateSpawned
	// StateProbing means the next candidate request is being written.
	StateProbing
	// StateAwaiting means a request was sent and output is being accumulated.
	StateAwaiting
	// StateToolsFound is the terminal success state.
	StateToolsFound
	// StateSpawnFailed is terminal: the process never started.
	StateSpawnFailed
	// StateStreamUnavailable is terminal: the process streams are unusable.
	StateStreamUnavailable
	// StateTimedOut is terminal: the probe deadline expired.
	StateTimedOut
	// StateExited is terminal: the process exited before any candidate succeeded.
	StateExited
	// StateExhausted is terminal: every candidate was rejected.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawned:
		return "spawned"
	case StateProbing:
		return "probing"
	case StateAwaiting:
		return "awaiting_response"
	case StateToolsFound:
		return "tools_found"
	case StateSpawnFailed:
		return "spawn_failed"
	case StateStreamUnavailable:
		return "stream_unavailable"
	case StateTimedOut:
		return "timeout"
	case StateExited:
		return "process_exited"
	case StateExhausted:
		return "methods_exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the machine can no longer advance.
func (s State) Terminal() bool {
	switch s {
	case StateToolsFound, StateSpawnFailed, StateStreamUnavailable,
		StateTimedOut, StateExited, StateExhausted:
		return true
	default:
		return false
	}
}

// Event is an observation that drives the state machine.
type Event int

const (
	// EventSpawned fires when the process started and streams are wired.
	EventSpawned Event = iota
	// EventSpawnError fires when the process could not be started.
	EventSpawnError
	// EventRequestSent fires after a candidate request was written.
	EventRequestSent
	// EventToolsFound fires when a list-shaped result was decoded.
	EventToolsFound
	// EventMethodRejected fires on a method-not-found or otherwise
	// inconclusive reply with candidates remaining.
	EventMethodRejected
	// EventCandidatesSpent fires on a rejection with no candidates left.
	EventCandidatesSpent
	// EventStreamLost fires when a stream write or setup fails.
	EventStreamLost
	// EventDeadline fires when the probe deadline expires.
	EventDeadline
	// EventProcessExited fires when the process output stream ends.
	EventProcessExited
)

func (e Event) String() string {
	switch e {
	case EventSpawned:
		return "spawned"
	case EventSpawnError:
		return "spawn_error"
	case EventRequestSent:
		return "request_sent"
	case EventToolsFound:
		return "tools_found"
	case EventMethodRejected:
		return "method_rejected"
	case EventCandidatesSpent:
		return "candidates_spent"
	case EventStreamLost:
		return "stream_lost"
	case EventDeadline:
		return "deadline"
	case EventProcessExited:
		return "process_exited"
	default:
		return "unknown"
	}
}

// transitions is the explicit table of legal state moves. Anything not
// listed here is a prober bug, not a server behavior.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSpawned:    StateSpawned,
		EventSpawnError: StateSpawnFailed,
		EventStreamLost: StateStreamUnavailable,
	},
	StateSpawned: {
		EventRequestSent:   StateAwaiting,
		EventStreamLost:    StateStreamUnavailable,
		EventProcessExited: StateExited,
		EventDeadline:      StateTimedOut,
	},
	StateProbing: {
		EventRequestSent:   StateAwaiting,
		EventStreamLost:    StateStreamUnavailable,
		EventProcessExited: StateExited,
		EventDeadline:      StateTimedOut,
	},
	StateAwaiting: {
		EventToolsFound:      StateToolsFound,
		EventMethodRejected:  StateProbing,
		EventCandidatesSpent: StateExhausted,
		EventStreamLost:      StateStreamUnavailable,
		EventProcessExited:   StateExited,
		EventDeadline:        StateTimedOut,
	},
}

// Step returns the state reached from s on ev, or an error for an illegal
// transition so that a prober bug cannot silently corrupt the cascade.
func Step(s State, ev Event) (State, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, errors.Newf("illegal transition: %s on %s", s, ev)
	}
	return next, nil
}
