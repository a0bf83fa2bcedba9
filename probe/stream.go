package probe

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/effective-security/toolgate/internal/execio"
	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "probe")

// stderrTailLimit bounds the captured standard error text attached to
// probe failures.
const stderrTailLimit = 4096

// StreamProber negotiates the tool-listing method of a locally spawned
// server process. Candidates are tried strictly one at a time: a later
// request is never written before the former's outcome is known.
type StreamProber struct {
	cfg *Config
}

// NewStreamProber returns a stream prober with the given options applied.
func NewStreamProber(opts ...Option) *StreamProber {
	return &StreamProber{cfg: NewConfig(opts...)}
}

// Probe spawns the server command and sends one newline-terminated request
// per candidate method, in ranked order, until one yields a list-shaped
// result. The process is terminated before Probe returns, whatever the
// outcome. A single wall-clock deadline governs the whole attempt.
func (p *StreamProber) Probe(ctx context.Context, srv *registry.Server, candidates []string) ([]registry.ToolDescriptor, error) {
	cb := p.cfg.Callback
	cb.OnProbeStart(ctx, srv.ID, string(registry.TransportStream))

	st := StateIdle
	fail := func(err *Error) ([]registry.ToolDescriptor, error) {
		cb.OnProbeFailed(ctx, srv.ID, err)
		return nil, err
	}

	if len(candidates) == 0 {
		return fail(&Error{Kind: KindMethodsExhausted})
	}

	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Env = append(os.Environ(), execio.EnvList(srv.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.step(ctx, srv.ID, &st, EventStreamLost)
		return fail((&Error{Kind: KindStreamUnavailable}).WithCause(err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.step(ctx, srv.ID, &st, EventStreamLost)
		return fail((&Error{Kind: KindStreamUnavailable}).WithCause(err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.step(ctx, srv.ID, &st, EventStreamLost)
		return fail((&Error{Kind: KindStreamUnavailable}).WithCause(err))
	}

	if err := cmd.Start(); err != nil {
		p.step(ctx, srv.ID, &st, EventSpawnError)
		return fail((&Error{Kind: KindSpawnFailure}).WithCause(err))
	}
	p.step(ctx, srv.ID, &st, EventSpawned)

	proc := &process{cmd: cmd, stdin: stdin}
	defer proc.stop()

	tail := execio.NewTailBuffer(stderrTailLimit)
	go func() {
		_, _ = io.Copy(tail, stderr)
	}()

	done := make(chan struct{})
	defer close(done)
	chunks := make(chan readChunk, 8)
	go readStream(stdout, chunks, done)

	deadline := time.NewTimer(p.cfg.ResponseTimeout)
	defer deadline.Stop()

	var buf bytes.Buffer
	for i, method := range candidates {
		cb.OnMethodAttempt(ctx, srv.ID, method, i)
		metricskey.StatsProbeMethodAttempts.IncrCounter(1, srv.ID, method)

		data, err := wire.NewRequest(i+1, method, nil).Encode()
		if err != nil {
			p.step(ctx, srv.ID, &st, EventStreamLost)
			return fail((&Error{Kind: KindStreamUnavailable, Method: method}).WithCause(err))
		}
		if _, err := proc.stdin.Write(data); err != nil {
			// A write failure usually means the process died; give the
			// reader a moment to observe EOF so the exit code is reported.
			select {
			case ch := <-chunks:
				if ch.err != nil {
					p.step(ctx, srv.ID, &st, EventProcessExited)
					return fail(&Error{
						Kind:     KindProcessExited,
						Method:   method,
						ExitCode: proc.reap(),
						Stderr:   tail.String(),
					})
				}
			case <-time.After(100 * time.Millisecond):
			}
			p.step(ctx, srv.ID, &st, EventStreamLost)
			return fail((&Error{Kind: KindStreamUnavailable, Method: method, Stderr: tail.String()}).WithCause(err))
		}
		if i == len(candidates)-1 {
			// The last candidate closes input so well-behaved servers can
			// flush their reply and exit; earlier ones keep it open to
			// allow a response before moving on.
			proc.closeStdin()
		}
		p.step(ctx, srv.ID, &st, EventRequestSent)

		buf.Reset()
		advance := false
		for !advance {
			select {
			case ch := <-chunks:
				if len(ch.data) > 0 {
					buf.Write(ch.data)
					doc, complete := wire.ExtractDocument(buf.Bytes())
					if complete {
						switch {
						case doc.IsMethodNotFound():
							cb.OnMethodRejected(ctx, srv.ID, method)
							metricskey.StatsProbeMethodsRejected.IncrCounter(1, srv.ID, method)
							advance = true
						case doc.HasResult():
							tools, listShaped, derr := wire.DecodeToolList(doc.Result)
							if listShaped && derr == nil {
								p.step(ctx, srv.ID, &st, EventToolsFound)
								proc.stop()
								cb.OnProbeResolved(ctx, srv.ID, len(tools))
								return tools, nil
							}
							if listShaped {
								logger.ContextKV(ctx, xlog.WARNING,
									"server", srv.ID,
									"method", method,
									"reason", "malformed tool list",
									"err", derr.Error(),
								)
							}
							advance = true
						default:
							// Well-formed but unrelated document: implicit
							// try-next.
							advance = true
						}
					}
				}
				if !advance && ch.err != nil {
					p.step(ctx, srv.ID, &st, EventProcessExited)
					return fail(&Error{
						Kind:     KindProcessExited,
						Method:   method,
						ExitCode: proc.reap(),
						Stderr:   tail.String(),
					})
				}
			case <-deadline.C:
				p.step(ctx, srv.ID, &st, EventDeadline)
				proc.stop()
				return fail(&Error{
					Kind:   KindResponseTimeout,
					Method: method,
					Stderr: tail.String(),
				})
			case <-ctx.Done():
				p.step(ctx, srv.ID, &st, EventDeadline)
				proc.stop()
				return fail((&Error{
					Kind:   KindResponseTimeout,
					Method: method,
					Stderr: tail.String(),
				}).WithCause(ctx.Err()))
			}
		}

		if i+1 < len(candidates) {
			p.step(ctx, srv.ID, &st, EventMethodRejected)
			continue
		}
		p.step(ctx, srv.ID, &st, EventCandidatesSpent)
	}

	proc.stop()
	return fail(&Error{
		Kind:   KindMethodsExhausted,
		Method: candidates[len(candidates)-1],
		Stderr: tail.String(),
	})
}

// step applies a state machine event, logging the transition. An illegal
// transition indicates a prober bug and is logged rather than surfaced.
func (p *StreamProber) step(ctx context.Context, serverID string, st *State, ev Event) {
	next, err := Step(*st, ev)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "server", serverID, "err", err.Error())
		return
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"server", serverID,
		"state", next.String(),
		"on", ev.String(),
	)
	*st = next
}

// readChunk is one stdout read result. Both fields may be set when the
// final read returns data together with EOF.
type readChunk struct {
	data []byte
	err  error
}

// readStream is the single read loop pumping server output to the prober.
// It exits on read error or when the prober is done.
func readStream(r io.Reader, out chan<- readChunk, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		var ch readChunk
		if n > 0 {
			ch.data = append([]byte(nil), buf[:n]...)
		}
		ch.err = err
		select {
		case out <- ch:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// process wraps the spawned command so that kill and reap are idempotent.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
	reaped bool
	exit   int
}

func (p *process) closeStdin() {
	if !p.closed {
		p.closed = true
		_ = p.stdin.Close()
	}
}

// stop kills the process if it is still running and reaps it.
func (p *process) stop() {
	p.closeStdin()
	if !p.reaped && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.reap()
}

// reap waits for the process and caches its exit code. Returns -1 when the
// process was signaled or the code is unknown.
func (p *process) reap() int {
	if p.reaped {
		return p.exit
	}
	p.reaped = true
	_ = p.cmd.Wait()
	p.exit = -1
	if ps := p.cmd.ProcessState; ps != nil {
		p.exit = ps.ExitCode()
	}
	return p.exit
}
