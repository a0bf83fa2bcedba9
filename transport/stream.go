package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/internal/execio"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

const (
	// stderrTailLimit bounds the standard error text attached to call
	// failures.
	stderrTailLimit = 4096
	// maxLineBytes bounds one newline-delimited response document.
	maxLineBytes = 1 << 20

	handshakeID = 1
	callID      = 2
)

// StreamCaller invokes tools on a locally spawned server process. Each
// call owns its own process: spawn, initialize handshake, one request,
// terminate. Servers stay stateless from the engine's point of view.
type StreamCaller struct {
	srv *registry.Server
	cfg *Config
}

// NewStreamCaller returns a stream caller for the given server.
func NewStreamCaller(srv *registry.Server, opts ...Option) *StreamCaller {
	return &StreamCaller{srv: srv, cfg: NewConfig(opts...)}
}

// Call spawns the server command, performs the initialize handshake and
// issues a single method call. The process is terminated before Call
// returns, whatever the outcome.
func (c *StreamCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	proc, err := spawn(c.srv)
	if err != nil {
		return nil, err
	}
	defer proc.stop()

	if err := proc.handshake(ctx); err != nil {
		return nil, err
	}

	resp, err := proc.roundTrip(ctx, callID, method, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errors.WithMessagef(resp.Error, "%s rejected", method)
	}
	return resp.Result, nil
}

// Close is a no-op: every Call owns and reaps its own process.
func (c *StreamCaller) Close() error {
	return nil
}

// lineChunk is one newline-delimited unit of server output.
type lineChunk struct {
	data []byte
	err  error
}

// callProcess is the spawned server for the duration of one call. It is
// confined to the calling goroutine; only the output pumps run concurrently.
type callProcess struct {
	serverID string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	lines    chan lineChunk
	done     chan struct{}
	tail     *execio.TailBuffer
	stopped  bool
}

func spawn(srv *registry.Server) (*callProcess, error) {
	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Env = append(os.Environ(), execio.EnvList(srv.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to spawn %s", srv.Command)
	}

	p := &callProcess{
		serverID: srv.ID,
		cmd:      cmd,
		stdin:    stdin,
		lines:    make(chan lineChunk, 8),
		done:     make(chan struct{}),
		tail:     execio.NewTailBuffer(stderrTailLimit),
	}
	go func() {
		_, _ = io.Copy(p.tail, stderr)
	}()
	go readLines(stdout, p.lines, p.done)
	return p, nil
}

// handshake performs the initialize exchange expected by agent servers
// before tools/call. Discovery probes skip it on purpose; invocations
// talk to servers that already passed discovery.
func (p *callProcess) handshake(ctx context.Context) error {
	resp, err := p.roundTrip(ctx, handshakeID, wire.MethodInitialize, wire.NewInitializeParams())
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.WithMessage(resp.Error, "initialize rejected")
	}

	var info struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &info); err == nil && info.ServerInfo.Name != "" {
		logger.ContextKV(ctx, xlog.DEBUG,
			"server", p.serverID,
			"name", info.ServerInfo.Name,
			"version", info.ServerInfo.Version,
			"protocol", info.ProtocolVersion,
		)
	}

	data, err := wire.NewNotification(wire.NotificationInitialized, nil).Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}
	return p.send(wire.NotificationInitialized, data)
}

func (p *callProcess) roundTrip(ctx context.Context, id int, method string, params any) (*wire.Response, error) {
	data, err := wire.NewRequest(id, method, params).Encode()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s request", method)
	}
	if err := p.send(method, data); err != nil {
		return nil, err
	}
	return p.await(ctx, id, method)
}

func (p *callProcess) send(method string, data []byte) error {
	if _, err := p.stdin.Write(data); err != nil {
		if tail := p.tail.String(); tail != "" {
			return errors.Wrapf(err, "failed to write %s: %s", method, tail)
		}
		return errors.Wrapf(err, "failed to write %s", method)
	}
	return nil
}

// await reads newline-delimited documents until one matches the request
// id. Log lines, server notifications and stale replies are skipped.
func (p *callProcess) await(ctx context.Context, id int, method string) (*wire.Response, error) {
	for {
		select {
		case ln := <-p.lines:
			if ln.err != nil {
				if tail := p.tail.String(); tail != "" {
					return nil, errors.Newf("server exited before replying to %s: %s", method, tail)
				}
				return nil, errors.Newf("server exited before replying to %s", method)
			}
			var resp wire.Response
			if err := json.Unmarshal(ln.data, &resp); err != nil {
				logger.KV(xlog.DEBUG,
					"server", p.serverID,
					"reason", "skipping non-JSON line",
					"line", slices.StringUpto(string(ln.data), 128),
				)
				continue
			}
			if !wire.SameID(resp.ID, id) {
				continue
			}
			return &resp, nil
		case <-ctx.Done():
			return nil, errors.WithMessagef(ctx.Err(), "no reply to %s", method)
		}
	}
}

// stop terminates the process and releases the output pumps. Idempotent.
func (p *callProcess) stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.done)
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// readLines pumps newline-delimited output to the caller. It exits on read
// error or when the call is over.
func readLines(r io.Reader, out chan<- lineChunk, done <-chan struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		select {
		case out <- lineChunk{data: line}:
		case <-done:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case out <- lineChunk{err: err}:
	case <-done:
	}
}

