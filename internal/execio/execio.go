// Package execio has small helpers shared by the packages that spawn
// agent server processes.
package execio

import (
	"slices"
	"strings"
	"sync"
)

// EnvList flattens an env map in sorted order for exec.Cmd. Appended
// after os.Environ(), the entries override inherited variables.
func EnvList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

// TailBuffer keeps the last capacity bytes written to it. Safe for
// concurrent use by a stderr drain goroutine and its reader.
type TailBuffer struct {
	mu       sync.Mutex
	capacity int
	buf      []byte
}

// NewTailBuffer returns a TailBuffer holding at most capacity bytes.
func NewTailBuffer(capacity int) *TailBuffer {
	return &TailBuffer{capacity: capacity}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.capacity {
		t.buf = t.buf[len(t.buf)-t.capacity:]
	}
	return len(p), nil
}

// String returns the retained tail with surrounding whitespace trimmed.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
