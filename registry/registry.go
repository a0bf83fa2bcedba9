package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "registry")

// TransportKind identifies how a server is reached.
type TransportKind string

const (
	// TransportStream is a locally spawned process speaking
	// newline-delimited JSON-RPC on stdin/stdout.
	TransportStream TransportKind = "stream"
	// TransportHTTP is a remote endpoint accepting JSON-RPC over POST.
	TransportHTTP TransportKind = "http"
)

// Kind is the declared wire type of a tool parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Parameter describes one declared parameter of a tool, in declaration order.
type Parameter struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Type        Kind     `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
}

// ToolDescriptor describes one invocable capability exposed by a server.
// Descriptors are created once per discovery response and never mutated;
// re-discovery replaces the whole slice.
type ToolDescriptor struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Param returns the declared parameter by name.
func (d *ToolDescriptor) Param(name string) (*Parameter, bool) {
	for i := range d.Parameters {
		if strings.EqualFold(d.Parameters[i].Name, name) {
			return &d.Parameters[i], true
		}
	}
	return nil, false
}

// Defaults returns the declared default values keyed by parameter name.
func (d *ToolDescriptor) Defaults() map[string]any {
	var res map[string]any
	for _, p := range d.Parameters {
		if p.Default == nil {
			continue
		}
		if res == nil {
			res = map[string]any{}
		}
		res[p.Name] = p.Default
	}
	return res
}

// Server is the identity of an agent-tool server. The identity is
// immutable once discovery starts; Tools is assigned exactly once per
// discovery attempt.
type Server struct {
	ID   string        `json:"id" yaml:"id" validate:"required"`
	Kind TransportKind `json:"kind" yaml:"kind" validate:"required,oneof=stream http"`

	// Stream connection info.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// HTTP connection info.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Hint is an optional namespace hint (package name or URL path
	// segment) used to rank candidate discovery methods.
	Hint string `json:"hint,omitempty" yaml:"hint,omitempty"`

	Tools []ToolDescriptor `json:"tools,omitempty" yaml:"tools,omitempty"`
}

var validate = validator.New()

// Validate checks the server identity fields.
func (s *Server) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.WithMessage(err, "invalid server")
	}
	switch s.Kind {
	case TransportStream:
		if s.Command == "" {
			return errors.New("stream server requires a command")
		}
	case TransportHTTP:
		if s.URL == "" {
			return errors.New("http server requires a url")
		}
	}
	return nil
}

// Registry maps server identities to their discovered tool descriptors.
// A server's entry is populated exactly once per discovery attempt and is
// read-only afterward; registering the same server ID again replaces its
// descriptors wholesale.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server
	// registration order per server ID, stable across re-discovery
	seq     map[string]int
	nextSeq int
	// lowercase tool name -> owning server ID
	owners map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		servers: make(map[string]*Server),
		seq:     make(map[string]int),
		owners:  make(map[string]string),
	}
}

// Register stores the discovery outcome for a server. Tool names are
// unique within a server; across servers the earliest-registered server
// that still declares a name owns it for dispatch lookups.
func (r *Registry) Register(srv *Server, tools []ToolDescriptor) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := range tools {
		if err := validate.Struct(&tools[i]); err != nil {
			return errors.WithMessagef(err, "invalid tool descriptor %d", i)
		}
		name := strings.ToLower(tools[i].Name)
		if seen[name] {
			return errors.Newf("duplicate tool name: %s", tools[i].Name)
		}
		seen[name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seq[srv.ID]; !ok {
		r.seq[srv.ID] = r.nextSeq
		r.nextSeq++
	}

	cp := *srv
	cp.Tools = append([]ToolDescriptor(nil), tools...)
	r.servers[srv.ID] = &cp
	r.rebuildOwners()

	logger.KV(xlog.DEBUG, "server", srv.ID, "kind", srv.Kind, "tools", len(tools))
	return nil
}

// rebuildOwners reassigns tool name ownership in registration order.
// Re-discovery replaces a server's descriptors wholesale, so a dropped
// name falls to the next server that still declares it.
func (r *Registry) rebuildOwners() {
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return r.seq[a] - r.seq[b]
	})

	r.owners = make(map[string]string, len(r.owners))
	for _, id := range ids {
		for _, t := range r.servers[id].Tools {
			name := strings.ToLower(t.Name)
			if _, taken := r.owners[name]; !taken {
				r.owners[name] = id
			}
		}
	}
}

// Server returns the registered server by ID.
func (r *Registry) Server(id string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.servers[id]
	return srv, ok
}

// Tools returns the descriptors discovered for a server.
func (r *Registry) Tools(serverID string) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if srv := r.servers[serverID]; srv != nil {
		return srv.Tools
	}
	return nil
}

// Find locates a tool and its owning server by tool name,
// case-insensitive.
func (r *Registry) Find(toolName string) (*ToolDescriptor, *Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srvID, ok := r.owners[strings.ToLower(toolName)]
	if !ok {
		return nil, nil, false
	}
	srv := r.servers[srvID]
	if srv == nil {
		return nil, nil, false
	}
	for i := range srv.Tools {
		if strings.EqualFold(srv.Tools[i].Name, toolName) {
			return &srv.Tools[i], srv, true
		}
	}
	return nil, nil, false
}

// HasTool reports whether any server owns the given tool name.
func (r *Registry) HasTool(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[strings.ToLower(toolName)]
	return ok
}

// Names returns all known tool names, sorted case-insensitively.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.owners))
	for _, srv := range r.servers {
		for _, t := range srv.Tools {
			if r.owners[strings.ToLower(t.Name)] == srv.ID {
				names = append(names, t.Name)
			}
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names
}

// ServerIDs returns the registered server IDs.
func (r *Registry) ServerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
