package registry

import (
	"context"
	"sync"
	"time"
)

// ProbeRecord is one audit entry describing a discovery attempt against
// a server. The record store keeps a bounded history per server.
type ProbeRecord struct {
	ServerID string    `json:"server_id"`
	Method   string    `json:"method,omitempty"`
	Attempts int       `json:"attempts"`
	Tools    int       `json:"tools"`
	Err      string    `json:"err,omitempty"`
	At       time.Time `json:"at"`
}

// RecordStore is the durable backing for server/tool records. The
// in-memory Registry remains the source of truth for a session; the
// store lets an orchestration layer reload known servers.
type RecordStore interface {
	SaveServer(ctx context.Context, srv *Server) error
	GetServer(ctx context.Context, id string) (*Server, error)
	ListServers(ctx context.Context) ([]string, error)
	DeleteServer(ctx context.Context, id string) error

	AppendProbeRecord(ctx context.Context, rec *ProbeRecord) error
	ProbeRecords(ctx context.Context, serverID string) ([]*ProbeRecord, error)
}

type inMemory struct {
	mu      sync.RWMutex
	servers map[string]*Server
	probes  map[string][]*ProbeRecord
}

// NewMemoryStore returns a RecordStore backed by process memory.
func NewMemoryStore() RecordStore {
	return &inMemory{}
}

func (m *inMemory) SaveServer(_ context.Context, srv *Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.servers == nil {
		// create on first use
		m.servers = make(map[string]*Server)
	}
	cp := *srv
	m.servers[srv.ID] = &cp
	return nil
}

func (m *inMemory) GetServer(_ context.Context, id string) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.servers == nil {
		return nil, nil
	}
	return m.servers[id], nil
}

func (m *inMemory) ListServers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *inMemory) DeleteServer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.servers != nil {
		delete(m.servers, id)
	}
	if m.probes != nil {
		delete(m.probes, id)
	}
	return nil
}

func (m *inMemory) AppendProbeRecord(_ context.Context, rec *ProbeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probes == nil {
		m.probes = make(map[string][]*ProbeRecord)
	}
	recs := append(m.probes[rec.ServerID], rec)
	if len(recs) > probeHistoryLimit {
		recs = recs[len(recs)-probeHistoryLimit:]
	}
	m.probes[rec.ServerID] = recs
	return nil
}

func (m *inMemory) ProbeRecords(_ context.Context, serverID string) ([]*ProbeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.probes == nil {
		return nil, nil
	}
	return m.probes[serverID], nil
}

// probeHistoryLimit bounds the per-server probe audit history.
const probeHistoryLimit = 50
