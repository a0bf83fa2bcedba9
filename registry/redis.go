package registry

import (
	"context"
	"encoding/json"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the RecordStore interface using Redis as the
// backend. Server records and per-server probe history are kept under a
// configurable prefix so multiple deployments can share one instance.
// The keys namespace is organized as follows:
// - `/<prefix>/toolstore/servers` for the set of known server IDs
// - `/<prefix>/toolstore/server/<serverID>` for the server record with its tools
// - `/<prefix>/toolstore/probes/<serverID>` for the probe audit history

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a RecordStore backed by the given Redis client.
func NewRedisStore(client *redis.Client, prefix string) RecordStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (m *redisStore) serverKey(serverID string) string {
	return path.Join(m.prefix, "toolstore", "server", serverID)
}

func (m *redisStore) serverListKey() string {
	return path.Join(m.prefix, "toolstore", "servers")
}

func (m *redisStore) probesKey(serverID string) string {
	return path.Join(m.prefix, "toolstore", "probes", serverID)
}

func (m *redisStore) SaveServer(ctx context.Context, srv *Server) error {
	data, err := json.Marshal(srv)
	if err != nil {
		return errors.Wrap(err, "failed to marshal server record")
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.serverKey(srv.ID), data, 0)
	pipe.SAdd(ctx, m.serverListKey(), srv.ID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store server record in Redis")
	}
	return nil
}

func (m *redisStore) GetServer(ctx context.Context, id string) (*Server, error) {
	data, err := m.client.Get(ctx, m.serverKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get server record from Redis")
	}

	srv := &Server{}
	err = json.Unmarshal([]byte(data), srv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal server record")
	}
	return srv, nil
}

func (m *redisStore) ListServers(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.serverListKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list servers from Redis")
	}
	return ids, nil
}

func (m *redisStore) DeleteServer(ctx context.Context, id string) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.serverKey(id))
	pipe.Del(ctx, m.probesKey(id))
	pipe.SRem(ctx, m.serverListKey(), id)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete server record from Redis")
	}
	return nil
}

func (m *redisStore) AppendProbeRecord(ctx context.Context, rec *ProbeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal probe record")
	}

	key := m.probesKey(rec.ServerID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, data)
	// Keep only the most recent records
	pipe.LTrim(ctx, key, -probeHistoryLimit, -1)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store probe record in Redis")
	}
	return nil
}

func (m *redisStore) ProbeRecords(ctx context.Context, serverID string) ([]*ProbeRecord, error) {
	data, err := m.client.LRange(ctx, m.probesKey(serverID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list probe records from Redis")
	}

	var recs []*ProbeRecord
	for _, item := range data {
		rec := &ProbeRecord{}
		if err := json.Unmarshal([]byte(item), rec); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal probe record", "err", err.Error())
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
