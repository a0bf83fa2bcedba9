package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/effective-security/toolgate/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	ctx := context.Background()
	st := registry.NewMemoryStore()

	srv, err := st.GetServer(ctx, "weather")
	require.NoError(t, err)
	assert.Nil(t, srv)

	saved := weatherServer()
	saved.Tools = weatherTools()
	require.NoError(t, st.SaveServer(ctx, saved))

	srv, err = st.GetServer(ctx, "weather")
	require.NoError(t, err)
	require.NotNil(t, srv)
	assert.Equal(t, registry.TransportStream, srv.Kind)
	assert.Len(t, srv.Tools, 2)

	ids, err := st.ListServers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, ids)

	require.NoError(t, st.DeleteServer(ctx, "weather"))
	srv, err = st.GetServer(ctx, "weather")
	require.NoError(t, err)
	assert.Nil(t, srv)
}

func Test_MemoryStore_ProbeHistory(t *testing.T) {
	ctx := context.Background()
	st := registry.NewMemoryStore()

	recs, err := st.ProbeRecords(ctx, "weather")
	require.NoError(t, err)
	assert.Empty(t, recs)

	for i := 0; i < 60; i++ {
		require.NoError(t, st.AppendProbeRecord(ctx, &registry.ProbeRecord{
			ServerID: "weather",
			Method:   "tools/list",
			Attempts: i + 1,
			Tools:    2,
			At:       time.Now().UTC(),
		}))
	}

	recs, err = st.ProbeRecords(ctx, "weather")
	require.NoError(t, err)
	require.Len(t, recs, 50, "history is bounded")
	assert.Equal(t, 11, recs[0].Attempts, "oldest entries are trimmed first")
	assert.Equal(t, 60, recs[49].Attempts)

	// History is scoped per server.
	require.NoError(t, st.AppendProbeRecord(ctx, &registry.ProbeRecord{
		ServerID: "calculator",
		Err:      "spawn failure",
		At:       time.Now().UTC(),
	}))
	recs, err = st.ProbeRecords(ctx, "calculator")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "spawn failure", recs[0].Err)

	// Deleting a server drops its history too.
	require.NoError(t, st.DeleteServer(ctx, "weather"))
	recs, err = st.ProbeRecords(ctx, "weather")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
