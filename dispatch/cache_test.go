package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/toolgate/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Cache_ExecutesOncePerFingerprint(t *testing.T) {
	cache := dispatch.NewCache()

	calls := 0
	fn := func() *dispatch.Result {
		calls++
		return &dispatch.Result{Tool: "echo", Content: "hi"}
	}

	res, src, err := cache.Do(context.Background(), "fp1", fn)
	require.NoError(t, err)
	assert.Equal(t, dispatch.SourceExecuted, src)
	assert.Equal(t, "hi", res.Content)

	res2, src2, err := cache.Do(context.Background(), "fp1", fn)
	require.NoError(t, err)
	assert.Equal(t, dispatch.SourceCache, src2)
	assert.Same(t, res, res2)
	assert.Equal(t, 1, calls)

	_, src3, err := cache.Do(context.Background(), "fp2", fn)
	require.NoError(t, err)
	assert.Equal(t, dispatch.SourceExecuted, src3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, cache.Len())
}

func Test_Cache_Get(t *testing.T) {
	cache := dispatch.NewCache()

	_, ok := cache.Get("fp")
	assert.False(t, ok)

	want := &dispatch.Result{Tool: "echo", Content: "done"}
	_, _, err := cache.Do(context.Background(), "fp", func() *dispatch.Result {
		return want
	})
	require.NoError(t, err)

	got, ok := cache.Get("fp")
	require.True(t, ok)
	assert.Same(t, want, got)
}

func Test_Cache_CoalescesInFlight(t *testing.T) {
	cache := dispatch.NewCache()

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	var first *dispatch.Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _, _ = cache.Do(context.Background(), "fp", func() *dispatch.Result {
			close(started)
			<-release
			return &dispatch.Result{Tool: "echo", Content: "once"}
		})
	}()

	<-started

	var second *dispatch.Result
	var src dispatch.Source
	wg.Add(1)
	go func() {
		defer wg.Done()
		second, src, _ = cache.Do(context.Background(), "fp", func() *dispatch.Result {
			t.Error("in-flight fingerprint must not execute again")
			return nil
		})
	}()

	// Give the second caller time to block on the in-flight entry.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, dispatch.SourceCoalesced, src)
	require.NotNil(t, second)
	assert.Equal(t, "once", second.Content)
	assert.Same(t, first, second)
}

func Test_Cache_AwaitCanceled(t *testing.T) {
	cache := dispatch.NewCache()

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = cache.Do(context.Background(), "fp", func() *dispatch.Result {
			close(started)
			<-release
			return &dispatch.Result{Tool: "echo", Content: "late"}
		})
	}()

	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, src, err := cache.Do(ctx, "fp", func() *dispatch.Result {
		t.Error("in-flight fingerprint must not execute again")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, dispatch.SourceCoalesced, src)

	close(release)
	wg.Wait()

	// The abandoned execution still completed and stays cached.
	res, ok := cache.Get("fp")
	require.True(t, ok)
	assert.Equal(t, "late", res.Content)
}
