package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestProviderStartsPassthrough(t *testing.T) {
	p := NewProvider()
	require.Equal(t, "passthrough", p.Active().Name())
	require.Equal(t, memory.DefaultAllocator, p.Active().Allocator())
	require.Nil(t, p.Bounded())
}

func TestEnableBoundedCacheReusesInstance(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()

	first := p.EnableBoundedCache(ctx, 1<<20)
	require.NotNil(t, first)
	require.Same(t, first, p.Active())

	second := p.EnableBoundedCache(ctx, 1<<20)
	require.Same(t, first, second)

	t.Run("different capacity keeps the first instance", func(t *testing.T) {
		third := p.EnableBoundedCache(ctx, 1<<10)
		require.Same(t, first, third)
		require.Equal(t, uint64(1<<20), third.Capacity())
	})
}

func TestDisableKeepsBoundedInstance(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()
	bounded := p.EnableBoundedCache(ctx, 1024)
	_, err := bounded.Load(ctx, "k", func(context.Context) ([]byte, error) {
		return []byte("value"), nil
	})
	require.NoError(t, err)

	p.Disable()
	require.Equal(t, "passthrough", p.Active().Name())
	require.Same(t, bounded, p.Bounded())
	require.True(t, p.Bounded().Contains("k"))

	require.Same(t, bounded, p.EnableBoundedCache(ctx, 1024))
	require.Same(t, bounded, p.Active())
}

func TestPassthroughAlwaysFetches(t *testing.T) {
	var calls int
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte("x"), nil
	}
	for i := 0; i < 3; i++ {
		_, err := Passthrough().Load(context.Background(), "k", fetch)
		require.NoError(t, err)
	}
	require.Equal(t, 3, calls)
}

func TestAsyncDataCacheHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	c := NewAsyncDataCache(memory.NewGoAllocator(), 16)
	var calls int
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte("12345678"), nil
	}
	for i := 0; i < 3; i++ {
		data, err := c.Load(ctx, "a", fetch)
		require.NoError(t, err)
		require.Equal(t, "12345678", string(data))
	}
	require.Equal(t, 1, calls)
	stats := c.Stats()
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(2), stats.Hits)
	require.Equal(t, uint64(8), stats.UsedBytes)
}

func TestAsyncDataCacheRefusesOverCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewAsyncDataCache(memory.NewGoAllocator(), 10)
	payload := func(n int) func(context.Context) ([]byte, error) {
		return func(context.Context) ([]byte, error) { return make([]byte, n), nil }
	}
	_, err := c.Load(ctx, "a", payload(8))
	require.NoError(t, err)
	data, err := c.Load(ctx, "b", payload(8))
	require.NoError(t, err)
	require.Len(t, data, 8)

	require.True(t, c.Contains("a"))
	require.False(t, c.Contains("b"))
	require.Equal(t, int64(1), c.Stats().Rejected)
	require.Equal(t, uint64(8), c.Stats().UsedBytes)
}

func TestAsyncDataCacheFetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewAsyncDataCache(memory.NewGoAllocator(), 100)
	boom := errors.New("boom")
	_, err := c.Load(ctx, "a", func(context.Context) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, c.Contains("a"))
}

func TestAsyncDataCacheSharesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	c := NewAsyncDataCache(memory.NewGoAllocator(), 100)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}
	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Load(ctx, "k", fetch)
			results[i], errs[i] = string(data), err
		}()
	}
	done := c.Prefetch(ctx, "k", fetch)
	close(release)
	wg.Wait()
	require.NoError(t, <-done)
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", results[i])
	}
	require.LessOrEqual(t, calls.Load(), int32(2))
	require.True(t, c.Contains("k"))
}

func TestAsyncDataCacheCanceledWaiterKeepsSharedLoad(t *testing.T) {
	c := NewAsyncDataCache(memory.NewGoAllocator(), 100)
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		close(started)
		select {
		case <-release:
			return []byte("shared"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Load(firstCtx, "k", fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		data []byte
		err  error
	}
	second := make(chan result, 1)
	go func() {
		data, err := c.Load(context.Background(), "k", fetch)
		second <- result{data, err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, "shared", string(res.data))
	require.True(t, c.Contains("k"))
}

func TestAsyncDataCacheTracksAllocations(t *testing.T) {
	c := NewAsyncDataCache(memory.NewGoAllocator(), 100)
	buf := c.Allocator().Allocate(64)
	require.GreaterOrEqual(t, c.Stats().Allocated, 64)
	c.Allocator().Free(buf)
	require.Equal(t, 0, c.Stats().Allocated)
}
