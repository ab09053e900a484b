package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"golang.org/x/sync/singleflight"
)

var (
	_ = (Backend)(&AsyncDataCache{})
)

// AsyncDataCache keeps loaded split data in memory up to a fixed number of
// bytes. Concurrent loads of one key share a single fetch. Once full, new
// entries are served to the caller but not retained; nothing is evicted.
type AsyncDataCache struct {
	alloc    *memory.CheckedAllocator
	capacity uint64

	mu      sync.Mutex
	entries map[string][]byte
	used    uint64

	group singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	rejected atomic.Int64
}

type Stats struct {
	Entries   int
	UsedBytes uint64
	Hits      int64
	Misses    int64
	Rejected  int64
	// bytes currently allocated through Allocator
	Allocated int
}

func NewAsyncDataCache(base memory.Allocator, capacityBytes uint64) *AsyncDataCache {
	return &AsyncDataCache{
		alloc:    memory.NewCheckedAllocator(base),
		capacity: capacityBytes,
		entries:  make(map[string][]byte),
	}
}

func (c *AsyncDataCache) Name() string { return "async-data-cache" }

// Allocator tracks every allocation made by tasks running on this cache.
func (c *AsyncDataCache) Allocator() memory.Allocator { return c.alloc }

func (c *AsyncDataCache) Capacity() uint64 { return c.capacity }

func (c *AsyncDataCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *AsyncDataCache) insert(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	size := uint64(len(data))
	if c.used+size > c.capacity {
		c.rejected.Add(1)
		return
	}
	c.entries[key] = data
	c.used += size
}

func (c *AsyncDataCache) Load(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return data, nil
	}
	// the shared fetch outlives any single caller; each caller only stops
	// waiting when its own ctx is done
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if data, ok := c.lookup(key); ok {
			c.hits.Add(1)
			return data, nil
		}
		c.misses.Add(1)
		data, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.insert(key, data)
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch starts loading key in the background. The returned channel yields
// the load error, if any, and is closed when the load finishes.
func (c *AsyncDataCache) Prefetch(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if _, err := c.Load(ctx, key, fetch); err != nil {
			done <- err
		}
	}()
	return done
}

// Contains reports whether key is currently cached.
func (c *AsyncDataCache) Contains(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

func (c *AsyncDataCache) Stats() Stats {
	c.mu.Lock()
	entries, used := len(c.entries), c.used
	c.mu.Unlock()
	return Stats{
		Entries:   entries,
		UsedBytes: used,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Rejected:  c.rejected.Load(),
		Allocated: c.alloc.CurrentAlloc(),
	}
}
