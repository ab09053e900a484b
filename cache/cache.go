package cache

import (
	"context"
	"sync"

	"split-harness-go/util/log"

	"github.com/apache/arrow/go/v17/arrow/memory"
)

/*
The cache package holds the memory and data-cache backends a task runs on. A
Provider owns at most one bounded AsyncDataCache, created lazily the first time
it is enabled, and tracks which backend is active. Toggling the active backend
never destroys the bounded instance.

A Provider is passed explicitly to whatever constructs a task. It is not safe
for fixtures that toggle it to run in parallel.
*/

////////////////////////////////////////////////////////////////////////////////

// Backend is what an executing task allocates from and reads split data
// through.
type Backend interface {
	Name() string
	Allocator() memory.Allocator
	// Load returns the bytes stored under key, calling fetch when they are not
	// cached. The returned slice must not be modified.
	Load(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error)
}

type passthrough struct{}

var defaultPassthrough Backend = passthrough{}

// Passthrough allocates from memory.DefaultAllocator and caches nothing.
func Passthrough() Backend {
	return defaultPassthrough
}

func (passthrough) Name() string                { return "passthrough" }
func (passthrough) Allocator() memory.Allocator { return memory.DefaultAllocator }
func (passthrough) Load(ctx context.Context, _ string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	return fetch(ctx)
}

// Provider switches between the passthrough backend and one lazily created
// bounded cache.
type Provider struct {
	mu      sync.Mutex
	bounded *AsyncDataCache
	active  Backend
}

func NewProvider() *Provider {
	return &Provider{active: Passthrough()}
}

// EnableBoundedCache installs the provider's bounded cache as the active
// backend, creating it with capacityBytes on first use. Later calls reuse the
// existing instance whatever capacity they ask for.
func (p *Provider) EnableBoundedCache(ctx context.Context, capacityBytes uint64) *AsyncDataCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bounded == nil {
		p.bounded = NewAsyncDataCache(memory.NewGoAllocator(), capacityBytes)
		log.Infow(ctx, "created bounded cache", "capacity", capacityBytes)
	} else if p.bounded.Capacity() != capacityBytes {
		log.Warnw(ctx, "bounded cache already exists, ignoring requested capacity",
			"capacity", p.bounded.Capacity(), "requested", capacityBytes)
	}
	p.active = p.bounded
	return p.bounded
}

// Disable reverts the active backend to passthrough.
func (p *Provider) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = Passthrough()
}

func (p *Provider) Active() Backend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Bounded returns the bounded cache, or nil if it was never enabled.
func (p *Provider) Bounded() *AsyncDataCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounded
}
