package ledger

import (
	"sync"

	"github.com/neonium/neond/pkg/chain"
)

// HeaderCache is a bounded FIFO of headers beyond the current persisted
// height — a backlog of headers received ahead of the blocks that fill
// them in. It does NOT evict: once full, Push rejects instead of dropping
// the oldest entry, giving the P2P layer a strict, observable backlog
// bound to throttle against rather than a window that silently forgets
// headers.
type HeaderCache struct {
	mu       sync.Mutex
	capacity int
	headers  []*chain.Header
}

// NewHeaderCache creates an empty cache bounded to capacity entries.
func NewHeaderCache(capacity int) *HeaderCache {
	return &HeaderCache{capacity: capacity}
}

// Push appends h to the backlog, or returns ErrHeaderCacheFull if the
// cache is already at capacity.
func (c *HeaderCache) Push(h *chain.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) >= c.capacity {
		return ErrHeaderCacheFull
	}
	c.headers = append(c.headers, h)
	return nil
}

// Front returns the oldest queued header without removing it, or nil if
// the backlog is empty.
func (c *HeaderCache) Front() *chain.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 {
		return nil
	}
	return c.headers[0]
}

// PopFront removes and returns the oldest queued header, the entry the
// ledger consumes once the matching full block persists.
func (c *HeaderCache) PopFront() *chain.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headers) == 0 {
		return nil
	}
	h := c.headers[0]
	c.headers = c.headers[1:]
	return h
}

// Len reports the current backlog depth.
func (c *HeaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.headers)
}
