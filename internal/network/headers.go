package network

import (
	"context"
	"slices"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// ReorgDepth is how far below the tip cached headers are re-checked.
const ReorgDepth = 100

// HeaderCache keeps the headers of blocks holding wallet transactions and
// serves their timestamps to the ledger.
type HeaderCache struct {
	server Server

	mu       sync.RWMutex
	byHeight map[int32]*wire.BlockHeader
}

func NewHeaderCache(server Server) *HeaderCache {
	return &HeaderCache{server: server, byHeight: make(map[int32]*wire.BlockHeader)}
}

// HeaderTimestamp implements ledger.HeaderSource.
func (c *HeaderCache) HeaderTimestamp(height int32) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hdr, ok := c.byHeight[height]
	if !ok {
		return 0, false
	}
	return hdr.Timestamp.Unix(), true
}

// Get returns the header at height, fetching it when not cached.
func (c *HeaderCache) Get(ctx context.Context, height int32) (*wire.BlockHeader, error) {
	c.mu.RLock()
	hdr, ok := c.byHeight[height]
	c.mu.RUnlock()
	if ok {
		return hdr, nil
	}

	hdr, err := c.server.Header(ctx, height)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byHeight[height] = hdr
	c.mu.Unlock()
	return hdr, nil
}

// Refresh re-fetches cached headers near tip and drops those above it. It
// returns the lowest height whose header changed.
func (c *HeaderCache) Refresh(ctx context.Context, tip int32) (int32, bool, error) {
	c.mu.RLock()
	heights := make([]int32, 0, len(c.byHeight))
	for h := range c.byHeight {
		if h > tip-ReorgDepth {
			heights = append(heights, h)
		}
	}
	c.mu.RUnlock()
	slices.Sort(heights)

	for _, h := range heights {
		if h > tip {
			c.drop(h)
			return h, true, nil
		}
		fresh, err := c.server.Header(ctx, h)
		if err != nil {
			return 0, false, err
		}
		c.mu.Lock()
		old := c.byHeight[h]
		c.byHeight[h] = fresh
		c.mu.Unlock()
		if old != nil && old.BlockHash() != fresh.BlockHash() {
			c.drop(h + 1)
			return h, true, nil
		}
	}
	return 0, false, nil
}

// drop forgets every header at or above height.
func (c *HeaderCache) drop(height int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.byHeight {
		if h >= height {
			delete(c.byHeight, h)
		}
	}
}
