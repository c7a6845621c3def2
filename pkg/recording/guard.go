package recording

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	// DefaultHighWater is the retained-chunk count that triggers eviction.
	DefaultHighWater = 100

	// DefaultLowWater is the count eviction trims down to. The gap between
	// the two marks is hysteresis: once past the cap we do not evict on
	// every single addition.
	DefaultLowWater = 90
)

// MemoryGuard owns the ordered chunk list and bounds it: exceeding the
// high-water mark evicts oldest-first down to the low-water mark, revoking
// each evicted chunk's blob handles before dropping the record. The bound
// is enforced on every addition, so memory never grows unbounded even
// under bursty inserts.
type MemoryGuard struct {
	locker    sync.Mutex
	chunks    []ProcessedChunk
	highWater int
	lowWater  int
	revoke    func(url string)
}

func NewMemoryGuard(highWater, lowWater int, revoke func(url string)) *MemoryGuard {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	if lowWater <= 0 || lowWater >= highWater {
		lowWater = highWater * DefaultLowWater / DefaultHighWater
	}
	if revoke == nil {
		revoke = func(string) {}
	}
	return &MemoryGuard{
		highWater: highWater,
		lowWater:  lowWater,
		revoke:    revoke,
	}
}

// Add appends the chunk and evicts if the total exceeds the high-water
// mark.
func (g *MemoryGuard) Add(ctx context.Context, c ProcessedChunk) {
	g.locker.Lock()
	defer g.locker.Unlock()

	g.chunks = append(g.chunks, c)
	if len(g.chunks) <= g.highWater {
		return
	}

	evictCount := len(g.chunks) - g.lowWater
	logger.Debugf(ctx, "chunk overflow: %d retained, evicting the oldest %d", len(g.chunks), evictCount)
	for _, evicted := range g.chunks[:evictCount] {
		g.revokeChunkLocked(evicted)
	}
	remaining := make([]ProcessedChunk, len(g.chunks)-evictCount)
	copy(remaining, g.chunks[evictCount:])
	g.chunks = remaining
}

// Remove drops the chunk with exactly the given id (no prefix matching)
// and revokes its handles. It reports whether a chunk was removed.
func (g *MemoryGuard) Remove(id string) bool {
	g.locker.Lock()
	defer g.locker.Unlock()
	for idx, c := range g.chunks {
		if c.ID != id {
			continue
		}
		g.revokeChunkLocked(c)
		g.chunks = append(g.chunks[:idx], g.chunks[idx+1:]...)
		return true
	}
	return false
}

// Chunks returns a copy of the retained chunk list, oldest first.
func (g *MemoryGuard) Chunks() []ProcessedChunk {
	g.locker.Lock()
	defer g.locker.Unlock()
	out := make([]ProcessedChunk, len(g.chunks))
	copy(out, g.chunks)
	return out
}

func (g *MemoryGuard) Len() int {
	g.locker.Lock()
	defer g.locker.Unlock()
	return len(g.chunks)
}

// Clear evicts everything.
func (g *MemoryGuard) Clear() {
	g.locker.Lock()
	defer g.locker.Unlock()
	for _, c := range g.chunks {
		g.revokeChunkLocked(c)
	}
	g.chunks = nil
}

func (g *MemoryGuard) revokeChunkLocked(c ProcessedChunk) {
	if c.ProcessedURL != "" {
		g.revoke(c.ProcessedURL)
	}
	if c.OriginalURL != "" {
		g.revoke(c.OriginalURL)
	}
}
