package engine

import (
	"time"

	"github.com/wqlab/screener/internal/contracts"
)

// frameKey identifies one cached frame: a stock on a rebalance date.
type frameKey struct {
	code string
	date string // yyyy-mm-dd
}

// FrameCache is the orchestrator-owned per-run factor cache. Lookups are
// keyed by (stock, date); a backtest resets it explicitly so cache
// lifetime is visible, never implicit. Bounded: when full, an insert
// evicts an arbitrary entry, which only costs a refetch.
type FrameCache struct {
	frames  map[frameKey]*contracts.Frame
	maxSize int
	hits    int
	misses  int
}

// NewFrameCache creates a cache holding at most maxSize frames.
func NewFrameCache(maxSize int) *FrameCache {
	if maxSize <= 0 {
		maxSize = 1 << 16
	}
	return &FrameCache{
		frames:  make(map[frameKey]*contracts.Frame),
		maxSize: maxSize,
	}
}

// Get returns the cached frame for the stock on the date.
func (c *FrameCache) Get(code string, date time.Time) (*contracts.Frame, bool) {
	frame, ok := c.frames[frameKey{code: code, date: dateKey(date)}]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return frame, ok
}

// Put stores a frame, evicting one entry when at capacity.
func (c *FrameCache) Put(code string, date time.Time, frame *contracts.Frame) {
	if len(c.frames) >= c.maxSize {
		for k := range c.frames {
			delete(c.frames, k)
			break
		}
	}
	c.frames[frameKey{code: code, date: dateKey(date)}] = frame
}

// Reset drops every entry. Called at the start of each backtest run.
func (c *FrameCache) Reset() {
	c.frames = make(map[frameKey]*contracts.Frame)
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	return len(c.frames)
}

// Stats returns hit and miss counts since the last reset.
func (c *FrameCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

func dateKey(date time.Time) string {
	return date.Format("2006-01-02")
}
