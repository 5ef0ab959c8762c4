package cache

import (
	"sync"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
)

// Scatter cycles through a fixed set of expiry offsets.
// Construct one per process and share it between every long-lived cache.
type Scatter struct {
	mu      sync.Mutex
	offsets []time.Duration
	pos     int
}

// NewScatter creates a Scatter over the given offsets in seconds. An empty set
// falls back to core.DefaultScatterSeconds.
func NewScatter(seconds []int) *Scatter {
	if len(seconds) == 0 {
		seconds = core.DefaultScatterSeconds
	}
	offsets := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		offsets[i] = time.Duration(s) * time.Second
	}
	return &Scatter{offsets: offsets}
}

// Next returns the current offset and advances by exactly one position.
func (s *Scatter) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.offsets[s.pos]
	s.pos = (s.pos + 1) % len(s.offsets)
	return d
}

// TTL returns base adjusted by the next offset.
func (s *Scatter) TTL(base time.Duration) time.Duration {
	return base + s.Next()
}
