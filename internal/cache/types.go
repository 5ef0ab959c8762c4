// Package cache provides the in-process caches that sit in front of the pump.
//
// # Overview
//
// Every device query is slow, so each public pump operation is backed by a
// named Cache. Two policies are supported:
//
//   - TTL: bounded (default 128 entries) with a fixed time-to-live. Used for
//     schedules and settings that change rarely.
//   - LRU: bounded by capacity only, typically 1. Used for time-windowed
//     queries where a polling loop repeatedly asks the same question.
//
// # Scattered Expiry
//
// Long-lived caches created at the same moment with the same TTL would all
// expire together, so one polling cycle would pay for every refetch at once.
// A Scatter hands each long-lived cache a different offset from a short
// cyclic set when it is constructed:
//
//	ttl := scatter.TTL(24 * time.Hour) // 24h-49s, 24h-42s, ... then wraps
//
// # Introspection
//
// Caches register themselves with a Registry under their public name. The
// registry produces snapshots of hit/miss counters, clears every cache at once,
// and feeds the Prometheus Collector.
package cache

import (
	"encoding/json"
	"time"
)

// Policy identifies the eviction policy of a cache.
type Policy string

const (
	PolicyTTL Policy = "ttl"
	PolicyLRU Policy = "lru"
)

// Info is a point-in-time view of a cache's statistics.
type Info struct {
	Name     string        `json:"name"`
	Policy   Policy        `json:"policy"`
	Hits     uint64        `json:"hits"`
	Misses   uint64        `json:"misses"`
	Size     int           `json:"size"`
	Capacity int           `json:"capacity"`
	TTL      time.Duration `json:"-"`
}

// MarshalJSON renders TTL as a duration string and omits it for LRU caches.
func (i Info) MarshalJSON() ([]byte, error) {
	type alias Info
	out := struct {
		alias
		TTL string `json:"ttl,omitempty"`
	}{alias: alias(i)}
	if i.TTL > 0 {
		out.TTL = i.TTL.String()
	}
	return json.Marshal(out)
}

// Introspector is implemented by every cache that can be registered.
type Introspector interface {
	Name() string
	Info() Info
	Clear()
}
