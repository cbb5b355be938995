package openstate

import (
	"sync"

	"github.com/kudingc/nfs41client/internal/metrics"
)

// DefaultQuarantineCapacity is the default size of the FIFO of
// recently-freed handles consulted by the getattr-after-close workaround.
const DefaultQuarantineCapacity = 2048

// DefaultRecentlyDeletedCapacity is the default size of the
// "recently-deleted" diagnostic ring.
const DefaultRecentlyDeletedCapacity = 128

// handleRing is a bounded FIFO of Handle values, consulted by handle
// equality under a shared reader-writer lock. Neither ring is a
// correctness mechanism -- Registry.Lookup already rejects stale handles
// safely by generation mismatch -- they exist solely to make
// kernel<->daemon ordering bugs observable in logs instead of silently
// falling through as "not found".
type handleRing struct {
	mu       sync.RWMutex
	capacity int
	entries  []Handle
	next     int
	full     bool
}

func newHandleRing(capacity int) *handleRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &handleRing{capacity: capacity, entries: make([]Handle, capacity)}
}

// Add records h, evicting the oldest entry once the ring is full.
func (r *handleRing) Add(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = h
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Len reports how many entries the ring currently holds.
func (r *handleRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.capacity
	}
	return r.next
}

// Contains reports whether h was recorded and not yet evicted.
func (r *handleRing) Contains(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limit := r.next
	if r.full {
		limit = r.capacity
	}
	for i := 0; i < limit; i++ {
		if r.entries[i] == h {
			return true
		}
	}
	return false
}

// Diagnostics is the process-wide pair of quarantine/recently-deleted
// rings. It must be explicitly constructed (no package-level singleton)
// and is entirely optional: a nil *Diagnostics disables both rings, the
// Go analogue of compiling out a diagnostic feature flag.
type Diagnostics struct {
	quarantine    *handleRing
	recentlyFreed *handleRing
}

// NewDiagnostics builds the quarantine and recently-deleted rings with
// the given capacities (0 selects the package defaults).
func NewDiagnostics(quarantineCap, recentlyDeletedCap int) *Diagnostics {
	if quarantineCap <= 0 {
		quarantineCap = DefaultQuarantineCapacity
	}
	if recentlyDeletedCap <= 0 {
		recentlyDeletedCap = DefaultRecentlyDeletedCapacity
	}
	return &Diagnostics{
		quarantine:    newHandleRing(quarantineCap),
		recentlyFreed: newHandleRing(recentlyDeletedCap),
	}
}

// NoteFreed records h as freed in both rings. Safe to call on a nil
// *Diagnostics (no-op), so callers don't need to branch on whether the
// workaround is enabled.
func (d *Diagnostics) NoteFreed(h Handle) {
	if d == nil {
		return
	}
	d.quarantine.Add(h)
	d.recentlyFreed.Add(h)
	metrics.SetQuarantineSize(d.quarantine.Len())
}

// IsQuarantined reports whether h was recently freed and is still held
// in the quarantine FIFO — i.e. a late upcall (typically GETATTR) raced
// the CLOSE that freed this open-state and should be rejected with a
// specific diagnostic rather than a generic "unknown handle".
func (d *Diagnostics) IsQuarantined(h Handle) bool {
	if d == nil {
		return false
	}
	return d.quarantine.Contains(h)
}

// WasRecentlyDeleted is the smaller, purely-diagnostic ring used to
// annotate ordering-bug log lines; it is not consulted for correctness.
func (d *Diagnostics) WasRecentlyDeleted(h Handle) bool {
	if d == nil {
		return false
	}
	return d.recentlyFreed.Contains(h)
}
