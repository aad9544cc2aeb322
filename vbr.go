// Package vbr implements version-based reclamation for lock-free data structures.
//
// Memory for nodes is carved from an mmapped arena and never handed back to an
// allocator. Instead, every slot carries the epoch at which its current
// incarnation was born and the epoch at which it was retired. Readers validate
// optimistically, after the fact, that a slot they dereferenced still carries
// the birth version they expected. A mismatch means the slot has been recycled
// in the meantime and the whole operation must be restarted. No read-side
// hazard publication and no tracing is involved.
package vbr

import "github.com/pkg/errors"

const (
	// EntriesPerBag is the number of slots transferred between the thread-local
	// caches and the global pool in one batch.
	EntriesPerBag = 64

	// InitBagsPerLocal is the number of bags prefetched into a local cache.
	InitBagsPerLocal = 16

	// NotRetired marks a slot incarnation that has not been retired yet.
	NotRetired = ^uint64(0)
)

// ErrRetry is returned when an operation raced with an epoch advance or a slot
// reincarnation. It is a signal to restart the enclosing logical operation from
// a consistent starting point, never a user-visible failure.
var ErrRetry = errors.New("stale epoch")
