package vbr

import (
	"sync/atomic"
)

// Validator confirms that an epoch snapshot is still current. Implemented by
// Guard; storage cells parameterized over a different payload type accept it
// instead of a concrete guard.
type Validator interface {
	ValidateEpoch() error
}

// Guard is a session pinned to the epoch observed at its creation. It is bound
// to one Local and, like it, must stay on the goroutine that created it. It may
// be kept across several operations when long-lived pinning is desired, or
// created and dropped per logical operation.
type Guard[T any] struct {
	local *Local[T]
	epoch uint64
}

// Epoch returns the epoch snapshot the guard was created at.
func (g Guard[T]) Epoch() uint64 {
	return g.epoch
}

// Allocate pops a slot from the local cache and incarnates it at the guard's
// epoch. If the slot was retired at or after that epoch, some guard pinned at
// or before the retirement might still observe it, so reuse is unsafe: the slot
// goes back to the cache, the epoch clock is nudged forward to help progress,
// and ErrRetry is returned.
func (g Guard[T]) Allocate() (Shared[T], error) {
	slot := g.local.popAvail()
	header := slotAt(slot)
	if g.epoch <= atomic.LoadUint64(&header.retire) {
		g.local.returnAvail(slot)
		g.local.global.Advance(g.epoch)
		return Shared[T]{}, ErrRetry
	}

	atomic.StoreUint64(&header.birth, g.epoch)
	atomic.StoreUint64(&header.retire, NotRetired)
	return Shared[T]{
		ptr:   slot,
		birth: g.epoch,
	}, nil
}

// Retire stamps the slot's retirement epoch and files it for reuse. The caller
// must guarantee the slot is no longer reachable from any link. If the handle's
// birth is stale or the slot is already retired, a concurrent reuse or a
// duplicate retire has handled it and the call is a benign no-op.
//
// ErrRetry reports that the global epoch moved past the guard's snapshot while
// retiring; reads performed under this guard may be stale and the enclosing
// operation should be restarted.
func (g Guard[T]) Retire(shared Shared[T]) error {
	if shared.IsNull() {
		panic("attempted to retire a null pointer")
	}
	header := slotAt(shared.ptr)

	if atomic.LoadUint64(&header.birth) > shared.birth ||
		atomic.LoadUint64(&header.retire) != NotRetired {
		return nil
	}

	currEpoch := g.local.global.Epoch()
	atomic.StoreUint64(&header.retire, currEpoch)
	g.local.pushRetired(untagged(shared.ptr))
	if g.epoch < currEpoch {
		return ErrRetry
	}
	return nil
}

// ValidateEpoch succeeds only if the guard's snapshot still equals the live
// global epoch. It brackets read sequences whose correctness depends on no
// intervening reclamation.
func (g Guard[T]) ValidateEpoch() error {
	if g.epoch == g.local.global.Epoch() {
		return nil
	}
	return ErrRetry
}
