package vbr

import (
	"sync/atomic"
)

// VerAtomic is a mutable, concurrently updated link a data structure embeds.
// The link is a single packed word combining a monotonic stamp with a tagged
// slot address; both sides of every CAS compose the stamp as the maximum of the
// owner's and the target's birth, so a racing writer with a newer birth always
// wins ties deterministically. The zero value is a null link.
type VerAtomic[T any] struct {
	link uint64
}

// Load reads the link and captures the target slot's live birth, then validates
// the guard. A guard that went stale mid-read fails the whole operation.
func (v *VerAtomic[T]) Load(g Guard[T]) (Shared[T], error) {
	result := v.LoadUnchecked(g)
	if err := g.ValidateEpoch(); err != nil {
		return Shared[T]{}, err
	}
	return result, nil
}

// LoadUnchecked reads the link without validating the guard. The returned
// handle must not be trusted until the guard is validated.
func (v *VerAtomic[T]) LoadUnchecked(_ Guard[T]) Shared[T] {
	_, ptr := unpack(atomic.LoadUint64(&v.link))
	var birth uint64
	if addr := untagged(ptr); addr != 0 {
		birth = atomic.LoadUint64(&slotAt(addr).birth)
	}
	return Shared[T]{
		ptr:   ptr,
		birth: birth,
	}
}

// CompareExchange swaps current for new. owner is the handle of the slot
// embedding this link; its birth takes part in the stamp composition on both
// sides of the CAS.
func (v *VerAtomic[T]) CompareExchange(owner, current, newS Shared[T]) bool {
	curr := pack(max(owner.birth, current.birth), current.ptr)
	next := pack(max(owner.birth, newS.birth), newS.ptr)
	return atomic.CompareAndSwapUint64(&v.link, curr, next)
}

// Nullify resets the link of a privately owned slot to a tagged null stamped
// with the owner's birth. The owner must be unpublished or logically exclusive;
// a race here is a contract violation.
func (v *VerAtomic[T]) Nullify(owner Shared[T], tag uint64) Shared[T] {
	prev := atomic.LoadUint64(&v.link)
	result := Shared[T]{
		ptr:   tagged(0, tag),
		birth: owner.birth,
	}
	if !atomic.CompareAndSwapUint64(&v.link, prev, pack(result.birth, result.ptr)) {
		panic("nullify raced with a concurrent writer")
	}
	return result
}

// Entry is a write-once, read-many anchor to a slot, typically the head of a
// data structure pointing at a sentinel node.
type Entry[T any] struct {
	link uint64
}

// NewEntry anchors init.
func NewEntry[T any](init Shared[T]) Entry[T] {
	return Entry[T]{
		link: init.Raw(),
	}
}

// Load captures the anchored slot's live birth and validates the guard.
func (e *Entry[T]) Load(g Guard[T]) (Shared[T], error) {
	ptr := e.link
	var birth uint64
	if addr := untagged(ptr); addr != 0 {
		birth = atomic.LoadUint64(&slotAt(addr).birth)
		if err := g.ValidateEpoch(); err != nil {
			return Shared[T]{}, err
		}
	}
	return Shared[T]{
		ptr:   ptr,
		birth: birth,
	}, nil
}

// Scalar constrains payload fields storable in an ImmAtomic.
type Scalar interface {
	~uint64
}

// NewImmAtomic creates a field holding value.
func NewImmAtomic[T Scalar](value T) ImmAtomic[T] {
	return ImmAtomic[T]{
		data: uint64(value),
	}
}

// ImmAtomic is an epoch-validated scalar field of a reclaimable slot. It is
// written only while its slot is privately owned and read concurrently under
// the same validate-after-read discipline as the links.
type ImmAtomic[T Scalar] struct {
	data uint64
}

// Get returns the value after validating the session against the live epoch.
func (a *ImmAtomic[T]) Get(v Validator) (T, error) {
	value := atomic.LoadUint64(&a.data)
	if err := v.ValidateEpoch(); err != nil {
		return 0, err
	}
	return T(value), nil
}

// Set stores the value.
func (a *ImmAtomic[T]) Set(value T) {
	atomic.StoreUint64(&a.data, uint64(value))
}
