package vbr

import (
	"sync/atomic"
)

// Shared is a pointer handle: a possibly tagged slot address together with the
// birth epoch the holder believes is current. Two handles are equal (==) only
// if both the address, including tag bits, and the birth match. The zero value
// is a null handle.
type Shared[T any] struct {
	ptr   uint64
	birth uint64
}

// Deref resolves the payload without checking the slot's live birth. The caller
// must know the handle is non-null and validated.
func (s Shared[T]) Deref() *T {
	return dataAt[T](s.ptr)
}

// AsRef resolves the payload, or returns nil for a null handle.
func (s Shared[T]) AsRef() *T {
	if untagged(s.ptr) == 0 {
		return nil
	}
	return dataAt[T](s.ptr)
}

// IsNull reports whether the handle is null. A tagged null is not null.
func (s Shared[T]) IsNull() bool {
	return s.ptr == 0
}

// Tag returns the tag bits. It also re-checks that the slot still carries the
// handle's birth, returning ErrRetry if the slot has been recycled since the
// handle was produced.
func (s Shared[T]) Tag() (uint64, error) {
	tag := s.ptr & tagMask
	if addr := untagged(s.ptr); addr != 0 {
		if atomic.LoadUint64(&slotAt(addr).birth) != s.birth {
			return 0, ErrRetry
		}
	}
	return tag, nil
}

// WithTag returns the same handle tagged with tag.
func (s Shared[T]) WithTag(tag uint64) Shared[T] {
	return Shared[T]{
		ptr:   tagged(s.ptr, tag),
		birth: s.birth,
	}
}

// Raw returns the tagged slot address.
func (s Shared[T]) Raw() uint64 {
	return s.ptr
}
