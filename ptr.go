package vbr

import (
	"unsafe"
)

// Atomic words of the engine pack a monotonic stamp together with an address.
// Go has no 128-bit atomics, so the layout is the one used by the runtime's
// lfstack: the low 48 bits hold the address, the high 16 bits hold the stamp
// truncated modulo 2^16. User-space addresses fit in 48 bits on the supported
// platforms, and 2^16 reuses of the same address between a read and the
// corresponding CAS are not a practical concern.
const (
	addrBits = 48
	addrMask = (uint64(1) << addrBits) - 1
)

func pack(stamp, addr uint64) uint64 {
	return stamp<<addrBits | addr&addrMask
}

func unpack(word uint64) (stamp, addr uint64) {
	return word >> addrBits, word & addrMask
}

// Slots are 8-byte aligned, leaving the low 3 bits of their addresses free for
// flags such as logical-deletion marks.
const tagMask = 0x7

func untagged(addr uint64) uint64 {
	return addr &^ tagMask
}

func tagged(addr, tag uint64) uint64 {
	return addr&^tagMask | tag&tagMask
}

// slotHeader precedes the payload in every reclaimable slot. Both stamps are
// accessed atomically.
type slotHeader struct {
	birth  uint64
	retire uint64
}

const slotHeaderSize = uint64(unsafe.Sizeof(slotHeader{}))

func slotAt(addr uint64) *slotHeader {
	return (*slotHeader)(unsafe.Pointer(uintptr(untagged(addr))))
}

func dataAt[T any](addr uint64) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(uintptr(untagged(addr))), slotHeaderSize))
}

func bagAt(addr uint64) *bag {
	return (*bag)(unsafe.Pointer(uintptr(addr)))
}

func addrOf(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}
