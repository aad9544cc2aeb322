package vbr

import (
	"sync/atomic"
)

// bagStack is a lock-free stack of bags. The head is a single packed
// (stamp, address) word. The stamp is incremented on every successful push, so
// two logically different pushes of the same recycled bag address are never
// confused as the same CAS target even though bag addresses are reused
// endlessly. The zero value is an empty stack.
type bagStack struct {
	head uint64
}

func (s *bagStack) push(bagAddr uint64) {
	b := bagAt(bagAddr)
	for {
		word := atomic.LoadUint64(&s.head)
		stamp, _ := unpack(word)
		atomic.StoreUint64(&b.next, word)
		if atomic.CompareAndSwapUint64(&s.head, word, pack(stamp+1, bagAddr)) {
			return
		}
	}
}

func (s *bagStack) pop() (uint64, bool) {
	for {
		word := atomic.LoadUint64(&s.head)
		_, bagAddr := unpack(word)
		if bagAddr == 0 {
			return 0, false
		}
		next := atomic.LoadUint64(&bagAt(bagAddr).next)
		if atomic.CompareAndSwapUint64(&s.head, word, next) {
			atomic.StoreUint64(&bagAt(bagAddr).next, 0)
			return bagAddr, true
		}
	}
}
