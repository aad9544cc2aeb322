package vbr

// NewLocal creates a cache bound to the calling goroutine. It prefetches
// InitBagsPerLocal bags of available slots and starts an empty retired bag.
func NewLocal[T any](global *Global[T]) *Local[T] {
	l := &Local[T]{
		global:  global,
		avail:   make([]uint64, 0, InitBagsPerLocal),
		retired: make([]uint64, 0, InitBagsPerLocal),
	}
	for range InitBagsPerLocal {
		l.avail = append(l.avail, global.acquireBag())
	}
	l.retired = append(l.retired, global.emptyBag())
	return l
}

// Local amortizes contention on the global pool with per-goroutine bag queues.
// It must never be shared between goroutines.
type Local[T any] struct {
	global *Global[T]

	avail   []uint64
	retired []uint64
}

// Guard opens a session pinned to the current epoch. Pinning is purely
// informational bookkeeping, creating a guard is just an epoch load.
func (l *Local[T]) Guard() Guard[T] {
	return Guard[T]{
		local: l,
		epoch: l.global.Epoch(),
	}
}

// popAvail returns a slot address to allocate from. Exhausted bags are recycled
// as empty retired-bag containers instead of being freed. The queue is refilled
// from the global pool when it runs out, so this never fails.
func (l *Local[T]) popAvail() uint64 {
	for {
		for len(l.avail) > 0 {
			bagAddr := l.avail[0]
			if slot, ok := bagAt(bagAddr).pop(); ok {
				return slot
			}
			l.avail = l.avail[1:]
			l.retired = append(l.retired, bagAddr)
		}

		// Acquire some fresh bags from the global pool and try again.
		for len(l.avail) < InitBagsPerLocal {
			l.avail = append(l.avail, l.global.acquireBag())
		}
	}
}

// returnAvail puts back a slot popped by the current allocation attempt.
func (l *Local[T]) returnAvail(slot uint64) {
	if len(l.avail) == 0 {
		panic("available bag queue is empty after an allocation")
	}
	bagAt(l.avail[0]).push(slot)
}

// pushRetired files a retired slot. A full retired bag is handed, whole,
// straight onto the global available stack. Reuse safety of its slots is
// re-checked at allocation time, not here.
func (l *Local[T]) pushRetired(slot uint64) {
	for len(l.retired) > 0 {
		bagAddr := l.retired[0]
		if bagAt(bagAddr).push(slot) {
			return
		}
		l.retired = l.retired[1:]
		l.global.retireBag(bagAddr)
	}

	bagAddr := l.global.emptyBag()
	bagAt(bagAddr).push(slot)
	l.retired = append(l.retired, bagAddr)
}
