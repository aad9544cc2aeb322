package vbr

// bag is a fixed-capacity batch of slot addresses, the unit of transfer between
// local caches and the global pool. Entries are manipulated only by the thread
// owning the bag or after the bag has been popped from the global stack, so
// they need no atomicity. The next word is a packed (stamp, address) pair
// written while the bag is being linked into the global stack.
type bag struct {
	next  uint64
	count uint64

	entries [EntriesPerBag]uint64
}

// push files a slot address into the bag. It fails when the bag is full,
// forcing the caller to rotate to a fresh bag instead of growing this one.
func (b *bag) push(slot uint64) bool {
	if b.count == EntriesPerBag {
		return false
	}
	b.entries[b.count] = slot
	b.count++
	return true
}

func (b *bag) pop() (uint64, bool) {
	if b.count == 0 {
		return 0, false
	}
	b.count--
	return b.entries[b.count], true
}
