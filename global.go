package vbr

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/outofforest/vbr/mem"
)

const minChunkSize = 4 * 1024 * 1024

// Config configures the engine.
type Config struct {
	// Capacity is the initial number of slots in the pool. The pool grows
	// on demand beyond it and never shrinks.
	Capacity uint64

	// UseHugePages tells the arena to map huge pages.
	UseHugePages bool
}

// New creates the global pool for reclaimable slots of type T. It is the only
// owner of the memory backing the slots; the returned deallocation function
// releases all of it at once and must not be called before every guard is done.
//
// T must not contain Go pointers. Slots live outside the Go heap and the
// garbage collector never sees them.
func New[T any](config Config) (*Global[T], func(), error) {
	if config.Capacity == 0 {
		return nil, nil, errors.New("capacity must be positive")
	}

	var data T
	slotSize := (slotHeaderSize + uint64(unsafe.Sizeof(data)) + mem.SlotAlignment - 1) /
		mem.SlotAlignment * mem.SlotAlignment

	chunkSize := uint64(minChunkSize)
	if blockSize := EntriesPerBag * slotSize; blockSize > chunkSize {
		chunkSize = blockSize
	}

	arena, deallocFunc, err := mem.NewArena(chunkSize, config.UseHugePages)
	if err != nil {
		return nil, nil, err
	}

	g := &Global[T]{
		arena:    arena,
		slotSize: slotSize,
	}

	numOfBags := (config.Capacity + EntriesPerBag - 1) / EntriesPerBag
	for range numOfBags {
		bagAddr, err := g.newFullBag()
		if err != nil {
			deallocFunc()
			return nil, nil, err
		}
		g.avail.push(bagAddr)
	}

	return g, deallocFunc, nil
}

// Global owns the epoch clock and the stack of available bags shared by all
// local caches for the engine's whole lifetime.
type Global[T any] struct {
	epoch uint64
	// Keep the heavily contended epoch word away from the stack head.
	_ [56]byte

	avail    bagStack
	arena    *mem.Arena
	slotSize uint64
	bags     uint64
}

// Epoch returns the current global epoch. Go's atomics are sequentially
// consistent, which covers the fence the algorithm requires on weakly-ordered
// architectures.
func (g *Global[T]) Epoch() uint64 {
	return atomic.LoadUint64(&g.epoch)
}

// Advance attempts a single forward step of the epoch clock. It succeeds only
// if the clock still equals expected, so the epoch never skips. On failure the
// observed value is returned and the caller decides whether to retry against it.
func (g *Global[T]) Advance(expected uint64) (uint64, bool) {
	if atomic.CompareAndSwapUint64(&g.epoch, expected, expected+1) {
		return expected + 1, true
	}
	return atomic.LoadUint64(&g.epoch), false
}

// Stats is a point-in-time sample of the pool.
type Stats struct {
	Epoch    uint64
	Bags     uint64
	Capacity uint64
	Mapped   uint64
}

// Stats samples the pool counters.
func (g *Global[T]) Stats() Stats {
	bags := atomic.LoadUint64(&g.bags)
	return Stats{
		Epoch:    g.Epoch(),
		Bags:     bags,
		Capacity: bags * EntriesPerBag,
		Mapped:   g.arena.Size(),
	}
}

// acquireBag pops a bag of available slots, growing the pool when the stack
// runs dry. Growth is unbounded and never reversed.
func (g *Global[T]) acquireBag() uint64 {
	for {
		if bagAddr, ok := g.avail.pop(); ok {
			return bagAddr
		}
		bagAddr, err := g.newFullBag()
		if err != nil {
			panic(err)
		}
		g.avail.push(bagAddr)
	}
}

// retireBag hands a full bag of retired slots straight onto the available
// stack. There is no bag-level safety gate on purpose: reuse safety is checked
// per slot at allocation time, which saves a second synchronization point.
func (g *Global[T]) retireBag(bagAddr uint64) {
	g.avail.push(bagAddr)
}

// emptyBag carves a bag container with no slots in it.
func (g *Global[T]) emptyBag() uint64 {
	p, err := g.arena.Allocate(uint64(unsafe.Sizeof(bag{})))
	if err != nil {
		panic(err)
	}
	return addrOf(p)
}

func (g *Global[T]) newFullBag() (uint64, error) {
	p, err := g.arena.Allocate(uint64(unsafe.Sizeof(bag{})))
	if err != nil {
		return 0, err
	}
	slots, err := g.arena.Allocate(EntriesPerBag * g.slotSize)
	if err != nil {
		return 0, err
	}

	b := (*bag)(p)
	for i := range uint64(EntriesPerBag) {
		b.entries[i] = addrOf(slots) + i*g.slotSize
	}
	b.count = EntriesPerBag

	atomic.AddUint64(&g.bags, 1)
	return addrOf(p), nil
}
