package mem

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/outofforest/photon"
)

// SlotAlignment is the alignment guaranteed for every region returned by the arena.
// Low bits of region addresses are free for tagging because of it.
const SlotAlignment = 8

// NewArena creates an arena handing out regions of anonymous mmapped memory.
// Regions live outside the Go heap, so their addresses may be stored in plain
// integers without keeping the garbage collector informed. Nothing is ever
// returned to the kernel before the deallocation function is called.
func NewArena(chunkSize uint64, useHugePages bool) (*Arena, func(), error) {
	a := &Arena{
		chunkSize:    chunkSize,
		useHugePages: useHugePages,
	}
	if err := a.grow(); err != nil {
		return nil, nil, err
	}
	return a, a.deallocate, nil
}

// Arena is a bump allocator over mmapped chunks. Allocation takes a mutex and
// maps a fresh chunk when the current one is exhausted, so it belongs on cold
// paths only. Individual regions are never freed.
type Arena struct {
	chunkSize    uint64
	useHugePages bool

	mu       sync.Mutex
	chunk    unsafe.Pointer
	offset   uint64
	unmapFns []func()
	size     uint64
}

// Allocate returns a zeroed region of the requested size.
func (a *Arena) Allocate(size uint64) (unsafe.Pointer, error) {
	size = (size + SlotAlignment - 1) / SlotAlignment * SlotAlignment
	if size > a.chunkSize {
		return nil, errors.Errorf("region of %d bytes exceeds chunk size %d", size, a.chunkSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.offset+size > a.chunkSize {
		if err := a.grow(); err != nil {
			return nil, err
		}
	}

	p := unsafe.Add(a.chunk, a.offset)
	a.offset += size
	return p, nil
}

// Size returns the total number of bytes mapped so far.
func (a *Arena) Size() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *Arena) grow() error {
	p, unmapFn, err := allocate(a.chunkSize, a.useHugePages)
	if err != nil {
		return err
	}
	a.chunk = p
	a.offset = 0
	a.size += a.chunkSize
	a.unmapFns = append(a.unmapFns, unmapFn)
	return nil
}

func (a *Arena) deallocate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, unmapFn := range a.unmapFns {
		unmapFn()
	}
	a.unmapFns = nil
	a.chunk = nil
	a.offset = a.chunkSize
}

// Bytes returns the byte slice backed by a region.
func Bytes(p unsafe.Pointer, size uint64) []byte {
	return photon.SliceFromPointer[byte](p, int(size))
}

func allocate(size uint64, useHugePages bool) (unsafe.Pointer, func(), error) {
	opts := unix.MAP_SHARED | unix.MAP_ANONYMOUS | unix.MAP_POPULATE
	if useHugePages {
		// When using huge pages, the size must be a multiple of the hugepage size.
		// Otherwise, munmap fails.
		opts |= unix.MAP_HUGETLB
	}
	dataP, err := unix.MmapPtr(-1, 0, nil, uintptr(size), unix.PROT_READ|unix.PROT_WRITE, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "memory allocation failed")
	}

	return dataP, func() {
		// mmap might allocate more memory because it is always a multiple of the page size.
		// We need to provide that size to the munmap, not the original size we used for allocation,
		// otherwise error is returned and memory is not deallocated.
		// For hugepages there is no function returning the page size, but only two cases are
		// possible: 2MB or 1GB. So we simply try both.
		if useHugePages {
			// 2MB hugepages.
			if err := unmap(dataP, uintptr(size), 2*1024*1024); err == nil {
				return
			}

			// 1GB hugepages.
			_ = unmap(dataP, uintptr(size), 1024*1024*1024)

			return
		}

		// Standard pages.
		_ = unmap(dataP, uintptr(size), uintptr(os.Getpagesize()))
	}, nil
}

func unmap(ptr unsafe.Pointer, size, pageSize uintptr) error {
	return unix.MunmapPtr(ptr, (size+pageSize-1)/pageSize*pageSize)
}
