package api

import "unsafe"

// Mallocer interface for custom memory management.
type Mallocer interface {
	// Alloc allocate a block of `n` bytes. Allocated memory is always
	// aligned to the allocator's granularity.
	Alloc(n int64) unsafe.Pointer

	// Allocalign allocate a block of `n` bytes whose address is a
	// multiple of `align`. `align` shall be a power of 2.
	Allocalign(n, align int64) unsafe.Pointer

	// Free block back to arena/pool.
	Free(ptr unsafe.Pointer)

	// Release arena, all its blocks and resources.
	Release()

	// Info of memory accounting for this allocator.
	Info() (capacity, heap, alloc, overhead int64)

	// Validate allocator invariants, panic on corruption.
	Validate()
}

// MemorySource supplies raw memory regions to allocators. Regions are
// identified by the byte-slice returned from Alloc.
type MemorySource interface {
	// Alloc a region of exactly `size` bytes.
	Alloc(size int64) ([]byte, error)

	// Free a region obtained from Alloc.
	Free(region []byte)

	// Advise the host about the expected access pattern on a
	// sub-range of the region. Can be a no-op.
	Advise(region []byte, advice Advice) error

	// Protect change the protection bits on the region. Can be a
	// no-op when the host cannot express it.
	Protect(region []byte, prot Protection) error
}
