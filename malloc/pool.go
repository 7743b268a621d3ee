// Functions and methods are not thread safe.

package malloc

import "unsafe"

import "github.com/ov-l/ouly/api"
import "github.com/ov-l/ouly/lib"
import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/golog"

// Pool fixed-slot allocator. Pages obtained from the memory source are
// sliced into `pool.atom.count` slots of `pool.atom.size` bytes, requests are
// served as runs of consecutive atoms within one page. Sub-atom
// requests round up to one atom.
type Pool struct {
	// 64-bit aligned stats
	mallocated int64

	atomsize  int64
	atomcount int64
	pagesize  int64
	retain    bool
	source    api.MemorySource
	head      *page
	npages    int64
	logprefix string
}

// page fixed array of atoms with a free-slot bitmap, one bit per atom.
type page struct {
	base      []byte
	bitmap    []uint8
	freecount int64
	next      *page
}

// NewPool create a pool allocator, geometry picked up from "pool."
// settings in `setts`.
func NewPool(setts s.Settings) *Pool {
	atomsize := setts.Int64("pool.atom.size")
	if lib.Ispowerof2(atomsize) == false {
		// round up to the next power of 2.
		size := int64(1)
		for size < atomsize {
			size <<= 1
		}
		atomsize = size
	}
	atomcount := setts.Int64("pool.atom.count")
	if (atomcount & 0x7) != 0 {
		panicerr("atom.count %v should be multiple of 8", atomcount)
	}
	pool := &Pool{
		atomsize:  atomsize,
		atomcount: atomcount,
		pagesize:  atomsize * atomcount,
		retain:    setts.Bool("pool.retain"),
		source:    newsource(setts.String("allocator")),
		logprefix: "malloc.pool",
	}
	return pool
}

//---- operations

// Alloc a run of consecutive atoms covering `n` bytes. Panics with
// ErrorOutofMemory when the memory source cannot supply a fresh page.
func (pool *Pool) Alloc(n int64) unsafe.Pointer {
	ptr, err := pool.Allocx(n)
	if err != nil {
		panic(err)
	}
	return ptr
}

// Allocalign allocate `n` bytes rounded up to `align`. Alignment is
// capped at the atom size, returned pointers sit on the atom grid of
// their page.
func (pool *Pool) Allocalign(n, align int64) unsafe.Pointer {
	if align <= 0 || (align&(align-1)) != 0 {
		panicerr("alignment %v is not a power of 2", align)
	}
	if align > pool.atomsize {
		align = pool.atomsize
	}
	return pool.Alloc(lib.Roundup(n, align))
}

// Allocx allocate `n` bytes, error return variant.
func (pool *Pool) Allocx(n int64) (unsafe.Pointer, error) {
	if n < 0 {
		panicerr("Alloc size %v", n)
	} else if n == 0 {
		return unsafe.Pointer(&zerobase[0]), nil
	}
	k := lib.Ceil(n, pool.atomsize)
	if k > pool.atomcount {
		fmsg := "Alloc size %v exceeds page capacity %v"
		panicerr(fmsg, n, pool.pagesize)
	}
	for pg := pool.head; pg != nil; pg = pg.next {
		if pg.freecount < k {
			continue
		}
		if slot, ok := pg.findrun(k, pool.atomcount); ok {
			return pool.commit(pg, slot, k), nil
		}
	}
	pg, err := pool.newpage()
	if err != nil {
		return nil, err
	}
	slot, _ := pg.findrun(k, pool.atomcount)
	return pool.commit(pg, slot, k), nil
}

// Free a run of atoms covering `n` bytes starting at ptr, `n` shall
// match the size passed to Alloc.
func (pool *Pool) Free(ptr unsafe.Pointer, n int64) {
	if ptr == nil {
		panicerr("pool.Free(): nil pointer")
	} else if ptr == unsafe.Pointer(&zerobase[0]) {
		return
	}
	addr := uintptr(ptr)
	var prev *page
	for pg := pool.head; pg != nil; prev, pg = pg, pg.next {
		base := uintptr(unsafe.Pointer(&pg.base[0]))
		if addr < base || addr >= base+uintptr(pool.pagesize) {
			continue
		}
		diff := int64(addr - base)
		if (diff % pool.atomsize) != 0 {
			panicerr("pool.Free(): unaligned pointer: %x,%v", diff, pool.atomsize)
		}
		slot, k := diff/pool.atomsize, lib.Ceil(maxint64(n, 1), pool.atomsize)
		for i := int64(0); i < k; i++ {
			q, r := (slot+i)>>3, uint8((slot+i)&0x7)
			if lib.Bit8(pg.bitmap[q]).Isset(r) {
				panicerr("pool.Free(): slot %v already free", slot+i)
			}
			pg.bitmap[q] = lib.Bit8(pg.bitmap[q]).Setbit(r)
		}
		pg.freecount += k
		pool.mallocated -= k * pool.atomsize
		// release fully free pages, keeping at least one.
		if pg.freecount == pool.atomcount && pool.npages > 1 &&
			pool.retain == false {
			if prev == nil {
				pool.head = pg.next
			} else {
				prev.next = pg.next
			}
			pool.npages--
			pool.source.Free(pg.base)
		}
		return
	}
	panicerr("pool.Free(): pointer %x outside every page", addr)
}

// Release the pool and all its pages.
func (pool *Pool) Release() {
	for pg := pool.head; pg != nil; pg = pg.next {
		pool.source.Free(pg.base)
	}
	pool.head, pool.npages, pool.mallocated = nil, 0, 0
	log.Infof("%v released\n", pool.logprefix)
}

//---- statistics and maintenance

// Info of memory accounting for this pool, capacity equals heap.
func (pool *Pool) Info() (capacity, heap, alloc, overhead int64) {
	heap = pool.npages * pool.pagesize
	overhead = pool.npages * (int64(pool.atomcount/8) + 48)
	return heap, heap, pool.mallocated, overhead
}

// Validate pool invariants, panic on corruption.
func (pool *Pool) Validate() {
	for pg := pool.head; pg != nil; pg = pg.next {
		nfree := int64(0)
		for _, byt := range pg.bitmap {
			nfree += int64(lib.Bit8(byt).Ones())
		}
		if nfree != pg.freecount {
			fmsg := "page freecount %v, bitmap says %v"
			panicerr(fmsg, pg.freecount, nfree)
		}
	}
}

//---- local functions

func (pool *Pool) newpage() (*page, error) {
	base, err := pool.source.Alloc(pool.pagesize)
	if err != nil {
		return nil, ErrorOutofMemory
	}
	pg := &page{
		base:      base,
		bitmap:    make([]uint8, pool.atomcount/8),
		freecount: pool.atomcount,
		next:      pool.head,
	}
	for i := range pg.bitmap {
		pg.bitmap[i] = 0xff
	}
	pool.head = pg
	pool.npages++
	return pg, nil
}

func (pool *Pool) commit(pg *page, slot, k int64) unsafe.Pointer {
	for i := int64(0); i < k; i++ {
		q, r := (slot+i)>>3, uint8((slot+i)&0x7)
		pg.bitmap[q] = lib.Bit8(pg.bitmap[q]).Clearbit(r)
	}
	pg.freecount -= k
	pool.mallocated += k * pool.atomsize
	return unsafe.Pointer(&pg.base[slot*pool.atomsize])
}

// findrun scan the bitmap for `k` consecutive free slots.
func (pg *page) findrun(k, atomcount int64) (int64, bool) {
	run, start := int64(0), int64(0)
	for slot := int64(0); slot < atomcount; slot++ {
		q, r := slot>>3, uint8(slot&0x7)
		if lib.Bit8(pg.bitmap[q]).Isset(r) {
			if run == 0 {
				start = slot
			}
			if run++; run == k {
				return start, true
			}
		} else {
			run = 0
		}
	}
	return -1, false
}
