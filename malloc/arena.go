package malloc

import "unsafe"
import "sync/atomic"

import "github.com/ov-l/ouly/api"
import "github.com/ov-l/ouly/lib"
import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/golog"

// Arena coalescing allocator over one or more memory arenas. Blocks
// are carved out of arenas by a placement strategy and merged back
// with free neighbours on release. Not thread safe, callers serialize.
type Arena struct {
	// 64-bit aligned stats
	nallocs   int64
	nfrees    int64
	nextends  int64
	nreleases int64
	heap      int64
	allocated int64

	bank   *bankdata
	strat  strategy
	source api.MemorySource

	ptrblock map[uintptr]allocinfo // returned pointer -> block
	ptrbase  map[uintptr]int       // arena base address -> arena handle
	externs  map[uintptr][]byte    // over max.bucket, straight from source

	avsizes *lib.AverageInt64 // request sizes, under compute.stats

	// configuration
	capacity    int64
	arenasize   int64
	granularity int64
	minalign    int64
	maxbucket   int64
	retain      bool
	trackmemory bool
	stats       bool
	atomicstats bool

	logprefix string
}

type allocinfo struct {
	arena uint32
	blk   uint32
}

var _ api.Mallocer = (*Arena)(nil)

// NewArena create a new coalescing allocator managing up to `capacity`
// bytes, zero capacity leaves it unbounded.
func NewArena(capacity int64, setts s.Settings) *Arena {
	arena := &Arena{
		bank:     newbankdata(),
		ptrblock: make(map[uintptr]allocinfo),
		ptrbase:  make(map[uintptr]int),
		externs:  make(map[uintptr][]byte),
		// configuration
		capacity:    capacity,
		arenasize:   setts.Int64("arena.size"),
		granularity: setts.Int64("granularity"),
		minalign:    setts.Int64("min.alignment"),
		maxbucket:   setts.Int64("max.bucket"),
		retain:      setts.Bool("arena.retain"),
		trackmemory: setts.Bool("track.memory"),
		stats:       setts.Bool("compute.stats"),
		atomicstats: setts.Bool("compute.atomic.stats"),
		logprefix:   "malloc.arena",
	}
	validateconfig(arena.granularity, arena.minalign, arena.arenasize)
	if arena.minalign < Alignment {
		arena.minalign = Alignment
	}
	arena.strat = newstrategy(
		setts.String("strategy"),
		setts.Int64("bsearch.algo"), setts.Int64("search.window"),
	)
	arena.source = newsource(setts.String("allocator"))
	if arena.stats {
		arena.avsizes = &lib.AverageInt64{}
	}
	log.Infof("%v started with %q strategy\n", arena.logprefix, arena.strat.name())
	return arena
}

//---- operations

// Alloc implement api.Mallocer{} interface. Panics with
// ErrorOutofMemory when the memory source is exhausted, use Allocx
// for an error return.
func (arena *Arena) Alloc(n int64) unsafe.Pointer {
	ptr, err := arena.Allocx(n)
	if err != nil {
		panic(err)
	}
	return ptr
}

// Allocalign implement api.Mallocer{} interface.
func (arena *Arena) Allocalign(n, align int64) unsafe.Pointer {
	if align <= 0 || (align&(align-1)) != 0 {
		panicerr("alignment %v is not a power of 2", align)
	}
	if align <= arena.minalign {
		return arena.Alloc(n)
	}
	if n == 0 {
		return unsafe.Pointer(&zerobase[0])
	}
	// over-allocate by the alignment and shift forward.
	ptr, err := arena.doalloc(lib.Roundup(n, arena.granularity) + align)
	if err != nil {
		panic(err)
	}
	addr := uintptr(ptr)
	aligned := uintptr(alignforward(int64(addr), align))
	if aligned != addr {
		info := arena.ptrblock[addr]
		delete(arena.ptrblock, addr)
		arena.ptrblock[aligned] = info
	}
	return unsafe.Pointer(aligned)
}

// Allocx allocate `n` bytes, returning ErrorOutofMemory when the
// memory source cannot supply a fresh arena. Zero sized requests
// return a non-nil sentinel which Free treats as a no-op.
func (arena *Arena) Allocx(n int64) (unsafe.Pointer, error) {
	if arena.bank == nil {
		panicerr("arena released")
	} else if n < 0 {
		panicerr("Alloc size %v", n)
	} else if n == 0 {
		return unsafe.Pointer(&zerobase[0]), nil
	}
	if arena.stats {
		arena.avsizes.Add(n)
	}
	if n > arena.maxbucket {
		return arena.allocextern(n)
	}
	size := lib.Roundup(n, arena.granularity)
	if arena.minalign <= arena.granularity {
		return arena.doalloc(size)
	}
	// granularity alone does not meet min.alignment, over-allocate by
	// the alignment and shift forward.
	ptr, err := arena.doalloc(size + arena.minalign)
	if err != nil {
		return nil, err
	}
	addr := uintptr(ptr)
	aligned := uintptr(alignforward(int64(addr), arena.minalign))
	if aligned != addr {
		info := arena.ptrblock[addr]
		delete(arena.ptrblock, addr)
		arena.ptrblock[aligned] = info
	}
	return unsafe.Pointer(aligned), nil
}

func (arena *Arena) doalloc(size int64) (unsafe.Pointer, error) {
	if arena.capacity > 0 && arena.allocated+size > arena.capacity {
		return nil, ErrorOutofMemory
	}
	spot, ok := arena.strat.tryallocate(arena.bank, size)
	if !ok {
		// no fitting free block, reserve a fresh arena and retry
		// exactly once.
		if err := arena.reservearena(size, false); err != nil {
			return nil, err
		}
		if spot, ok = arena.strat.tryallocate(arena.bank, size); !ok {
			panicerr("fresh arena cannot fit %v bytes", size)
		}
	}
	blk := arena.strat.commit(arena.bank, size, spot)
	rec := arena.bank.blocks.getblock(blk)
	mem := arena.bank.getarena(rec.arena)
	ptr := unsafe.Pointer(&mem.base[rec.offset])
	arena.ptrblock[uintptr(ptr)] = allocinfo{arena: rec.arena, blk: blk}
	arena.account(&arena.nallocs, 1)
	arena.account(&arena.allocated, size)
	return ptr, nil
}

func (arena *Arena) allocextern(n int64) (unsafe.Pointer, error) {
	if arena.capacity > 0 && arena.allocated+n > arena.capacity {
		return nil, ErrorOutofMemory
	}
	region, err := arena.source.Alloc(n)
	if err != nil {
		return nil, err
	}
	ptr := unsafe.Pointer(&region[0])
	arena.externs[uintptr(ptr)] = region
	arena.account(&arena.heap, n)
	arena.account(&arena.allocated, n)
	arena.account(&arena.nallocs, 1)
	return ptr, nil
}

// Free implement api.Mallocer{} interface.
func (arena *Arena) Free(ptr unsafe.Pointer) {
	if arena.bank == nil {
		panicerr("arena released")
	} else if ptr == nil {
		panicerr("Free(): nil pointer")
	} else if ptr == unsafe.Pointer(&zerobase[0]) {
		return
	}
	addr := uintptr(ptr)
	if region, ok := arena.externs[addr]; ok {
		delete(arena.externs, addr)
		arena.account(&arena.heap, -int64(len(region)))
		arena.account(&arena.allocated, -int64(len(region)))
		arena.account(&arena.nfrees, 1)
		arena.source.Free(region)
		return
	}
	info, ok := arena.ptrblock[addr]
	if !ok {
		panicerr("Free(): unknown pointer %x", addr)
	}
	delete(arena.ptrblock, addr)
	size := arena.bank.blocks.getblock(info.blk).size
	arena.account(&arena.allocated, -size)
	arena.account(&arena.nfrees, 1)
	arena.coalesceonfree(info.blk)
}

// Reserve pre-reserve an arena of `size` bytes. Pre-reserved arenas
// are never released back to the source until Release.
func (arena *Arena) Reserve(size int64) error {
	if arena.bank == nil {
		panicerr("arena released")
	}
	return arena.reservearena(size, true)
}

// Release implement api.Mallocer{} interface.
func (arena *Arena) Release() {
	if arena.bank == nil {
		return
	}
	arena.Logstats()
	for i := range arena.bank.arenas {
		mem := &arena.bank.arenas[i]
		if mem.live {
			arena.source.Free(mem.base)
		}
	}
	for _, region := range arena.externs {
		arena.source.Free(region)
	}
	arena.bank, arena.strat = nil, nil
	arena.ptrblock, arena.ptrbase, arena.externs = nil, nil, nil
	log.Infof("%v released\n", arena.logprefix)
}

// Advise forward an access-pattern hint for the range [ptr, ptr+n)
// to the memory source.
func (arena *Arena) Advise(ptr unsafe.Pointer, n int64, advice api.Advice) error {
	region := arena.findregion(ptr, n)
	return arena.source.Advise(region, advice)
}

// Protect change protection bits on the range [ptr, ptr+n).
func (arena *Arena) Protect(ptr unsafe.Pointer, n int64, prot api.Protection) error {
	region := arena.findregion(ptr, n)
	return arena.source.Protect(region, prot)
}

//---- local functions

// reservearena obtain a fresh arena of at least `minsize` bytes from
// the memory source, install a single spanning free block and index it
// with the strategy.
func (arena *Arena) reservearena(minsize int64, retain bool) error {
	size := maxint64(arena.arenasize, lib.Roundup(minsize, arena.granularity))
	region, err := arena.source.Alloc(size)
	if err != nil {
		return ErrorOutofMemory
	}
	arenaidx := arena.bank.addarena(region, size, retain)
	blk := arena.bank.installspan(arenaidx)
	arena.strat.addfreearena(arena.bank, blk)
	arena.ptrbase[uintptr(unsafe.Pointer(&region[0]))] = int(arenaidx)
	arena.account(&arena.heap, size)
	arena.account(&arena.nextends, 1)
	log.Debugf("%v extended by %v bytes\n", arena.logprefix, size)
	return nil
}

// coalesceonfree return blk to the free state, absorbing free order
// list neighbours, left first then right. The strategy index is kept
// in step: the surviving block grows rightward in the ordering, the
// absorbed ones are erased.
func (arena *Arena) coalesceonfree(blkidx uint32) {
	blocks := arena.bank.blocks
	rec := blocks.getblock(blkidx)
	left, right := rec.prev, rec.next
	leftfree := left != nilblock && blocks.getblock(left).isfree
	rightfree := right != nilblock && blocks.getblock(right).isfree

	var final uint32
	switch {
	case leftfree && rightfree:
		newsize := blocks.getblock(left).size + rec.size +
			blocks.getblock(right).size
		arena.strat.erase(arena.bank, right)
		arena.bank.unlink(blkidx)
		arena.bank.unlink(right)
		blocks.delblock(blkidx)
		blocks.delblock(right)
		arena.strat.grow(arena.bank, left, newsize)
		final = left

	case leftfree:
		newsize := blocks.getblock(left).size + rec.size
		arena.bank.unlink(blkidx)
		blocks.delblock(blkidx)
		arena.strat.grow(arena.bank, left, newsize)
		final = left

	case rightfree:
		newsize := rec.size + blocks.getblock(right).size
		arena.bank.unlink(right)
		arena.strat.replaceandgrow(arena.bank, right, blkidx, newsize)
		blocks.delblock(right)
		final = blkidx

	default:
		arena.strat.addfree(arena.bank, blkidx)
		final = blkidx
	}

	// release the arena when a single free block spans it.
	frec := blocks.getblock(final)
	mem := arena.bank.getarena(frec.arena)
	if frec.size == mem.size && arena.retain == false && mem.retain == false {
		arena.releasearena(frec.arena, final)
	}
}

func (arena *Arena) releasearena(arenaidx, blkidx uint32) {
	mem := arena.bank.getarena(arenaidx)
	rec := arena.bank.blocks.getblock(blkidx)
	if rec.offset != 0 || rec.size != mem.size || rec.isfree == false {
		panicerr("releasing arena %v with live blocks", arenaidx)
	}
	arena.strat.erase(arena.bank, blkidx)
	arena.bank.unlink(blkidx)
	arena.bank.blocks.delblock(blkidx)
	delete(arena.ptrbase, uintptr(unsafe.Pointer(&mem.base[0])))
	base, size := mem.base, mem.size
	arena.bank.delarena(arenaidx)
	arena.account(&arena.heap, -size)
	arena.account(&arena.nreleases, 1)
	arena.source.Free(base)
}

func (arena *Arena) findregion(ptr unsafe.Pointer, n int64) []byte {
	addr := uintptr(ptr)
	for base, idx := range arena.ptrbase {
		mem := arena.bank.getarena(uint32(idx))
		if addr >= base && addr+uintptr(n) <= base+uintptr(mem.size) {
			off := int64(addr - base)
			return mem.base[off : off+n]
		}
	}
	if region, ok := arena.externs[addr]; ok && int64(len(region)) >= n {
		return region[:n]
	}
	panicerr("pointer %x outside every arena", addr)
	return nil
}

func (arena *Arena) account(counter *int64, delta int64) {
	if arena.trackmemory == false {
		return
	} else if arena.atomicstats {
		atomic.AddInt64(counter, delta)
		return
	}
	*counter += delta
}

// Validate verify allocator invariants, panics on corruption. Meant
// for test builds, walks every arena.
func (arena *Arena) Validate() {
	if arena.bank == nil {
		panicerr("arena released")
	}
	arena.bank.validate()
	arena.strat.validate(arena.bank)
	// every free block in the bank is indexed exactly once.
	nfree := int64(0)
	for i := 1; i < len(arena.bank.blocks.blocks); i++ {
		if arena.bank.blocks.blocks[i].isfree {
			nfree++
		}
	}
	if nfree != arena.strat.freenodes() {
		fmsg := "%v free blocks in bank, %v indexed"
		panicerr(fmsg, nfree, arena.strat.freenodes())
	}
}
