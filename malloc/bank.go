package malloc

// block is a region within exactly one arena. Blocks chain into a
// doubly linked order list per arena, left to right in address space,
// linked by bank indices instead of owning references.
type block struct {
	offset int64
	size   int64
	arena  uint32
	prev   uint32 // order list, nilblock when leftmost
	next   uint32 // order list, nilblock when rightmost
	isfree bool
}

// blockbank stable-indexed store of block records. Additions never
// invalidate existing indices, removals leave reusable slots. Index 0
// is reserved as the nil sentinel.
type blockbank struct {
	blocks    []block
	freeslots []uint32
}

func newblockbank() *blockbank {
	return &blockbank{blocks: make([]block, 1, 64)}
}

func (bank *blockbank) getblock(idx uint32) *block {
	if idx == nilblock || idx >= uint32(len(bank.blocks)) {
		panicerr("invalid block handle %v", idx)
	}
	return &bank.blocks[idx]
}

func (bank *blockbank) addblock(
	offset, size int64, arena uint32, isfree bool) uint32 {

	blk := block{
		offset: offset, size: size, arena: arena,
		prev: nilblock, next: nilblock, isfree: isfree,
	}
	if n := len(bank.freeslots); n > 0 {
		idx := bank.freeslots[n-1]
		bank.freeslots = bank.freeslots[:n-1]
		bank.blocks[idx] = blk
		return idx
	}
	bank.blocks = append(bank.blocks, blk)
	return uint32(len(bank.blocks) - 1)
}

func (bank *blockbank) delblock(idx uint32) {
	blk := bank.getblock(idx)
	*blk = block{}
	bank.freeslots = append(bank.freeslots, idx)
}

// count of live records, excluding the sentinel.
func (bank *blockbank) count() int64 {
	return int64(len(bank.blocks)-1) - int64(len(bank.freeslots))
}

// memarena one contiguous region obtained from the memory source,
// with the two ends of its block order list.
type memarena struct {
	base   []byte
	size   int64
	head   uint32
	tail   uint32
	retain bool
	live   bool
}

// bankdata block bank plus the arena registry, shared between the
// allocator facade and its placement strategy.
type bankdata struct {
	blocks     *blockbank
	arenas     []memarena
	arenafree  []uint32
	arenacount int64
}

func newbankdata() *bankdata {
	return &bankdata{blocks: newblockbank()}
}

func (bank *bankdata) getarena(idx uint32) *memarena {
	if idx >= uint32(len(bank.arenas)) || bank.arenas[idx].live == false {
		panicerr("invalid arena handle %v", idx)
	}
	return &bank.arenas[idx]
}

func (bank *bankdata) addarena(base []byte, size int64, retain bool) uint32 {
	if bank.arenacount >= Maxarenas {
		panicerr("number of arenas exceeds %v", Maxarenas)
	}
	arena := memarena{
		base: base, size: size, head: nilblock, tail: nilblock,
		retain: retain, live: true,
	}
	bank.arenacount++
	if n := len(bank.arenafree); n > 0 {
		idx := bank.arenafree[n-1]
		bank.arenafree = bank.arenafree[:n-1]
		bank.arenas[idx] = arena
		return idx
	}
	bank.arenas = append(bank.arenas, arena)
	return uint32(len(bank.arenas) - 1)
}

func (bank *bankdata) delarena(idx uint32) {
	arena := bank.getarena(idx)
	*arena = memarena{}
	bank.arenafree = append(bank.arenafree, idx)
	bank.arenacount--
}

// insertafter place newblk immediately right of after in the order
// list of its arena. O(1).
func (bank *bankdata) insertafter(after, newblk uint32) {
	ablk, nblk := bank.blocks.getblock(after), bank.blocks.getblock(newblk)
	arena := bank.getarena(ablk.arena)
	nblk.prev, nblk.next = after, ablk.next
	if ablk.next != nilblock {
		bank.blocks.getblock(ablk.next).prev = newblk
	} else {
		arena.tail = newblk
	}
	ablk.next = newblk
}

// unlink remove blk from the order list of its arena. O(1).
func (bank *bankdata) unlink(blk uint32) {
	rec := bank.blocks.getblock(blk)
	arena := bank.getarena(rec.arena)
	if rec.prev != nilblock {
		bank.blocks.getblock(rec.prev).next = rec.next
	} else {
		arena.head = rec.next
	}
	if rec.next != nilblock {
		bank.blocks.getblock(rec.next).prev = rec.prev
	} else {
		arena.tail = rec.prev
	}
	rec.prev, rec.next = nilblock, nilblock
}

// installspan install a single free block spanning a fresh arena.
func (bank *bankdata) installspan(arenaidx uint32) uint32 {
	arena := bank.getarena(arenaidx)
	blk := bank.blocks.addblock(0, arena.size, arenaidx, true)
	arena.head, arena.tail = blk, blk
	return blk
}

// validate order list invariants for every live arena: offsets are
// contiguous, block sizes sum to the arena size and no two adjacent
// blocks are both free.
func (bank *bankdata) validate() {
	for i := range bank.arenas {
		arena := &bank.arenas[i]
		if arena.live == false {
			continue
		}
		sum, offset := int64(0), int64(0)
		prev, prevfree := nilblock, false
		for idx := arena.head; idx != nilblock; {
			blk := bank.blocks.getblock(idx)
			if blk.offset != offset {
				fmsg := "arena %v block %v offset %v, expected %v"
				panicerr(fmsg, i, idx, blk.offset, offset)
			} else if blk.prev != prev {
				panicerr("arena %v block %v bad prev link", i, idx)
			} else if prevfree && blk.isfree {
				panicerr("arena %v adjacent free blocks at %v", i, idx)
			}
			sum += blk.size
			offset += blk.size
			prev, prevfree = idx, blk.isfree
			idx = blk.next
		}
		if sum != arena.size {
			fmsg := "arena %v blocks sum to %v, arena size %v"
			panicerr(fmsg, i, sum, arena.size)
		} else if arena.tail != prev {
			panicerr("arena %v bad tail link", i)
		}
	}
}
