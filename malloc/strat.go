package malloc

// strategy orders the free blocks of every arena and answers placement
// queries for the allocator facade. Strategies see blocks only through
// bank handles, never through raw references.
type strategy interface {
	// name of this strategy.
	name() string

	// tryallocate find a free block that fits `size`. The returned
	// spot is strategy private and only valid until the next
	// mutating call.
	tryallocate(bank *bankdata, size int64) (spot int, ok bool)

	// commit the spot returned by tryallocate for an allocation of
	// `size`, splitting the block when larger. Returns the block
	// handle of the allocation.
	commit(bank *bankdata, size int64, spot int) uint32

	// addfreearena index the single spanning block of a fresh arena.
	addfreearena(bank *bankdata, blk uint32)

	// addfree mark blk free and index it.
	addfree(bank *bankdata, blk uint32)

	// grow an indexed free block to newsize, after it absorbed its
	// right neighbour.
	grow(bank *bankdata, blk uint32, newsize int64)

	// replaceandgrow swap the indexed free block oldblk for newblk
	// carrying newsize, marking newblk free.
	replaceandgrow(bank *bankdata, oldblk, newblk uint32, newsize int64)

	// erase remove blk from the free index.
	erase(bank *bankdata, blk uint32)

	// freenodes number of indexed free blocks.
	freenodes() int64

	// freesize total bytes across indexed free blocks.
	freesize(bank *bankdata) int64

	// validate strategy invariants against the bank, panic on
	// corruption.
	validate(bank *bankdata)
}

func newstrategy(strat string, bsearchalgo, window int64) strategy {
	switch strat {
	case "bestfit":
		return newbestfit(int(bsearchalgo))
	case "firstfit":
		return newfirstfit(window)
	}
	panicerr("unknown strategy %q", strat)
	return nil
}

// carveblock reduce blk to exactly `size` and take it out of the free
// state. When the block was larger, the left-over tail is installed as
// a new free block immediately right of blk in the order list. O(1)
// aside from strategy updates.
func carveblock(bank *bankdata, blkidx uint32, size int64) uint32 {
	blk := bank.blocks.getblock(blkidx)
	remaining := blk.size - size
	if remaining < 0 {
		panicerr("carve %v bytes out of %v byte block", size, blk.size)
	}
	blk.isfree = false
	blk.size = size
	offset, arena := blk.offset, blk.arena
	if remaining > 0 {
		// addblock can reallocate the bank, blk is stale after this.
		newblk := bank.blocks.addblock(offset+size, remaining, arena, true)
		bank.insertafter(blkidx, newblk)
		return newblk
	}
	return nilblock
}
