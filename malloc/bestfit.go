package malloc

// bestfit keeps two parallel sequences of equal length, `sizes` in
// non-decreasing order and `order` carrying the matching block handle.
// Placement picks the leftmost entry with sizes[i] >= request, found by
// binary search. Index maintenance moves entries by contiguous shifts
// within the two slices, never by a re-sort: a split remainder shrinks
// and moves left, a coalesced block grows and moves right.
type bestfit struct {
	algo  int
	sizes []int64
	order []uint32
}

func newbestfit(algo int) *bestfit {
	if algo < 0 || algo > 2 {
		panicerr("bsearch.algo %v out of range", algo)
	}
	return &bestfit{
		algo:  algo,
		sizes: make([]int64, 0, 64),
		order: make([]uint32, 0, 64),
	}
}

func (strat *bestfit) name() string {
	return "bestfit"
}

func (strat *bestfit) tryallocate(bank *bankdata, size int64) (int, bool) {
	n := len(strat.sizes)
	if n == 0 || strat.sizes[n-1] < size {
		return 0, false
	}
	return strat.lowerbound(strat.sizes, size), true
}

func (strat *bestfit) commit(bank *bankdata, size int64, spot int) uint32 {
	freenode := strat.order[spot]
	remaining := strat.sizes[spot] - size
	rem := carveblock(bank, freenode, size)
	if rem != nilblock {
		// the left-over is never larger, reinsertion moves left.
		strat.reinsertleft(spot, remaining, rem)
	} else {
		strat.sizes = append(strat.sizes[:spot], strat.sizes[spot+1:]...)
		strat.order = append(strat.order[:spot], strat.order[spot+1:]...)
	}
	return freenode
}

func (strat *bestfit) addfreearena(bank *bankdata, blk uint32) {
	strat.addfree(bank, blk)
}

func (strat *bestfit) addfree(bank *bankdata, blk uint32) {
	rec := bank.blocks.getblock(blk)
	rec.isfree = true
	size := rec.size
	it := strat.lowerbound(strat.sizes, size)
	strat.sizes = append(strat.sizes, 0)
	strat.order = append(strat.order, nilblock)
	copy(strat.sizes[it+1:], strat.sizes[it:])
	copy(strat.order[it+1:], strat.order[it:])
	strat.sizes[it], strat.order[it] = size, blk
}

func (strat *bestfit) grow(bank *bankdata, blk uint32, newsize int64) {
	rec := bank.blocks.getblock(blk)
	it := strat.findnode(blk, rec.size)
	rec.size = newsize
	strat.reinsertright(it, newsize, blk)
}

func (strat *bestfit) replaceandgrow(
	bank *bankdata, oldblk, newblk uint32, newsize int64) {

	oldsize := bank.blocks.getblock(oldblk).size
	rec := bank.blocks.getblock(newblk)
	rec.size, rec.isfree = newsize, true
	it := strat.findnode(oldblk, oldsize)
	strat.reinsertright(it, newsize, newblk)
}

func (strat *bestfit) erase(bank *bankdata, blk uint32) {
	it := strat.findnode(blk, bank.blocks.getblock(blk).size)
	strat.sizes = append(strat.sizes[:it], strat.sizes[it+1:]...)
	strat.order = append(strat.order[:it], strat.order[it+1:]...)
}

func (strat *bestfit) freenodes() int64 {
	return int64(len(strat.order))
}

func (strat *bestfit) freesize(bank *bankdata) int64 {
	total := int64(0)
	for _, size := range strat.sizes {
		total += size
	}
	return total
}

func (strat *bestfit) validate(bank *bankdata) {
	if len(strat.sizes) != len(strat.order) {
		fmsg := "parallel arrays out of step: %v != %v"
		panicerr(fmsg, len(strat.sizes), len(strat.order))
	}
	for i := 1; i < len(strat.sizes); i++ {
		if strat.sizes[i-1] > strat.sizes[i] {
			panicerr("sizes not sorted at %v", i)
		}
	}
	seen := make(map[uint32]bool)
	for i, blk := range strat.order {
		rec := bank.blocks.getblock(blk)
		if rec.isfree == false {
			panicerr("block %v indexed but not free", blk)
		} else if rec.size != strat.sizes[i] {
			fmsg := "block %v size %v, index says %v"
			panicerr(fmsg, blk, rec.size, strat.sizes[i])
		} else if seen[blk] {
			panicerr("block %v indexed twice", blk)
		}
		seen[blk] = true
	}
}

//---- local functions

// locate the index entry for blk, starting at the leftmost slot of its
// size class.
func (strat *bestfit) findnode(blk uint32, size int64) int {
	it := strat.lowerbound(strat.sizes, size)
	for it < len(strat.order) && strat.order[it] != blk {
		it++
	}
	if it == len(strat.order) {
		panicerr("block %v missing from free index", blk)
	}
	return it
}

// reinsertleft move the entry at `of` to its sorted slot within
// sizes[0:of], carrying the new, smaller size and node.
func (strat *bestfit) reinsertleft(of int, size int64, node uint32) {
	if of == 0 {
		strat.sizes[of], strat.order[of] = size, node
		return
	}
	it := strat.lowerbound(strat.sizes[:of], size)
	if it != of {
		copy(strat.sizes[it+1:of+1], strat.sizes[it:of])
		copy(strat.order[it+1:of+1], strat.order[it:of])
	}
	strat.sizes[it], strat.order[it] = size, node
}

// reinsertright move the entry at `of` to its sorted slot within the
// tail, carrying the new, larger size and node.
func (strat *bestfit) reinsertright(of int, size int64, node uint32) {
	next := of + 1
	if next == len(strat.sizes) {
		strat.sizes[of], strat.order[of] = size, node
		return
	}
	it := strat.lowerbound(strat.sizes[next:], size)
	if it > 0 {
		copy(strat.sizes[of:], strat.sizes[of+1:of+1+it])
		copy(strat.order[of:], strat.order[of+1:of+1+it])
	}
	strat.sizes[of+it], strat.order[of+it] = size, node
}

// lowerbound leftmost index with sizes[i] >= key, len(sizes) when no
// such entry. Three equivalent formulations, picked by bsearch.algo,
// identical results by construction.
func (strat *bestfit) lowerbound(sizes []int64, key int64) int {
	switch strat.algo {
	case 0:
		return mini0(sizes, key)
	case 1:
		return mini1(sizes, key)
	case 2:
		return mini2(sizes, key)
	}
	panic("unreachable code")
}

// classical halving with a terminal two-step linear correction.
func mini0(sizes []int64, key int64) int {
	it, size := 0, len(sizes)
	for size > 2 {
		middle := it + (size >> 1)
		size = (size + 1) >> 1
		if sizes[middle] < key {
			it = middle
		}
	}
	if size > 1 && sizes[it] < key {
		it++
	}
	if size > 0 && sizes[it] < key {
		it++
	}
	return it
}

// branchless-style stepping, halve until the window is 2 wide.
func mini1(sizes []int64, key int64) int {
	it, size := 0, len(sizes)
	if size == 0 {
		return 0
	}
	for {
		middle := it + (size >> 1)
		size = (size + 1) >> 1
		if sizes[middle] < key {
			it = middle
		}
		if size <= 2 {
			break
		}
	}
	if size > 1 && sizes[it] < key {
		it++
	}
	if size > 0 && sizes[it] < key {
		it++
	}
	return it
}

// unrolled variant, two halving steps per iteration.
func mini2(sizes []int64, key int64) int {
	it, size := 0, len(sizes)
	if size == 0 {
		return 0
	}
	for {
		middle := it + (size >> 1)
		size = (size + 1) >> 1
		if sizes[middle] < key {
			it = middle
		}
		middle = it + (size >> 1)
		size = (size + 1) >> 1
		if sizes[middle] < key {
			it = middle
		}
		if size <= 2 {
			break
		}
	}
	if size > 1 && sizes[it] < key {
		it++
	}
	if size > 0 && sizes[it] < key {
		it++
	}
	return it
}
