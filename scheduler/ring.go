package scheduler

import "sync/atomic"

// ring bounded multi-producer/multi-consumer queue of work items.
// Every cell carries a sequence counter, initialized so that cell i
// starts at sequence i. A producer owns cell p%C only while the cell
// sequence equals p, a consumer only while it equals p+1. Claims
// advance the shared positions by compare-exchange, publication is the
// release store on the cell sequence. Never blocks: full and empty
// report false.
type ring struct {
	mask  uint64
	cells []cell

	_pad0  [7]uint64
	enqpos atomic.Uint64
	_pad1  [7]uint64
	deqpos atomic.Uint64
	_pad2  [7]uint64
}

type cell struct {
	seq  atomic.Uint64
	item Work
}

func newring(capacity int64) *ring {
	if capacity <= 1 || (capacity&(capacity-1)) != 0 {
		panicerr("ring capacity %v is not a power of 2", capacity)
	}
	r := &ring{mask: uint64(capacity - 1), cells: make([]cell, capacity)}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

func (r *ring) push(item Work) bool {
	pos := r.enqpos.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos)
		if diff == 0 {
			if r.enqpos.CompareAndSwap(pos, pos+1) {
				c.item = item
				c.seq.Store(pos + 1)
				return true
			}
			pos = r.enqpos.Load()
		} else if diff < 0 {
			// cell still holds an item a full lap behind: full.
			return false
		} else {
			pos = r.enqpos.Load()
		}
	}
}

func (r *ring) pop() (Work, bool) {
	pos := r.deqpos.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos+1)
		if diff == 0 {
			if r.deqpos.CompareAndSwap(pos, pos+1) {
				item := c.item
				c.item = Work{}
				c.seq.Store(pos + r.mask + 1)
				return item, true
			}
			pos = r.deqpos.Load()
		} else if diff < 0 {
			// producer has not published this lap yet: empty.
			return Work{}, false
		} else {
			pos = r.deqpos.Load()
		}
	}
}

// size approximate depth, exact when quiescent.
func (r *ring) size() int64 {
	enq, deq := r.enqpos.Load(), r.deqpos.Load()
	if enq < deq {
		return 0
	}
	return int64(enq - deq)
}
