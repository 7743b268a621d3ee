package malloc

import "sync/atomic"

import "github.com/bnclabs/golog"
import humanize "github.com/dustin/go-humanize"

// Info implement api.Mallocer{} interface, memory accounting for this
// allocator: configured capacity, bytes held from the memory source,
// bytes handed out to the application and bookkeeping overhead.
func (arena *Arena) Info() (capacity, heap, alloc, overhead int64) {
	bankoverhead := int64(len(arena.bank.blocks.blocks)) * 40
	bankoverhead += int64(len(arena.bank.arenas)) * 64
	return arena.capacity, arena.loadstat(&arena.heap),
		arena.loadstat(&arena.allocated), bankoverhead
}

// Utilization per-arena percentage of allocated bytes, parallel
// slices of arena sizes and utilization.
func (arena *Arena) Utilization() ([]int, []float64) {
	sizes, zs := make([]int, 0), make([]float64, 0)
	blocks := arena.bank.blocks
	for i := range arena.bank.arenas {
		mem := &arena.bank.arenas[i]
		if mem.live == false {
			continue
		}
		used := int64(0)
		for idx := mem.head; idx != nilblock; {
			blk := blocks.getblock(idx)
			if blk.isfree == false {
				used += blk.size
			}
			idx = blk.next
		}
		sizes = append(sizes, int(mem.size))
		zs = append(zs, (float64(used)/float64(mem.size))*100)
	}
	return sizes, zs
}

// Counts allocation activity: allocs, frees, arena extensions and
// arena releases.
func (arena *Arena) Counts() (allocs, frees, extends, releases int64) {
	return arena.loadstat(&arena.nallocs), arena.loadstat(&arena.nfrees),
		arena.loadstat(&arena.nextends), arena.loadstat(&arena.nreleases)
}

// Logstats dump accounting to the log.
func (arena *Arena) Logstats() {
	_, heap, alloc, overhead := arena.Info()
	fmsg := "%v heap:%v alloc:%v overhead:%v freenodes:%v\n"
	log.Infof(
		fmsg, arena.logprefix,
		humanize.Bytes(uint64(heap)), humanize.Bytes(uint64(alloc)),
		humanize.Bytes(uint64(overhead)), arena.strat.freenodes(),
	)
	if arena.stats && arena.avsizes != nil {
		fmsg := "%v reqsizes mean:%v min:%v max:%v samples:%v\n"
		log.Infof(
			fmsg, arena.logprefix,
			arena.avsizes.Mean(), arena.avsizes.Min(), arena.avsizes.Max(),
			arena.avsizes.Samples(),
		)
	}
}

func (arena *Arena) loadstat(counter *int64) int64 {
	if arena.atomicstats {
		return atomic.LoadInt64(counter)
	}
	return *counter
}
