package malloc

import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

// Alignment allocated pointers are always aligned to Alignment,
// settings can only raise it.
const Alignment = int64(8)

// Sizeinterval granularity should be a multiple of Sizeinterval.
const Sizeinterval = int64(32)

// Maxarenasize maximum size of a single memory arena.
const Maxarenasize = int64(1024 * 1024 * 1024 * 1024) // 1TB

// Maxarenas maximum number of arenas allowed under one allocator.
const Maxarenas = int64(65536)

// Defaultsettings for malloc package, applicable to Arena and Pool.
//
// "granularity" (int64, default: 32)
//	Allocation sizes are rounded up to multiples of granularity,
//	should be a multiple of 32.
//
// "min.alignment" (int64, default: 8)
//	Every returned pointer is aligned to at least this, power of 2.
//
// "arena.size" (int64, default: 1MB, clamped by free system memory)
//	Size of a freshly reserved arena.
//
// "arena.retain" (bool, default: false)
//	Retain fully-free arenas for reuse instead of releasing them
//	back to the memory source.
//
// "max.bucket" (int64, default: 256KB)
//	Requests larger than max.bucket bypass arenas and go directly
//	to the memory source.
//
// "strategy" (string, default: "bestfit")
//	Placement strategy, can be "bestfit" or "firstfit".
//
// "bsearch.algo" (int64, default: 0)
//	Binary search variant used by the bestfit strategy, 0, 1 or 2.
//	All three produce identical placement.
//
// "search.window" (int64, default: 32)
//	Number of free blocks scanned by the firstfit strategy.
//
// "allocator" (string, default: "heap")
//	Memory source, can be "heap" or "mmap".
//
// "track.memory" (bool, default: true)
//	Maintain byte-exact allocation accounting.
//
// "compute.stats" (bool, default: false)
//	Accumulate running statistics of request sizes.
//
// "compute.atomic.stats" (bool, default: false)
//	Use atomic counters for statistics, when the caller serializes
//	allocation but samples statistics concurrently.
//
// "pool.atom.size" (int64, default: 32)
//	Pool slot size in bytes, rounded up to a power of 2.
//
// "pool.atom.count" (int64, default: 1024)
//	Number of slots in a single pool page.
//
// "pool.retain" (bool, default: false)
//	Retain fully-free pool pages instead of releasing them.
func Defaultsettings() s.Settings {
	_, _, free := getsysmem()
	arenasize := int64(1024 * 1024)
	if max := int64(free / 16); max > 0 && arenasize > max {
		arenasize = max
	}
	return s.Settings{
		"granularity":          32,
		"min.alignment":        8,
		"arena.size":           arenasize,
		"arena.retain":         false,
		"max.bucket":           256 * 1024,
		"strategy":             "bestfit",
		"bsearch.algo":         0,
		"search.window":        32,
		"allocator":            "heap",
		"track.memory":         true,
		"compute.stats":        false,
		"compute.atomic.stats": false,
		"pool.atom.size":       32,
		"pool.atom.count":      1024,
		"pool.retain":          false,
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}

func validateconfig(granularity, minalign, arenasize int64) {
	if (granularity % Sizeinterval) != 0 {
		fmsg := "granularity %v is not multiple of %v"
		panicerr(fmsg, granularity, Sizeinterval)
	} else if minalign&(minalign-1) != 0 {
		panicerr("min.alignment %v is not a power of 2", minalign)
	} else if arenasize > Maxarenasize {
		panicerr("arena cannot exceed %v bytes (%v)", Maxarenasize, arenasize)
	}
}
