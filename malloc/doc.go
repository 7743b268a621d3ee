// Package malloc supplies custom memory management for in-memory data
// structures. Note that Types and Functions exported by this package are
// not necessarily thread safe, caller is expected to serialize access.
//
// Arena is a large block of contiguous memory obtained from a memory
// source. Arenas are carved into variable sized blocks, adjacent free
// blocks are merged back on release, and placement of new allocations
// is picked by a pluggable strategy. Arenas can be created with
// following parameters:
//
//	granularity : sizes are rounded up to multiples of granularity.
//	arena.size  : default size of a single arena.
//	max.bucket  : requests larger than this go directly to the source.
//	strategy    : placement strategy, supports `bestfit` or `firstfit`.
//	allocator   : memory source, supports `heap` or `mmap`.
//
// Pool is a fixed-slot allocator, pages are sliced into `pool.atom.count`
// slots of `pool.atom.size` bytes and requests are served as runs of
// consecutive atoms.
//
// Coalloc is an offset based coalescing allocator for suballocating
// ranges owned outside this process, for example device memory.
package malloc
