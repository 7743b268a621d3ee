// Package scheduler implements a work-stealing task scheduler over a
// fixed set of worker threads partitioned into priority workgroups.
//
// Workgroups are declared before Begin() with a thread count and a
// priority rank, 0 being the highest. Declaration order assigns each
// group a contiguous, non-overlapping range of worker indices. Every
// worker owns one bounded multi-producer/multi-consumer ring per
// workgroup it belongs to. Workers drain their own rings in priority
// order, then steal from peers sharing at least one workgroup, then
// spin briefly, then park on a coalescing wake event.
//
// Work items run to completion on the worker that popped them. The
// scheduler is an explicit object owned by the caller, work items
// reach it through their invocation context, never through ambient
// lookup.
package scheduler
