// Package ouly implement a collection of systems-infrastructure
// algorithms and necessary tools and libraries.
//
// api:
//
// Interface specification to access ouly allocators and memory sources.
//
// lib:
//
// Convinience functions that can be used by other packages. Package shall
// not import packages other than golang's standard packages.
//
// malloc:
//
// Custom memory management for in-memory data structures. Arenas of
// contiguous memory are carved into variable sized blocks, free blocks
// are coalesced with their neighbours on release, and placement is
// picked by pluggable strategies. A fixed-slot pool allocator and an
// offset based coalescing allocator round out the package.
//
// scheduler:
//
// Work-stealing task scheduler over a fixed set of worker threads
// partitioned into priority workgroups. Each worker owns one bounded
// multi-producer/multi-consumer ring per workgroup it belongs to, and
// steals from peers sharing at least one workgroup.
package ouly
