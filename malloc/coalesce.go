package malloc

// Coalloc offset based coalescing allocator. Tracks free ranges of an
// externally owned region as two parallel slices, `offsets` sorted
// ascending and `sizes` carrying the matching extent. Allocation is
// first fit, deallocation merges with adjacent free ranges. Useful for
// suballocating memory this process cannot address directly, for
// example device heaps.
type Coalloc struct {
	capacity int64
	offsets  []int64
	sizes    []int64
}

// NewCoalloc create an allocator managing the range [0, capacity).
func NewCoalloc(capacity int64) *Coalloc {
	if capacity <= 0 {
		panicerr("capacity %v", capacity)
	}
	return &Coalloc{
		capacity: capacity,
		offsets:  []int64{0},
		sizes:    []int64{capacity},
	}
}

// Allocate a range of `size` units, first fit. Returns the offset of
// the range, false when no free range fits.
func (ca *Coalloc) Allocate(size int64) (int64, bool) {
	if size <= 0 {
		panicerr("Allocate size %v", size)
	}
	for i := 0; i < len(ca.sizes); i++ {
		if size <= ca.sizes[i] {
			ret := ca.offsets[i]
			ca.sizes[i] -= size
			ca.offsets[i] += size
			if ca.sizes[i] == 0 {
				ca.offsets = append(ca.offsets[:i], ca.offsets[i+1:]...)
				ca.sizes = append(ca.sizes[:i], ca.sizes[i+1:]...)
			}
			return ret, true
		}
	}
	return 0, false
}

// Deallocate return the range [offset, offset+size) to the free set,
// merging with free neighbours on either side.
func (ca *Coalloc) Deallocate(offset, size int64) {
	if offset < 0 || size <= 0 || offset+size > ca.capacity {
		panicerr("Deallocate range %v+%v", offset, size)
	}
	if len(ca.offsets) == 0 {
		ca.offsets = append(ca.offsets, offset)
		ca.sizes = append(ca.sizes, size)
		return
	}

	idx := mini2(ca.offsets, offset)
	switch {
	case idx == 0:
		if offset+size == ca.offsets[0] {
			ca.offsets[0] = offset
			ca.sizes[0] += size
		} else {
			ca.offsets = append([]int64{offset}, ca.offsets...)
			ca.sizes = append([]int64{size}, ca.sizes...)
		}

	case idx == len(ca.offsets):
		last := len(ca.offsets) - 1
		if ca.offsets[last]+ca.sizes[last] == offset {
			ca.sizes[last] += size
		} else {
			ca.offsets = append(ca.offsets, offset)
			ca.sizes = append(ca.sizes, size)
		}

	default:
		if ca.offsets[idx-1]+ca.sizes[idx-1] == offset {
			ca.sizes[idx-1] += size
			// freed range bridged two free neighbours.
			if ca.offsets[idx] == ca.offsets[idx-1]+ca.sizes[idx-1] {
				ca.sizes[idx-1] += ca.sizes[idx]
				ca.offsets = append(ca.offsets[:idx], ca.offsets[idx+1:]...)
				ca.sizes = append(ca.sizes[:idx], ca.sizes[idx+1:]...)
			}
		} else if ca.offsets[idx] == offset+size {
			ca.offsets[idx] -= size
			ca.sizes[idx] += size
		} else {
			ca.offsets = append(ca.offsets, 0)
			ca.sizes = append(ca.sizes, 0)
			copy(ca.offsets[idx+1:], ca.offsets[idx:])
			copy(ca.sizes[idx+1:], ca.sizes[idx:])
			ca.offsets[idx], ca.sizes[idx] = offset, size
		}
	}
}

// Available total free units.
func (ca *Coalloc) Available() int64 {
	total := int64(0)
	for _, size := range ca.sizes {
		total += size
	}
	return total
}

// Validate free ranges are sorted, non-overlapping and uncoalesced
// pairs don't touch.
func (ca *Coalloc) Validate() {
	if len(ca.offsets) != len(ca.sizes) {
		panicerr("parallel arrays out of step")
	}
	for i := 1; i < len(ca.offsets); i++ {
		end := ca.offsets[i-1] + ca.sizes[i-1]
		if end > ca.offsets[i] {
			panicerr("free ranges overlap at %v", i)
		} else if end == ca.offsets[i] {
			panicerr("adjacent free ranges not merged at %v", i)
		}
	}
}
