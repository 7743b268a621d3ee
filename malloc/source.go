package malloc

import "github.com/ov-l/ouly/api"

// heapsource supplies regions from the go heap. Advise and Protect
// are no-ops, the runtime owns the pages.
type heapsource struct{}

// Heapsource create a memory source backed by the go heap.
func Heapsource() api.MemorySource {
	return &heapsource{}
}

func (src *heapsource) Alloc(size int64) ([]byte, error) {
	if size <= 0 {
		panicerr("heapsource.Alloc(): size %v", size)
	}
	return make([]byte, size), nil
}

func (src *heapsource) Free(region []byte) {
	// garbage collected.
}

func (src *heapsource) Advise(region []byte, advice api.Advice) error {
	return nil
}

func (src *heapsource) Protect(region []byte, prot api.Protection) error {
	return nil
}

func newsource(allocator string) api.MemorySource {
	switch allocator {
	case "heap":
		return Heapsource()
	case "mmap":
		return Mmapsource()
	}
	panicerr("unknown allocator %q", allocator)
	return nil
}
