//go:build !linux && !darwin

package malloc

import "github.com/ov-l/ouly/api"

// Mmapsource fall back to the heap source on hosts without madvise.
func Mmapsource() api.MemorySource {
	return Heapsource()
}
