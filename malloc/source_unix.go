//go:build linux || darwin

package malloc

import "golang.org/x/sys/unix"

import "github.com/ov-l/ouly/api"

// mmapsource supplies regions from anonymous private mappings, so that
// Advise and Protect reach the kernel.
type mmapsource struct{}

// Mmapsource create a memory source backed by anonymous mmap.
func Mmapsource() api.MemorySource {
	return &mmapsource{}
}

func (src *mmapsource) Alloc(size int64) ([]byte, error) {
	if size <= 0 {
		panicerr("mmapsource.Alloc(): size %v", size)
	}
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	region, err := unix.Mmap(-1, 0, int(size), prot, flags)
	if err != nil {
		return nil, ErrorOutofMemory
	}
	return region, nil
}

func (src *mmapsource) Free(region []byte) {
	if err := unix.Munmap(region); err != nil {
		panicerr("mmapsource.Free(): %v", err)
	}
}

func (src *mmapsource) Advise(region []byte, advice api.Advice) error {
	var flag int
	switch advice {
	case api.AdviceNormal:
		flag = unix.MADV_NORMAL
	case api.AdviceRandom:
		flag = unix.MADV_RANDOM
	case api.AdviceSequential:
		flag = unix.MADV_SEQUENTIAL
	case api.AdviceWillneed:
		flag = unix.MADV_WILLNEED
	case api.AdviceDontneed:
		flag = unix.MADV_DONTNEED
	default:
		panicerr("unknown advice %v", advice)
	}
	return unix.Madvise(region, flag)
}

func (src *mmapsource) Protect(region []byte, prot api.Protection) error {
	flags := unix.PROT_NONE
	if (prot & api.ProtectionRead) != 0 {
		flags |= unix.PROT_READ
	}
	if (prot & api.ProtectionWrite) != 0 {
		flags |= unix.PROT_WRITE
	}
	return unix.Mprotect(region, flags)
}
