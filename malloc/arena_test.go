package malloc

import "testing"
import "unsafe"
import "math/rand"

import s "github.com/bnclabs/gosettings"

func testsettings() s.Settings {
	setts := Defaultsettings()
	setts["arena.size"] = 1024
	return setts
}

func TestNewArena(t *testing.T) {
	marena := NewArena(0, Defaultsettings())
	if marena.strat.name() != "bestfit" {
		t.Errorf("expected %v, got %v", "bestfit", marena.strat.name())
	}
	marena.Release()

	// panic cases
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		setts := Defaultsettings()
		setts["granularity"] = 33
		NewArena(0, setts)
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		setts := Defaultsettings()
		setts["strategy"] = "worstfit"
		NewArena(0, setts)
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		setts := Defaultsettings()
		setts["arena.size"] = Maxarenasize + 1
		NewArena(0, setts)
	}()
}

// allocate 100, 200, 50, free the 200, allocate 150: the allocation
// must reuse the freed block, not split the trailing free region.
func TestBestfitBasic(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	ptr1 := marena.Alloc(100)
	ptr2 := marena.Alloc(200)
	ptr3 := marena.Alloc(50)
	marena.Validate()

	marena.Free(ptr2)
	marena.Validate()

	ptr4 := marena.Alloc(150)
	marena.Validate()
	if ptr4 != ptr2 {
		t.Errorf("expected %v, got %v", ptr2, ptr4)
	}
	// 200 rounds to 224, 150 to 160, the carve leaves 64 bytes.
	nodes := marena.strat.freenodes()
	if nodes != 2 {
		t.Errorf("expected %v free nodes, got %v", 2, nodes)
	}
	marena.Free(ptr1)
	marena.Free(ptr3)
	marena.Free(ptr4)
	marena.Validate()
}

// allocate three adjacent blocks, free them out of order, a single
// free block spans the original region after the last free.
func TestCoalescing(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	ptra := marena.Alloc(64)
	ptrb := marena.Alloc(64)
	ptrc := marena.Alloc(64)
	ptrd := marena.Alloc(1024 - 3*64) // pin the trailing region
	marena.Validate()

	marena.Free(ptra)
	marena.Validate()
	marena.Free(ptrc)
	marena.Validate()
	if x := marena.strat.freenodes(); x != 2 {
		t.Errorf("expected %v, got %v", 2, x)
	}
	marena.Free(ptrb)
	marena.Validate()
	if x := marena.strat.freenodes(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := marena.strat.freesize(marena.bank); x != 192 {
		t.Errorf("expected %v, got %v", 192, x)
	}
	marena.Free(ptrd)
	marena.Validate()
}

// a balanced alloc/free sequence leaves no heap behind, arenas are
// released as they empty.
func TestBalanced(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	ptrs := make([]unsafe.Pointer, 0, 1024)
	sizes := make([]int64, 0, 1024)
	for i := 0; i < 1024; i++ {
		size := int64(rand.Intn(300) + 1)
		ptrs = append(ptrs, marena.Alloc(size))
		sizes = append(sizes, size)
	}
	marena.Validate()
	for _, i := range rand.Perm(len(ptrs)) {
		marena.Free(ptrs[i])
		_ = sizes[i]
	}
	marena.Validate()
	_, heap, alloc, _ := marena.Info()
	if heap != 0 {
		t.Errorf("expected %v, got %v", 0, heap)
	} else if alloc != 0 {
		t.Errorf("expected %v, got %v", 0, alloc)
	}
}

func TestArenaRetain(t *testing.T) {
	setts := testsettings()
	setts["arena.retain"] = true
	marena := NewArena(0, setts)
	defer marena.Release()

	ptr := marena.Alloc(100)
	marena.Free(ptr)
	marena.Validate()
	_, heap, _, _ := marena.Info()
	if heap != 1024 {
		t.Errorf("expected %v, got %v", 1024, heap)
	}
	// the retained arena serves the next allocation.
	ptr = marena.Alloc(100)
	marena.Validate()
	_, heap, _, _ = marena.Info()
	if heap != 1024 {
		t.Errorf("expected %v, got %v", 1024, heap)
	}
	marena.Free(ptr)
}

// pre-reserved arenas survive becoming fully free.
func TestReserve(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	if err := marena.Reserve(2048); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	_, heap, _, _ := marena.Info()
	if heap != 2048 {
		t.Errorf("expected %v, got %v", 2048, heap)
	}
	ptr := marena.Alloc(100)
	marena.Free(ptr)
	marena.Validate()
	_, heap, _, _ = marena.Info()
	if heap != 2048 {
		t.Errorf("expected %v, got %v", 2048, heap)
	}
}

func TestZerosize(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	ptr := marena.Alloc(0)
	if ptr == nil {
		t.Errorf("expected non-nil sentinel")
	}
	marena.Free(ptr)
	marena.Validate()
	_, heap, _, _ := marena.Info()
	if heap != 0 {
		t.Errorf("expected %v, got %v", 0, heap)
	}
}

// an allocation larger than any free block reserves a fresh arena.
func TestNewArenaTrigger(t *testing.T) {
	setts := testsettings()
	setts["max.bucket"] = 1024 * 1024
	marena := NewArena(0, setts)
	defer marena.Release()

	marena.Alloc(100)
	_, heap, _, _ := marena.Info()
	if heap != 1024 {
		t.Errorf("expected %v, got %v", 1024, heap)
	}
	marena.Alloc(2048)
	marena.Validate()
	_, heap, _, _ = marena.Info()
	if heap != 1024+2048 {
		t.Errorf("expected %v, got %v", 1024+2048, heap)
	}
	_, _, _, releases := marena.Counts()
	if releases != 0 {
		t.Errorf("expected %v, got %v", 0, releases)
	}
}

// requests over max.bucket bypass arenas.
func TestMaxbucket(t *testing.T) {
	setts := testsettings()
	setts["max.bucket"] = 512
	marena := NewArena(0, setts)
	defer marena.Release()

	ptr := marena.Alloc(1000)
	marena.Validate()
	_, heap, alloc, _ := marena.Info()
	if heap != 1000 {
		t.Errorf("expected %v, got %v", 1000, heap)
	} else if alloc != 1000 {
		t.Errorf("expected %v, got %v", 1000, alloc)
	}
	marena.Free(ptr)
	_, heap, _, _ = marena.Info()
	if heap != 0 {
		t.Errorf("expected %v, got %v", 0, heap)
	}
}

func TestAllocalign(t *testing.T) {
	marena := NewArena(0, testsettings())
	defer marena.Release()

	for _, align := range []int64{8, 64, 256} {
		ptr := marena.Allocalign(100, align)
		if (uintptr(ptr) & uintptr(align-1)) != 0 {
			t.Errorf("pointer %x not %v byte aligned", ptr, align)
		}
		marena.Free(ptr)
		marena.Validate()
	}

	// panic case
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		marena.Allocalign(100, 3)
	}()
}

func TestArenaCapacity(t *testing.T) {
	marena := NewArena(512, testsettings())
	defer marena.Release()

	if _, err := marena.Allocx(256); err != nil {
		t.Errorf("unexpected %v", err)
	}
	if _, err := marena.Allocx(512); err != ErrorOutofMemory {
		t.Errorf("expected %v, got %v", ErrorOutofMemory, err)
	}
}

func TestFirstfit(t *testing.T) {
	setts := testsettings()
	setts["strategy"] = "firstfit"
	marena := NewArena(0, setts)
	defer marena.Release()

	ptrs := make([]unsafe.Pointer, 0, 64)
	for i := 0; i < 64; i++ {
		ptrs = append(ptrs, marena.Alloc(int64(rand.Intn(100) + 1)))
	}
	marena.Validate()
	for _, ptr := range ptrs {
		marena.Free(ptr)
	}
	marena.Validate()
	_, heap, _, _ := marena.Info()
	if heap != 0 {
		t.Errorf("expected %v, got %v", 0, heap)
	}
}

func TestArenaStats(t *testing.T) {
	setts := testsettings()
	setts["compute.stats"] = true
	marena := NewArena(0, setts)
	defer marena.Release()

	for i := 0; i < 100; i++ {
		marena.Free(marena.Alloc(100))
	}
	allocs, frees, _, _ := marena.Counts()
	if allocs != 100 {
		t.Errorf("expected %v, got %v", 100, allocs)
	} else if frees != 100 {
		t.Errorf("expected %v, got %v", 100, frees)
	}
	if x := marena.avsizes.Samples(); x != 100 {
		t.Errorf("expected %v, got %v", 100, x)
	}
	sizes, zs := marena.Utilization()
	if len(sizes) != len(zs) {
		t.Errorf("expected %v, got %v", len(sizes), len(zs))
	}
}

func BenchmarkArenaAlloc(b *testing.B) {
	setts := Defaultsettings()
	setts["arena.size"] = 10 * 1024 * 1024
	marena := NewArena(0, setts)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		marena.Alloc(96)
	}
}

func BenchmarkArenaFree(b *testing.B) {
	setts := Defaultsettings()
	setts["arena.size"] = 10 * 1024 * 1024
	marena := NewArena(0, setts)
	ptrs := []unsafe.Pointer{}
	for i := 0; i < b.N; i++ {
		ptrs = append(ptrs, marena.Alloc(96))
	}
	b.ResetTimer()
	for _, ptr := range ptrs {
		marena.Free(ptr)
	}
}
