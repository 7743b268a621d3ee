package malloc

import "testing"
import "unsafe"

import s "github.com/bnclabs/gosettings"

func poolsettings() s.Settings {
	setts := Defaultsettings()
	setts["pool.atom.size"] = 32
	setts["pool.atom.count"] = 64
	return setts
}

func TestNewPool(t *testing.T) {
	pool := NewPool(poolsettings())
	if pool.pagesize != 2048 {
		t.Errorf("expected %v, got %v", 2048, pool.pagesize)
	}
	pool.Release()

	// atom.size rounds up to a power of 2.
	setts := poolsettings()
	setts["pool.atom.size"] = 48
	pool = NewPool(setts)
	if pool.atomsize != 64 {
		t.Errorf("expected %v, got %v", 64, pool.atomsize)
	}
	pool.Release()

	// panic case
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		setts := poolsettings()
		setts["pool.atom.count"] = 63
		NewPool(setts)
	}()
}

func TestPoolAlloc(t *testing.T) {
	pool := NewPool(poolsettings())
	defer pool.Release()

	// sub-atom request rounds to one atom.
	ptr1 := pool.Alloc(10)
	ptr2 := pool.Alloc(10)
	if ptr1 == ptr2 {
		t.Errorf("unexpected pointer aliasing")
	}
	diff := int64(uintptr(ptr2) - uintptr(ptr1))
	if diff != 32 && diff != -32 {
		t.Errorf("expected one atom apart, got %v", diff)
	}
	pool.Validate()

	// run of consecutive atoms.
	ptr3 := pool.Alloc(100) // 4 atoms
	pool.Validate()
	_, _, alloc, _ := pool.Info()
	if alloc != 32+32+128 {
		t.Errorf("expected %v, got %v", 32+32+128, alloc)
	}

	pool.Free(ptr1, 10)
	pool.Free(ptr2, 10)
	pool.Free(ptr3, 100)
	pool.Validate()
	_, _, alloc, _ = pool.Info()
	if alloc != 0 {
		t.Errorf("expected %v, got %v", 0, alloc)
	}
}

func TestPoolGrow(t *testing.T) {
	pool := NewPool(poolsettings())
	defer pool.Release()

	// exhaust the first page, force a second.
	ptrs := make([]unsafe.Pointer, 0, 128)
	for i := 0; i < 128; i++ {
		ptrs = append(ptrs, pool.Alloc(32))
	}
	pool.Validate()
	if pool.npages != 2 {
		t.Errorf("expected %v, got %v", 2, pool.npages)
	}
	// freeing everything releases pages down to one.
	for _, ptr := range ptrs {
		pool.Free(ptr, 32)
	}
	pool.Validate()
	if pool.npages != 1 {
		t.Errorf("expected %v, got %v", 1, pool.npages)
	}
	_, _, alloc, _ := pool.Info()
	if alloc != 0 {
		t.Errorf("expected %v, got %v", 0, alloc)
	}
}

func TestPoolZerosize(t *testing.T) {
	pool := NewPool(poolsettings())
	defer pool.Release()

	ptr := pool.Alloc(0)
	if ptr == nil {
		t.Errorf("expected non-nil sentinel")
	}
	pool.Free(ptr, 0)
	pool.Validate()
}

func TestPoolAllocalign(t *testing.T) {
	pool := NewPool(poolsettings())
	defer pool.Release()

	ptr := pool.Allocalign(10, 16)
	if (uintptr(ptr) & 15) != 0 {
		t.Errorf("pointer %x not 16 byte aligned", ptr)
	}
	pool.Free(ptr, 16)
	pool.Validate()
}

func TestPoolPagecapacity(t *testing.T) {
	pool := NewPool(poolsettings())
	defer pool.Release()

	// panic case
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		pool.Alloc(pool.pagesize + 1)
	}()
}

func BenchmarkPoolAlloc(b *testing.B) {
	pool := NewPool(Defaultsettings())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Free(pool.Alloc(96), 96)
	}
}
