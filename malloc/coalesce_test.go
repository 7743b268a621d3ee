package malloc

import "testing"
import "math/rand"

func TestCoalloc(t *testing.T) {
	ca := NewCoalloc(1024)
	if x := ca.Available(); x != 1024 {
		t.Errorf("expected %v, got %v", 1024, x)
	}

	off1, ok := ca.Allocate(100)
	if !ok || off1 != 0 {
		t.Errorf("expected %v, got %v (%v)", 0, off1, ok)
	}
	off2, _ := ca.Allocate(200)
	if off2 != 100 {
		t.Errorf("expected %v, got %v", 100, off2)
	}
	off3, _ := ca.Allocate(50)
	if off3 != 300 {
		t.Errorf("expected %v, got %v", 300, off3)
	}
	ca.Validate()

	// free the middle range, no merge possible.
	ca.Deallocate(off2, 200)
	ca.Validate()
	if x := ca.Available(); x != 1024-150 {
		t.Errorf("expected %v, got %v", 1024-150, x)
	}

	// free the head range, merges right.
	ca.Deallocate(off1, 100)
	ca.Validate()

	// free the last range, bridges both sides back to one range.
	ca.Deallocate(off3, 50)
	ca.Validate()
	if x := ca.Available(); x != 1024 {
		t.Errorf("expected %v, got %v", 1024, x)
	} else if len(ca.offsets) != 1 {
		t.Errorf("expected %v, got %v", 1, len(ca.offsets))
	}
}

func TestCoallocExhaust(t *testing.T) {
	ca := NewCoalloc(256)
	if _, ok := ca.Allocate(256); !ok {
		t.Errorf("unexpected allocation failure")
	}
	if _, ok := ca.Allocate(1); ok {
		t.Errorf("expected allocation failure")
	}
	ca.Deallocate(0, 256)
	ca.Validate()
	if x := ca.Available(); x != 256 {
		t.Errorf("expected %v, got %v", 256, x)
	}
}

func TestCoallocRandom(t *testing.T) {
	ca := NewCoalloc(1 << 20)
	type rng struct{ offset, size int64 }
	live := make([]rng, 0, 128)
	for i := 0; i < 10000; i++ {
		if len(live) == 0 || rand.Intn(2) == 0 {
			size := int64(rand.Intn(4096) + 1)
			if offset, ok := ca.Allocate(size); ok {
				live = append(live, rng{offset, size})
			}
		} else {
			j := rand.Intn(len(live))
			ca.Deallocate(live[j].offset, live[j].size)
			live = append(live[:j], live[j+1:]...)
		}
		ca.Validate()
	}
	for _, r := range live {
		ca.Deallocate(r.offset, r.size)
	}
	ca.Validate()
	if x := ca.Available(); x != 1<<20 {
		t.Errorf("expected %v, got %v", 1<<20, x)
	} else if len(ca.offsets) != 1 {
		t.Errorf("expected %v, got %v", 1, len(ca.offsets))
	}
}
