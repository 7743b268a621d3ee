package malloc

import "testing"

import "github.com/ov-l/ouly/api"
import "github.com/stretchr/testify/require"

func TestHeapsource(t *testing.T) {
	src := Heapsource()
	region, err := src.Alloc(1024)
	require.NoError(t, err)
	require.Equal(t, 1024, len(region))
	require.NoError(t, src.Advise(region, api.AdviceSequential))
	src.Free(region)
}

func TestMmapsource(t *testing.T) {
	src := Mmapsource()
	region, err := src.Alloc(4096)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	region[0], region[4095] = 0xaa, 0x55
	if region[0] != 0xaa || region[4095] != 0x55 {
		t.Errorf("region not writable")
	}
	if err := src.Advise(region, api.AdviceRandom); err != nil {
		t.Errorf("unexpected %v", err)
	}
	if err := src.Protect(region, api.ProtectionReadWrite); err != nil {
		t.Errorf("unexpected %v", err)
	}
	src.Free(region)
}

func TestArenaMmap(t *testing.T) {
	setts := Defaultsettings()
	setts["allocator"] = "mmap"
	setts["arena.size"] = 4096
	marena := NewArena(0, setts)
	defer marena.Release()

	ptr := marena.Alloc(100)
	if err := marena.Advise(ptr, 100, api.AdviceWillneed); err != nil {
		t.Errorf("unexpected %v", err)
	}
	marena.Free(ptr)
	marena.Validate()
}
