package vm

import "testing"

import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/mem"

func mkpmap(t *testing.T, npg int) (*Pmap_t, *mem.Physmem_t) {
	phys := mem.Phys_init(npg * mem.PGSIZE)
	pt, err := Pmap_new(phys)
	if err != 0 {
		t.Fatalf("pmap_new: %v", err)
	}
	return pt, phys
}

func expectpanic(t *testing.T, what string, f func()) {
	defer func() {
		if recover() == nil {
			t.Fatalf("no panic: %v", what)
		}
	}()
	f()
}

func TestAligned(t *testing.T) {
	pt, _ := mkpmap(t, 64)
	expectpanic(t, "unaligned va", func() {
		pt.Map(0x10008, mem.PGSIZE, true, true, false)
	})
	expectpanic(t, "unaligned size", func() {
		pt.Map(0x10000, mem.PGSIZE+8, true, true, false)
	})
	expectpanic(t, "zero size", func() {
		pt.Map(0x10000, 0, true, true, false)
	})
	expectpanic(t, "negative size", func() {
		pt.Map(0x10000, -mem.PGSIZE, true, true, false)
	})
	expectpanic(t, "unaligned raw va", func() {
		pt.Map_raw(0x123, PG4K, 0x1000|mem.PTE_P)
	})
	expectpanic(t, "4K-aligned va for a 2M leaf", func() {
		pt.Map_raw(0x201000, PG2M, 0x200000|mem.PTE_PS|mem.PTE_P)
	})
}

func TestMapRaw(t *testing.T) {
	pt, _ := mkpmap(t, 64)
	raw := mem.Pa_t(0x7000) | mem.PTE_W | mem.PTE_P
	if err := pt.Map_raw(0x4000, PG4K, raw); err != 0 {
		t.Fatalf("map_raw: %v", err)
	}
	pte, ok := pt.Lookup(0x4000)
	if !ok {
		t.Fatalf("no mapping")
	}
	if pte != raw {
		t.Fatalf("entry %#x, wanted the caller's bits %#x", uint64(pte),
			uint64(raw))
	}
	if _, ok := pt.Lookup(0x5000); ok {
		t.Fatalf("phantom mapping")
	}
}

func TestRemap(t *testing.T) {
	pt, _ := mkpmap(t, 64)
	if err := pt.Map(0x4000, mem.PGSIZE, true, true, false); err != 0 {
		t.Fatalf("map: %v", err)
	}
	expectpanic(t, "remap", func() {
		pt.Map(0x4000, mem.PGSIZE, true, false, true)
	})
	expectpanic(t, "raw remap", func() {
		pt.Map_raw(0x4000, PG4K, 0x9000|mem.PTE_P)
	})
}

func TestMapRaw2M(t *testing.T) {
	pt, _ := mkpmap(t, 64)
	raw := mem.Pa_t(0x600000) | mem.PTE_PS | mem.PTE_W | mem.PTE_P
	if err := pt.Map_raw(0x40000000, PG2M, raw); err != 0 {
		t.Fatalf("map_raw: %v", err)
	}
	// every 4K address under the leaf resolves to the same entry
	for _, va := range []uintptr{0x40000000, 0x40001000, 0x401ff000} {
		pte, ok := pt.Lookup(va)
		if !ok {
			t.Fatalf("no mapping at %#x", va)
		}
		if pte != raw {
			t.Fatalf("entry %#x at %#x", uint64(pte), va)
		}
	}
	if _, ok := pt.Lookup(0x40200000); ok {
		t.Fatalf("phantom mapping")
	}
	expectpanic(t, "4K map under a PS leaf", func() {
		pt.Map(0x40001000, mem.PGSIZE, true, true, false)
	})
}

func TestMapPerms(t *testing.T) {
	pt, _ := mkpmap(t, 64)
	if err := pt.Map(0x4000, mem.PGSIZE, true, true, false); err != 0 {
		t.Fatalf("map: %v", err)
	}
	pte, ok := pt.Lookup(0x4000)
	if !ok {
		t.Fatalf("no mapping")
	}
	if pte&mem.PTE_W == 0 || pte&mem.PTE_NX == 0 {
		t.Fatalf("wanted rw-nx, got %#x", uint64(pte))
	}
	if err := pt.Map(0x6000, mem.PGSIZE, true, false, true); err != 0 {
		t.Fatalf("map: %v", err)
	}
	pte, _ = pt.Lookup(0x6000)
	if pte&mem.PTE_W != 0 || pte&mem.PTE_NX != 0 {
		t.Fatalf("wanted r-x, got %#x", uint64(pte))
	}
}

func TestMapInitFill(t *testing.T) {
	pt, phys := mkpmap(t, 64)
	// source backs 0x1800 bytes of a 0x3000 byte request; the rest of
	// each page and the whole final page must read as zero
	rlen := 0x1800
	size := 3 * mem.PGSIZE
	src := func(off int) uint8 {
		if off < rlen {
			return uint8(off>>4) | 1
		}
		return 0
	}
	if err := pt.Map_init(0x10000, size, true, false, true, src); err != 0 {
		t.Fatalf("map_init: %v", err)
	}
	for off := 0; off < size; off += mem.PGSIZE {
		pte, ok := pt.Lookup(uintptr(0x10000 + off))
		if !ok {
			t.Fatalf("page %#x missing", off)
		}
		pg := phys.Dmap8(pte & mem.PTE_ADDR)[:mem.PGSIZE]
		for i, b := range pg {
			want := uint8(0)
			if off+i < rlen {
				want = uint8((off+i)>>4) | 1
			}
			if b != want {
				t.Fatalf("byte %#x: %#x, wanted %#x", off+i, b, want)
			}
		}
	}
}

func TestIntermediateSharing(t *testing.T) {
	pt, phys := mkpmap(t, 64)
	before := phys.Pgsfree()
	if err := pt.Map(0x4000, mem.PGSIZE, true, true, false); err != 0 {
		t.Fatalf("map: %v", err)
	}
	// root already exists: 3 intermediates + 1 leaf frame
	if got := before - phys.Pgsfree(); got != 4 {
		t.Fatalf("first map took %v frames", got)
	}
	mid := phys.Pgsfree()
	// next page over shares every intermediate level
	if err := pt.Map(0x5000, mem.PGSIZE, true, true, false); err != 0 {
		t.Fatalf("map: %v", err)
	}
	if got := mid - phys.Pgsfree(); got != 1 {
		t.Fatalf("neighbor map took %v frames", got)
	}
}

func TestExhaustion(t *testing.T) {
	// room for the root and nothing like enough for the mapping
	pt, _ := mkpmap(t, 5)
	err := pt.Map(0x400000, 4*mem.PGSIZE, true, true, false)
	if err != -defs.ENOMEM {
		t.Fatalf("expected ENOMEM, got %v", err)
	}
}
