package vm

import "fmt"

import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/mem"
import "github.com/srikwit/chocolate-milk/util"

// leaf granularity of a mapping
type Pgsize_t int

const (
	PG4K Pgsize_t = iota
	PG2M
)

func (ps Pgsize_t) lvl() int {
	switch ps {
	case PG4K:
		return 0
	case PG2M:
		return 1
	}
	panic("bad page size")
}

func (ps Pgsize_t) offmask() uintptr {
	// 9 more offset bits per level above PT
	return uintptr(mem.PGSIZE)<<(9*uint(ps.lvl())) - 1
}

// Pmap_t is a 4-level page table rooted at one owned frame. every frame a
// present entry points at is owned by this table for its lifetime; two
// tables never share frames.
type Pmap_t struct {
	pm   mem.Page_i
	root mem.Pa_t
}

// allocates a fresh zeroed root frame
func Pmap_new(pm mem.Page_i) (*Pmap_t, defs.Err_t) {
	p_root, err := pm.Alloc()
	if err != 0 {
		return nil, err
	}
	return &Pmap_t{pm: pm, root: p_root}, 0
}

// physical address of the root frame; what goes in cr3
func (p *Pmap_t) P_pmap() mem.Pa_t {
	return p.root
}

func slotof(v uintptr, lvl int) int {
	return int((uint64(v) >> (12 + 9*uint(lvl))) & 0x1ff)
}

// walks to the table page holding v's entry at level lvl (0 is the PT),
// allocating zeroed intermediate levels as needed. intermediates created
// here are shared by later walks of nearby addresses.
func (p *Pmap_t) pgtbl(v uintptr, create bool, lvl int) (*mem.Pg_t, int, defs.Err_t) {
	pg := p.pm.Dmap(p.root)
	for l := 3; l > lvl; l-- {
		idx := slotof(v, l)
		pe := pg[idx]
		if pe&mem.PTE_P == 0 {
			if !create {
				return nil, 0, 0
			}
			p_np, err := p.pm.Alloc()
			if err != 0 {
				return nil, 0, err
			}
			pe = p_np | mem.PTE_P | mem.PTE_W | mem.PTE_U
			pg[idx] = pe
		}
		if pe&mem.PTE_PS != 0 {
			panic(fmt.Sprintf("walk into PS page at %#x", v))
		}
		pg = p.pm.Dmap(pe & mem.PTE_ADDR)
	}
	return pg, slotof(v, lvl), 0
}

// installs one leaf entry, aborting if a mapping is already present.
// overlap is a programming error, never silently resolved.
func (p *Pmap_t) install(va uintptr, lvl int, pte mem.Pa_t) defs.Err_t {
	pg, slot, err := p.pgtbl(va, true, lvl)
	if err != 0 {
		return err
	}
	if pg[slot]&mem.PTE_P != 0 {
		panic(fmt.Sprintf("va %#x already mapped", va))
	}
	pg[slot] = pte
	return 0
}

// Map_raw installs one leaf of the given size whose bits are exactly
// rawpte: physical target and permission/present/PS bits are the caller's
// problem. this is the escape hatch for identity/window maps of frames
// that already hold live bytes; no content is copied.
func (p *Pmap_t) Map_raw(va uintptr, pgsz Pgsize_t, rawpte mem.Pa_t) defs.Err_t {
	if va&pgsz.offmask() != 0 {
		panic(fmt.Sprintf("unaligned va %#x", va))
	}
	return p.install(va, pgsz.lvl(), rawpte)
}

// Map maps [va, va+size) to fresh zeroed frames with the given permissions.
func (p *Pmap_t) Map(va uintptr, size int, read, write, exec bool) defs.Err_t {
	return p.Map_init(va, size, read, write, exec, nil)
}

// Map_init is Map, but each page's bytes within [0, size) are produced by
// the byte source before the entry is installed. offsets past the source's
// backing read as zero, so an image's zero-fill tail needs no special case.
// read is implied by present on this architecture.
func (p *Pmap_t) Map_init(va uintptr, size int, read, write, exec bool,
	src func(int) uint8) defs.Err_t {
	if va&uintptr(mem.PGOFFSET) != 0 {
		panic(fmt.Sprintf("unaligned va %#x", va))
	}
	if size <= 0 || size%mem.PGSIZE != 0 {
		panic(fmt.Sprintf("bad map size %#x", size))
	}
	perms := mem.PTE_P
	if write {
		perms |= mem.PTE_W
	}
	if !exec {
		perms |= mem.PTE_NX
	}
	for off := 0; off < size; off += mem.PGSIZE {
		p_pg, err := p.pm.Alloc()
		if err != 0 {
			return err
		}
		if src != nil {
			dst := p.pm.Dmap8(p_pg)
			n := util.Min(mem.PGSIZE, size-off)
			for i := 0; i < n; i++ {
				dst[i] = src(off + i)
			}
		}
		if err := p.install(va+uintptr(off), 0, p_pg|perms); err != 0 {
			return err
		}
	}
	return 0
}

// Lookup returns the leaf entry covering va, if present.
func (p *Pmap_t) Lookup(va uintptr) (mem.Pa_t, bool) {
	pg := p.pm.Dmap(p.root)
	for l := 3; ; l-- {
		pe := pg[slotof(va, l)]
		if pe&mem.PTE_P == 0 {
			return 0, false
		}
		if l == 0 || pe&mem.PTE_PS != 0 {
			return pe, true
		}
		pg = p.pm.Dmap(pe & mem.PTE_ADDR)
	}
}
