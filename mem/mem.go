package mem

import "fmt"
import "sync"
import "unsafe"

import "github.com/srikwit/chocolate-milk/defs"

const PGSHIFT uint = 12
const PGSIZE int = 1 << PGSHIFT
const PGOFFSET Pa_t = 0xfff

const PTE_P Pa_t = 1 << 0
const PTE_W Pa_t = 1 << 1
const PTE_U Pa_t = 1 << 2
const PTE_PS Pa_t = 1 << 7
const PTE_NX Pa_t = 1 << 63

const PTE_ADDR Pa_t = 0x000f_ffff_ffff_f000
const PTE_FLAGS Pa_t = ^PTE_ADDR

// physical address
type Pa_t uint64

// physical frame viewed as a table of translation entries
type Pg_t [512]Pa_t

// physical frame viewed as bytes
type Bytepg_t [PGSIZE]uint8

func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

// the page table builder's allocation contract: page-aligned zeroed frames,
// one at a time, plus a window for writing a frame's contents.
type Page_i interface {
	Alloc() (Pa_t, defs.Err_t)
	Dmap(Pa_t) *Pg_t
	Dmap8(Pa_t) []uint8
}

// Physmem_t hands out frames from a free list over a contiguous arena that
// stands in for the machine's RAM. frames are exclusively owned by the
// caller once allocated; nothing frees during bootstrap.
type Physmem_t struct {
	sync.Mutex
	arena []uint8
	// index into nexti of first free frame, ^0 if exhausted
	freei   uint32
	freelen int
	nexti   []uint32
}

func Phys_init(size int) *Physmem_t {
	if size <= 0 || size%PGSIZE != 0 {
		panic("bad phys size")
	}
	phys := &Physmem_t{}
	phys.arena = make([]uint8, size)
	npg := size / PGSIZE
	phys.nexti = make([]uint32, npg)
	for i := 0; i < npg-1; i++ {
		phys.nexti[i] = uint32(i) + 1
	}
	phys.nexti[npg-1] = ^uint32(0)
	phys.freei = 0
	phys.freelen = npg
	return phys
}

// returns a page-aligned zeroed frame or -ENOMEM on exhaustion
func (phys *Physmem_t) Alloc() (Pa_t, defs.Err_t) {
	phys.Lock()
	ff := phys.freei
	if ff == ^uint32(0) {
		phys.Unlock()
		return 0, -defs.ENOMEM
	}
	phys.freei = phys.nexti[ff]
	phys.freelen--
	phys.Unlock()
	p_pg := Pa_t(ff) << PGSHIFT
	*phys.Dmap(p_pg) = Pg_t{}
	return p_pg, 0
}

func (phys *Physmem_t) Pgsfree() int {
	phys.Lock()
	defer phys.Unlock()
	return phys.freelen
}

// returns a page-aligned virtual view of the frame at p
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	if p&PGOFFSET != 0 || int(p)+PGSIZE > len(phys.arena) {
		panic(fmt.Sprintf("bad dmap %#x", uint64(p)))
	}
	return (*Pg_t)(unsafe.Pointer(&phys.arena[p]))
}

// byte view of the frame containing p, starting at p
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p &^ PGOFFSET)
	off := p & PGOFFSET
	bpg := Pg2bytes(pg)
	return bpg[off:]
}

// l is length of the mapping in bytes
func (phys *Physmem_t) Dmaplen(p Pa_t, l int) []uint8 {
	if int(p)+l > len(phys.arena) {
		panic("dmap too long")
	}
	return phys.arena[p : int(p)+l]
}
