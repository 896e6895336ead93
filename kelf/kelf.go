// Package kelf parses 64-bit ELF kernel images and materializes their
// sections into a page table.
package kelf

import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/util"

const (
	ELF_QUARTER = 2
	ELF_HALF    = 4
	ELF_OFF     = 8
	ELF_ADDR    = 8
	ELF_XWORD   = 8
)

// ELF64 file offsets
const (
	e_ident     = 0x0
	e_class     = 0x4
	e_entry     = 0x18
	e_phoff     = 0x20
	e_ehsize    = 0x34
	e_phentsize = 0x36
	e_phnum     = 0x38
)

// program header field offsets
const (
	p_type   = 0x0
	p_flags  = 0x4
	p_offset = 0x8
	p_vaddr  = 0x10
	p_filesz = 0x20
	p_memsz  = 0x28
)

const (
	PT_LOAD = 1

	PF_X = 1
	PF_W = 2
	PF_R = 4
)

// a loadable region of the image. Size may exceed len(Raw); the tail reads
// as zero.
type Sect_t struct {
	Vaddr uintptr
	Size  int
	Raw   []uint8
	Read  bool
	Write bool
	Exec  bool
}

type Kimage_t struct {
	data   []uint8
	sected bool
}

// Parse validates the image enough to walk it: magic, 64-bit class, and
// that the header and all program headers are actually in the buffer.
func Parse(data []uint8) (*Kimage_t, defs.Err_t) {
	elfmag := 0x464c457f
	if len(data) < 0x40 || util.Readn(data, ELF_HALF, e_ident) != elfmag {
		return nil, -defs.ENOEXEC
	}
	elfclass64 := 2
	if util.Readn(data, 1, e_class) != elfclass64 {
		return nil, -defs.ENOEXEC
	}

	dlen := len(data)
	ehlen := util.Readn(data, ELF_QUARTER, e_ehsize)
	if dlen < ehlen {
		return nil, -defs.ENOEXEC
	}
	poff := util.Readn(data, ELF_OFF, e_phoff)
	phsz := util.Readn(data, ELF_QUARTER, e_phentsize)
	phnum := util.Readn(data, ELF_QUARTER, e_phnum)
	// poff is a full 8-byte field and may come back negative or huge;
	// phsz*phnum cannot overflow (both are 2-byte reads)
	if poff < 0 || poff > dlen || phsz < 0x38 || phsz*phnum > dlen-poff {
		return nil, -defs.ENOEXEC
	}
	return &Kimage_t{data: data}, 0
}

// declared entry virtual address
func (e *Kimage_t) Entry() uintptr {
	return uintptr(util.Readn(e.data, ELF_ADDR, e_entry))
}

func (e *Kimage_t) npheaders() int {
	return util.Readn(e.data, ELF_QUARTER, e_phnum)
}

func (e *Kimage_t) header(c int) (Sect_t, defs.Err_t) {
	d := e.data
	hoff := util.Readn(d, ELF_OFF, e_phoff)
	hsz := util.Readn(d, ELF_QUARTER, e_phentsize)
	f := func(w int, sz int) int {
		return util.Readn(d, sz, hoff+c*hsz+w)
	}
	var ret Sect_t
	if f(p_type, ELF_HALF) != PT_LOAD {
		return ret, 0
	}
	flags := f(p_flags, ELF_HALF)
	fileoff := f(p_offset, ELF_OFF)
	filesz := f(p_filesz, ELF_XWORD)
	ret.Vaddr = uintptr(f(p_vaddr, ELF_ADDR))
	ret.Size = f(p_memsz, ELF_XWORD)
	// fileoff+filesz can wrap; compare with the subtraction instead
	if filesz < 0 || fileoff < 0 || fileoff > len(d)-filesz ||
		filesz > ret.Size {
		return ret, -defs.ENOEXEC
	}
	ret.Raw = d[fileoff : fileoff+filesz]
	ret.Read = flags&PF_R != 0
	ret.Write = flags&PF_W != 0
	ret.Exec = flags&PF_X != 0
	return ret, 0
}

// Sections walks the loadable regions in file order. it may be consumed
// once; the walk stops early if f returns false.
func (e *Kimage_t) Sections(f func(Sect_t) bool) defs.Err_t {
	if e.sected {
		panic("sections consumed twice")
	}
	e.sected = true
	for i := 0; i < e.npheaders(); i++ {
		s, err := e.header(i)
		if err != 0 {
			return err
		}
		if s.Size == 0 {
			continue
		}
		if !f(s) {
			break
		}
	}
	return 0
}
