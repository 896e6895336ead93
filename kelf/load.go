package kelf

import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/mem"
import "github.com/srikwit/chocolate-milk/serial"
import "github.com/srikwit/chocolate-milk/util"
import "github.com/srikwit/chocolate-milk/vm"

func permchars(s Sect_t) string {
	out := []uint8{'-', '-', '-'}
	if s.Read {
		out[0] = 'R'
	}
	if s.Write {
		out[1] = 'W'
	}
	if s.Exec {
		out[2] = 'X'
	}
	return string(out)
}

// Load maps every section of the image into pt: raw bytes first, zero the
// rest, section permissions on each page. overlap between sections is the
// image builder's invariant, not re-checked here. returns the declared
// entry address.
func Load(img *Kimage_t, pt *vm.Pmap_t, cons *serial.Cons_t) (uintptr, defs.Err_t) {
	var maperr defs.Err_t
	err := img.Sections(func(s Sect_t) bool {
		if s.Vaddr&uintptr(mem.PGOFFSET) != 0 {
			maperr = -defs.ENOEXEC
			return false
		}
		raw := s.Raw
		size := util.Roundup(s.Size, mem.PGSIZE)
		maperr = pt.Map_init(s.Vaddr, size, s.Read, s.Write, s.Exec,
			func(off int) uint8 {
				if off < len(raw) {
					return raw[off]
				}
				return 0
			})
		if maperr != 0 {
			return false
		}
		cons.Printf("Created map at %#018x for %#018x bytes | perms %s\n",
			s.Vaddr, s.Size, permchars(s))
		return true
	})
	if err != 0 {
		return 0, err
	}
	if maperr != 0 {
		return 0, maperr
	}
	return img.Entry(), 0
}
