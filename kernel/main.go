// Host-side rehearsal of the boot path: a handful of "cores" race through
// boot.Entry against an in-memory physical arena and a canned kernel
// image, and the trampoline prints what each core would have jumped with.
package main

import "fmt"
import "os"
import "sync"

import "github.com/srikwit/chocolate-milk/boot"
import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/pxe"

const ncores = 3

// one byte past the end of the "bootloader"
const bootloaderEnd = 0x50000

func le(buf []uint8, off int, sz int, v uint64) {
	for i := 0; i < sz; i++ {
		buf[off+i] = uint8(v >> (8 * uint(i)))
	}
}

// a two-segment ELF64 kernel: R-X text at 0x10000 with a zero tail and
// RW data at 0x12000
func mkkernel() []uint8 {
	text := make([]uint8, 0x1000)
	for i := range text {
		text[i] = uint8(i)
	}
	data := []uint8("chocolate milk payload")

	ehsize, phentsize := 0x40, 0x38
	hdrs := ehsize + 2*phentsize
	img := make([]uint8, hdrs+len(text)+len(data))
	copy(img[hdrs:], text)
	copy(img[hdrs+len(text):], data)

	le(img, 0, 4, 0x464c457f)
	img[4] = 2 // ELFCLASS64
	le(img, 0x18, 8, 0x10000)         // e_entry
	le(img, 0x20, 8, uint64(ehsize))  // e_phoff
	le(img, 0x34, 2, uint64(ehsize))  // e_ehsize
	le(img, 0x36, 2, uint64(phentsize))
	le(img, 0x38, 2, 2) // e_phnum

	ph := func(i int, flags, off, vaddr, filesz, memsz uint64) {
		b := ehsize + i*phentsize
		le(img, b+0x0, 4, 1) // PT_LOAD
		le(img, b+0x4, 4, flags)
		le(img, b+0x8, 8, off)
		le(img, b+0x10, 8, vaddr)
		le(img, b+0x20, 8, filesz)
		le(img, b+0x28, 8, memsz)
	}
	ph(0, 5, uint64(hdrs), 0x10000, uint64(len(text)), 0x2000)
	ph(1, 6, uint64(hdrs+len(text)), 0x12000, uint64(len(data)), 0x1000)
	return img
}

func main() {
	fetch := &pxe.Memfetch_t{Files: map[string][]uint8{
		defs.KERNEL_NAME: mkkernel(),
	}}
	ba := boot.Bootargs_new()

	var wg sync.WaitGroup
	for i := 0; i < ncores; i++ {
		wg.Add(1)
		core := i
		go func() {
			defer wg.Done()
			boot.Entry(ba, bootloaderEnd, fetch, os.Stdout,
				func(entry, stack uintptr, param *boot.Bootargs_t,
					cr3, trampcr3 uint32, physbase uintptr) {
					param.Cons().Printf(
						"core %v: entry %#x stack %#x cr3 %#x tramp %#x window %#x\n",
						core, entry, stack, cr3, trampcr3, physbase)
				})
		}()
	}
	wg.Wait()
	ba.Cons().Flush()
	fmt.Printf("all cores handed off\n")
}
