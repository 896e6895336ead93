// Package boot sequences second-stage bootstrap: serial and physical
// memory bring-up, one-time kernel download and page table construction,
// and the per-core stack carve and handoff to the mode-switch trampoline.
package boot

import "io"
import "sync"
import "sync/atomic"

import "github.com/srikwit/chocolate-milk/defs"
import "github.com/srikwit/chocolate-milk/kelf"
import "github.com/srikwit/chocolate-milk/mem"
import "github.com/srikwit/chocolate-milk/pxe"
import "github.com/srikwit/chocolate-milk/serial"
import "github.com/srikwit/chocolate-milk/vm"

// Enter64_t performs the actual switch to 64-bit long mode and never
// returns: (kernel entry, top of stack, shared state for the kernel, kernel
// table root, trampoline table root, physical window base). the roots fit
// in 32 bits because the switch code still runs with 32-bit registers.
type Enter64_t func(entry uintptr, stack uintptr, param *Bootargs_t,
	cr3 uint32, trampcr3 uint32, physbase uintptr)

// Bootargs_t is the state every core shares with every other core and,
// after handoff, with the kernel. each field is guarded on its own so
// unrelated fields never contend; all of them transition unset to set
// exactly once.
type Bootargs_t struct {
	pmlock sync.Mutex
	pmem   *mem.Physmem_t

	conslock sync.Mutex
	cons     *serial.Cons_t

	entlock sync.Mutex
	entry   uintptr
	entset  bool

	ptlock sync.Mutex
	pt     *vm.Pmap_t

	tramplock sync.Mutex
	tramppt   *vm.Pmap_t

	// next stack base; only ever touched with sequentially consistent
	// fetch-and-add, never rolled back
	stackva uint64
}

func Bootargs_new() *Bootargs_t {
	return &Bootargs_t{stackva: uint64(defs.KSTACKS_BASE)}
}

// console accessor for the kernel side of the handoff
func (ba *Bootargs_t) Cons() *serial.Cons_t {
	ba.conslock.Lock()
	defer ba.conslock.Unlock()
	return ba.cons
}

// emits the diagnostic and halts the calling core. nothing restarts us.
func (ba *Bootargs_t) fatal(msg string, e defs.Err_t) {
	if cons := ba.Cons(); cons != nil {
		cons.Printf("%s: %v\n", msg, e)
		cons.Flush()
	}
	panic(msg)
}

func (ba *Bootargs_t) serinit(conout io.Writer, bootloaderEnd uintptr) {
	ba.conslock.Lock()
	if ba.cons == nil {
		ba.cons = serial.New(conout)
		cons := ba.cons
		ba.conslock.Unlock()
		// "clear" the screen
		for i := 0; i < 100; i++ {
			cons.Printf("\n")
		}
		cons.Printf("Chocolate Milk bootloader starting...\n")
		cons.Printf("Bootloader end at %#x\n", bootloaderEnd)
		return
	}
	ba.conslock.Unlock()
}

func (ba *Bootargs_t) mminit() {
	ba.pmlock.Lock()
	if ba.pmem == nil {
		ba.pmem = mem.Phys_init(int(defs.PHYS_WINDOW_SIZE))
	}
	ba.pmlock.Unlock()
}

// builds the table that survives the instant of the mode switch: the
// bootloader's own footprint mapped both at identity and shifted up into
// the physical window, raw entries, rw. the frames already hold our live
// code and data so there is nothing to copy.
func tramptable(pm mem.Page_i, bootloaderEnd uintptr) (*vm.Pmap_t, defs.Err_t) {
	tramp, err := vm.Pmap_new(pm)
	if err != 0 {
		return nil, err
	}
	for pa := uintptr(0); pa < bootloaderEnd; pa += uintptr(mem.PGSIZE) {
		pte := mem.Pa_t(pa) | mem.PTE_W | mem.PTE_P
		if err := tramp.Map_raw(pa, vm.PG4K, pte); err != 0 {
			return nil, err
		}
		if err := tramp.Map_raw(defs.PHYS_WINDOW_BASE+pa, vm.PG4K, pte); err != 0 {
			return nil, err
		}
	}
	return tramp, 0
}

// maps the full declared physical window linearly at PHYS_WINDOW_BASE,
// rw, no-execute, so the kernel can reach any frame without further setup.
func physwindow(table *vm.Pmap_t) defs.Err_t {
	for pa := uintptr(0); pa < defs.PHYS_WINDOW_SIZE; pa += uintptr(mem.PGSIZE) {
		pte := mem.Pa_t(pa) | mem.PTE_W | mem.PTE_P | mem.PTE_NX
		if err := table.Map_raw(defs.PHYS_WINDOW_BASE+pa, vm.PG4K, pte); err != 0 {
			return err
		}
	}
	return 0
}

// Entry is executed by every core once it reaches protected mode; the
// first to arrive does the one-time work, the rest find it done. it does
// not return: the last thing it does is hand this core to enter64.
func Entry(ba *Bootargs_t, bootloaderEnd uintptr, fetch pxe.Fetch_i,
	conout io.Writer, enter64 Enter64_t) {
	ba.serinit(conout, bootloaderEnd)
	ba.mminit()

	// the one-time section holds all three cells for its whole duration:
	// a later core sees either nothing or everything, never a partially
	// built kernel table.
	ba.entlock.Lock()
	ba.ptlock.Lock()
	ba.tramplock.Lock()

	if !ba.entset {
		if ba.pt != nil || ba.tramppt != nil {
			panic("page tables set up before kernel!?")
		}
		cons := ba.Cons()

		kern, err := fetch.Download(defs.KERNEL_NAME)
		if err != 0 {
			ba.fatal("failed to download "+defs.KERNEL_NAME, err)
		}
		img, err := kelf.Parse(kern)
		if err != 0 {
			ba.fatal("failed to parse kernel image", err)
		}

		ba.pmlock.Lock()
		pmem := ba.pmem
		ba.pmlock.Unlock()
		if pmem == nil {
			panic("whoa, physical memory not initialized yet")
		}

		tramp, err := tramptable(pmem, bootloaderEnd)
		if err != 0 {
			ba.fatal("trampoline table", err)
		}

		table, err := vm.Pmap_new(pmem)
		if err != 0 {
			ba.fatal("kernel table", err)
		}
		if err := physwindow(table); err != 0 {
			ba.fatal("physical window", err)
		}
		entry, err := kelf.Load(img, table, cons)
		if err != 0 {
			ba.fatal("failed to load kernel image", err)
		}
		cons.Printf("Entry point is %#x\n", entry)

		ba.entry = entry
		ba.entset = true
		ba.tramppt = tramp
		ba.pt = table
	}

	// fetch-and-add ticket: this core's range can never be handed out
	// again, no matter how the cores interleave
	span := uint64(defs.KSTACK_SIZE + defs.KSTACK_PAD)
	stackva := uintptr(atomic.AddUint64(&ba.stackva, span) - span)

	if err := ba.pt.Map(stackva, int(defs.KSTACK_SIZE), true, true, false); err != 0 {
		ba.fatal("stack map", err)
	}

	entry := ba.entry
	cr3 := uint32(ba.pt.P_pmap())
	trampcr3 := uint32(ba.tramppt.P_pmap())

	ba.tramplock.Unlock()
	ba.ptlock.Unlock()
	ba.entlock.Unlock()

	enter64(entry, stackva+defs.KSTACK_SIZE, ba, cr3, trampcr3,
		defs.PHYS_WINDOW_BASE)
}
