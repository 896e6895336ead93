package defs

type Err_t int

const (
	ENOENT    Err_t = 2
	EIO       Err_t = 5
	ENOEXEC   Err_t = 8
	ENOMEM    Err_t = 12
	EINVAL    Err_t = 22
	ETIMEDOUT Err_t = 110
)

var errstr = map[Err_t]string{
	ENOENT:    "no such file",
	EIO:       "i/o error",
	ENOEXEC:   "exec format error",
	ENOMEM:    "out of memory",
	EINVAL:    "invalid argument",
	ETIMEDOUT: "timed out",
}

func (e Err_t) String() string {
	if s, ok := errstr[e]; ok {
		return s
	}
	if s, ok := errstr[-e]; ok {
		return s
	}
	return "unknown error"
}

// Name of the kernel image requested from the boot server.
const KERNEL_NAME = "chocolate_milk.kern"

// Per-core kernel stacks are carved out of a monotonic cursor starting at
// KSTACKS_BASE. Each core owns [base, base+KSTACK_SIZE) with KSTACK_PAD of
// unmapped guard above it.
const (
	KSTACKS_BASE uintptr = 0x0000_7473_0000_0000
	KSTACK_SIZE  uintptr = 0x10000
	KSTACK_PAD   uintptr = 0x10000
)

// The kernel page table carries a linear window over all of physical
// memory: virtual PHYS_WINDOW_BASE+p maps physical p for every page
// p < PHYS_WINDOW_SIZE. Physical memory past the window does not exist as
// far as this stage is concerned.
const (
	PHYS_WINDOW_BASE uintptr = 0xffff_cafe_0000_0000
	PHYS_WINDOW_SIZE uintptr = 64 << 20
)
