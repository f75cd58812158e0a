package arch

// Reg numbers general purpose registers the way the x86 instruction
// encoding does.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "reg?"
}

// Saved is a register and the frame offset it is saved at.
type Saved struct {
	Reg    Reg
	Offset int64
}

// Layout is the stack frame a trampoline builds. Offsets are relative to the
// frame pointer handed to the report callback, which is the stack pointer at
// trampoline entry (it addresses the return address).
type Layout struct {
	// Reserve is the number of bytes subtracted from the stack pointer on
	// 64-bit layouts. It keeps the report call 16-byte aligned.
	Reserve int64
	// Args are the integer argument registers in argument order.
	Args []Saved
	// Preserved are other registers the stub restores before jumping to the
	// original function.
	Preserved []Saved
	// XMM is the number of vector argument registers saved, starting at
	// XMMOffset with a 16 byte stride.
	XMM       int
	XMMOffset int64
	// Stack is the offset of the first stack-passed argument.
	Stack int64
	// Report holds the registers the report callback takes its three words
	// in. X86 passes them on the stack instead.
	Report []Reg
	// Jump is the scratch register holding the original function address.
	Jump Reg
	// Positional layouts assign one slot per argument position regardless of
	// its class.
	Positional bool
}

// Frame sizes of the 64-bit layouts.
const (
	Win64Reserve = 0x68
	SysVReserve  = 0xC8
)

// Layout returns the frame layout of a.
func (a Arch) Layout() Layout {
	switch a {
	case X86:
		return Layout{
			Preserved: []Saved{{RCX, -4}, {RDX, -8}},
			Stack:     4,
			Jump:      RAX,
		}
	case X64Windows:
		// rcx..r9 go to the caller's shadow space, which directly precedes
		// the stack-passed arguments.
		return Layout{
			Reserve:    Win64Reserve,
			Args:       []Saved{{RCX, 0x08}, {RDX, 0x10}, {R8, 0x18}, {R9, 0x20}},
			XMM:        4,
			XMMOffset:  -Win64Reserve + 0x20,
			Stack:      0x28,
			Report:     []Reg{RCX, RDX, R8},
			Jump:       RAX,
			Positional: true,
		}
	case X64SysV:
		base := int64(-SysVReserve)
		return Layout{
			Reserve: SysVReserve,
			Args: []Saved{
				{RDI, base}, {RSI, base + 0x08}, {RDX, base + 0x10},
				{RCX, base + 0x18}, {R8, base + 0x20}, {R9, base + 0x28},
			},
			// al carries the vector register count of variadic calls and
			// r10 the static chain.
			Preserved: []Saved{{RAX, base + 0x30}, {R10, base + 0x38}},
			XMM:       8,
			XMMOffset: base + 0x40,
			Stack:     8,
			Report:    []Reg{RDI, RSI, RDX},
			Jump:      R11,
		}
	}
	return Layout{}
}
