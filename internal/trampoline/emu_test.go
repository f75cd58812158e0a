package trampoline

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/QetzylTech/ZLUDA/internal/memory"
)

// cpu interprets the instruction subset stubs are built from. It is enough
// to run a stub from entry to its tail jump with a simulated report call.
type cpu struct {
	bits int
	gpr  [16]uint64
	xmm  [16][16]byte
	mem  map[uint64]byte
	pc   uint64
}

func newCPU(bits int) *cpu {
	return &cpu{bits: bits, mem: make(map[uint64]byte)}
}

func (c *cpu) word() int { return c.bits / 8 }

func (c *cpu) mask(v uint64) uint64 {
	if c.bits == 32 {
		return v & 0xffffffff
	}
	return v
}

func (c *cpu) store(addr uint64, b []byte) {
	for i, v := range b {
		c.mem[c.mask(addr+uint64(i))] = v
	}
}

func (c *cpu) load(addr uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		v, ok := c.mem[c.mask(addr+uint64(i))]
		if !ok {
			return nil, fmt.Errorf("read of unwritten byte at %#x", addr+uint64(i))
		}
		out[i] = v
	}
	return out, nil
}

func (c *cpu) storeWord(addr, v uint64, n int) {
	c.store(addr, binary.LittleEndian.AppendUint64(nil, v)[:n])
}

func (c *cpu) loadWord(addr uint64, n int) (uint64, error) {
	b, err := c.load(addr, n)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadAt lets the report hook decode frames out of emulated memory.
func (c *cpu) ReadAt(p []byte, off int64) (int, error) {
	b, err := c.load(uint64(off), len(p))
	if err != nil {
		return 0, memory.ErrUnmapped
	}
	return copy(p, b), nil
}

func (c *cpu) sp() uint64 { return c.gpr[4] }

func (c *cpu) push(v uint64) {
	c.gpr[4] = c.mask(c.gpr[4] - uint64(c.word()))
	c.storeWord(c.gpr[4], v, c.word())
}

func (c *cpu) pop() (uint64, error) {
	v, err := c.loadWord(c.gpr[4], c.word())
	c.gpr[4] = c.mask(c.gpr[4] + uint64(c.word()))
	return v, err
}

// gpr maps any width of a general purpose register to its index and width.
func gprIndex(r x86asm.Reg) (int, int, bool) {
	switch {
	case r >= x86asm.RAX && r <= x86asm.R15:
		return int(r - x86asm.RAX), 8, true
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return int(r - x86asm.EAX), 4, true
	}
	return 0, 0, false
}

func xmmIndex(r x86asm.Reg) (int, bool) {
	if r >= x86asm.X0 && r <= x86asm.X15 {
		return int(r - x86asm.X0), true
	}
	return 0, false
}

func (c *cpu) addr(m x86asm.Mem) (uint64, error) {
	if m.Index != 0 || m.Segment != 0 {
		return 0, fmt.Errorf("unsupported memory operand %v", m)
	}
	i, _, ok := gprIndex(m.Base)
	if !ok {
		return 0, fmt.Errorf("unsupported base %v", m.Base)
	}
	return c.mask(c.gpr[i] + uint64(m.Disp)), nil
}

func (c *cpu) value(a x86asm.Arg) (uint64, int, error) {
	switch a := a.(type) {
	case x86asm.Reg:
		i, w, ok := gprIndex(a)
		if !ok {
			return 0, 0, fmt.Errorf("unsupported register %v", a)
		}
		return c.gpr[i] & widthMask(w), w, nil
	case x86asm.Imm:
		return c.mask(uint64(a)), 0, nil
	}
	return 0, 0, fmt.Errorf("unsupported operand %v", a)
}

func widthMask(w int) uint64 {
	if w == 8 {
		return ^uint64(0)
	}
	return 1<<(8*w) - 1
}

// callHook runs at a call instruction, after the return address is pushed.
// It acts as the callee and must leave the stack as the callee would.
type callHook func(c *cpu, target uint64) error

// run executes from entry until a jmp through a register and returns the
// jump target.
func (c *cpu) run(code []byte, base, entry uint64, onCall callHook) (uint64, error) {
	c.pc = entry
	for steps := 0; steps < 1000; steps++ {
		off := c.pc - base
		if off >= uint64(len(code)) {
			return 0, fmt.Errorf("pc %#x outside code", c.pc)
		}
		inst, err := x86asm.Decode(code[off:], c.bits)
		if err != nil {
			return 0, fmt.Errorf("decode at %#x: %w", c.pc, err)
		}
		next := c.pc + uint64(inst.Len)
		dst, src := inst.Args[0], inst.Args[1]

		switch inst.Op {
		case x86asm.MOV:
			switch d := dst.(type) {
			case x86asm.Reg:
				i, w, ok := gprIndex(d)
				if !ok {
					return 0, fmt.Errorf("mov to %v", d)
				}
				var v uint64
				if m, isMem := src.(x86asm.Mem); isMem {
					a, err := c.addr(m)
					if err != nil {
						return 0, err
					}
					if v, err = c.loadWord(a, w); err != nil {
						return 0, err
					}
				} else if v, _, err = c.value(src); err != nil {
					return 0, err
				}
				c.gpr[i] = v & widthMask(w)
			case x86asm.Mem:
				a, err := c.addr(d)
				if err != nil {
					return 0, err
				}
				v, w, err := c.value(src)
				if err != nil {
					return 0, err
				}
				c.storeWord(a, v, w)
			}

		case x86asm.LEA:
			i, w, _ := gprIndex(dst.(x86asm.Reg))
			a, err := c.addr(src.(x86asm.Mem))
			if err != nil {
				return 0, err
			}
			c.gpr[i] = a & widthMask(w)

		case x86asm.SUB, x86asm.ADD:
			i, _, _ := gprIndex(dst.(x86asm.Reg))
			v, _, err := c.value(src)
			if err != nil {
				return 0, err
			}
			if inst.Op == x86asm.SUB {
				c.gpr[i] = c.mask(c.gpr[i] - v)
			} else {
				c.gpr[i] = c.mask(c.gpr[i] + v)
			}

		case x86asm.MOVDQU:
			if x, ok := dst.(x86asm.Reg); ok {
				xi, _ := xmmIndex(x)
				a, err := c.addr(src.(x86asm.Mem))
				if err != nil {
					return 0, err
				}
				b, err := c.load(a, 16)
				if err != nil {
					return 0, err
				}
				copy(c.xmm[xi][:], b)
			} else {
				xi, _ := xmmIndex(src.(x86asm.Reg))
				a, err := c.addr(dst.(x86asm.Mem))
				if err != nil {
					return 0, err
				}
				c.store(a, c.xmm[xi][:])
			}

		case x86asm.PUSH:
			v, _, err := c.value(dst)
			if err != nil {
				return 0, err
			}
			c.push(v)

		case x86asm.POP:
			i, _, _ := gprIndex(dst.(x86asm.Reg))
			v, err := c.pop()
			if err != nil {
				return 0, err
			}
			c.gpr[i] = v

		case x86asm.CALL:
			target, _, err := c.value(dst)
			if err != nil {
				return 0, err
			}
			c.push(next)
			if err := onCall(c, target); err != nil {
				return 0, err
			}

		case x86asm.JMP:
			target, _, err := c.value(dst)
			return target, err

		default:
			return 0, fmt.Errorf("unexpected instruction %v at %#x", inst, c.pc)
		}
		c.pc = next
	}
	return 0, fmt.Errorf("stub did not finish")
}
