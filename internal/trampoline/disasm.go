package trampoline

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/QetzylTech/ZLUDA/internal/arch"
)

// Instruction is one decoded stub instruction.
type Instruction struct {
	Addr  uint64
	Bytes []byte
	Inst  x86asm.Inst
}

// Text renders the instruction in Intel syntax.
func (i Instruction) Text() string {
	return x86asm.IntelSyntax(i.Inst, i.Addr, nil)
}

func (i Instruction) String() string {
	return fmt.Sprintf("%#x: % x\t%s", i.Addr, i.Bytes, i.Text())
}

// Disassemble decodes code loaded at base.
func Disassemble(a arch.Arch, code []byte, base uint64) ([]Instruction, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, a)
	}
	var out []Instruction
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], a.Bits())
		if err != nil {
			return out, fmt.Errorf("failed to decode instruction at %#x: %w", base+uint64(off), err)
		}
		out = append(out, Instruction{
			Addr:  base + uint64(off),
			Bytes: code[off : off+inst.Len],
			Inst:  inst,
		})
		off += inst.Len
	}
	return out, nil
}

// Disassemble decodes the stub's own instructions.
func (t *Trampoline) Disassemble() ([]Instruction, error) {
	return Disassemble(t.arch, t.Code(), t.Addr())
}
