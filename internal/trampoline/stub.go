package trampoline

import (
	"fmt"
	"math"

	"github.com/QetzylTech/ZLUDA/internal/arch"
)

// emit generates the stub code for one entry point. tagAddr is the address
// the 16 byte call tag is stored at.
func emit(a arch.Arch, p Params, tagAddr uint64) ([]byte, error) {
	switch a {
	case arch.X86:
		return emit32(a.Layout(), p, tagAddr)
	case arch.X64Windows, arch.X64SysV:
		return emit64(a.Layout(), p, tagAddr), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, a)
}

// emit32 generates the x86 stub. Arguments stay where the caller pushed
// them; the stub only pushes the preserved registers and the report words,
// and the stdcall report function pops its own arguments.
//
//	push ecx / push edx
//	lea eax, [esp+8]        ; frame
//	push eax / push index / push tag
//	mov eax, report / call eax
//	pop edx / pop ecx
//	mov eax, original / jmp eax
func emit32(l arch.Layout, p Params, tagAddr uint64) ([]byte, error) {
	for name, v := range map[string]uint64{
		"original function": p.Original,
		"report function":   p.Report,
		"tag address":       tagAddr,
		"index":             p.Identity.Index,
	} {
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("%s 0x%x does not fit in 32 bits", name, v)
		}
	}

	var a asm
	for _, s := range l.Preserved {
		a.push(s.Reg)
	}
	a.lea32(arch.RAX, int32(4*len(l.Preserved)))
	a.push(arch.RAX)
	a.pushImm32(uint32(p.Identity.Index))
	a.pushImm32(uint32(tagAddr))
	a.movImm32(arch.RAX, uint32(p.Report))
	a.call(arch.RAX)
	for i := len(l.Preserved) - 1; i >= 0; i-- {
		a.pop(l.Preserved[i].Reg)
	}
	a.movImm32(l.Jump, uint32(p.Original))
	a.jmp(l.Jump)
	a.int3()
	return a.buf, nil
}

// emit64 generates the stub for both x64 layouts. Saves at positive frame
// offsets land in the caller's shadow space and are written before the
// stack pointer moves; the rest live inside the reserved area.
func emit64(l arch.Layout, p Params, tagAddr uint64) []byte {
	saves := append(append([]arch.Saved(nil), l.Args...), l.Preserved...)
	rel := func(off int64) int32 { return int32(off + l.Reserve) }

	var a asm
	for _, s := range saves {
		if s.Offset > 0 {
			a.store64(int32(s.Offset), s.Reg)
		}
	}
	a.subSP(uint32(l.Reserve))
	for _, s := range saves {
		if s.Offset < 0 {
			a.store64(rel(s.Offset), s.Reg)
		}
	}
	for i := 0; i < l.XMM; i++ {
		a.storeXMM(rel(l.XMMOffset+16*int64(i)), i)
	}

	a.movImm64(l.Report[0], tagAddr)
	a.movImm64(l.Report[1], p.Identity.Index)
	a.lea64(l.Report[2], int32(l.Reserve))
	a.movImm64(arch.RAX, p.Report)
	a.call(arch.RAX)

	for i := 0; i < l.XMM; i++ {
		a.loadXMM(i, rel(l.XMMOffset+16*int64(i)))
	}
	for _, s := range saves {
		if s.Offset < 0 {
			a.load64(s.Reg, rel(s.Offset))
		}
	}
	a.addSP(uint32(l.Reserve))
	for _, s := range saves {
		if s.Offset > 0 {
			a.load64(s.Reg, int32(s.Offset))
		}
	}

	a.movImm64(l.Jump, p.Original)
	a.jmp(l.Jump)
	a.int3()
	return a.buf
}
