package trampoline

import (
	"encoding/binary"

	"github.com/QetzylTech/ZLUDA/internal/arch"
)

// asm is a minimal x86 encoder covering the instructions stubs are made of.
// Memory operands are always stack-pointer relative.
type asm struct {
	buf []byte
}

func (a *asm) bytes(b ...byte) { a.buf = append(a.buf, b...) }

func (a *asm) imm32(v uint32) { a.buf = binary.LittleEndian.AppendUint32(a.buf, v) }

func (a *asm) imm64(v uint64) { a.buf = binary.LittleEndian.AppendUint64(a.buf, v) }

// rex emits a REX prefix when one is needed. r extends ModRM.reg, b extends
// ModRM.rm or the opcode register.
func (a *asm) rex(w bool, r, b arch.Reg) {
	p := byte(0x40)
	if w {
		p |= 0x08
	}
	if r >= arch.R8 {
		p |= 0x04
	}
	if b >= arch.R8 {
		p |= 0x01
	}
	if p != 0x40 {
		a.bytes(p)
	}
}

// spMem emits ModRM, SIB and displacement for [rsp+disp].
func (a *asm) spMem(reg byte, disp int32) {
	const sib = 0x24 // base rsp, no index
	switch {
	case disp == 0:
		a.bytes(reg<<3|0x04, sib)
	case disp >= -128 && disp <= 127:
		a.bytes(0x40|reg<<3|0x04, sib, byte(int8(disp)))
	default:
		a.bytes(0x80|reg<<3|0x04, sib)
		a.imm32(uint32(disp))
	}
}

// store64 encodes mov [rsp+disp], r64.
func (a *asm) store64(disp int32, r arch.Reg) {
	a.rex(true, r, 0)
	a.bytes(0x89)
	a.spMem(byte(r&7), disp)
}

// load64 encodes mov r64, [rsp+disp].
func (a *asm) load64(r arch.Reg, disp int32) {
	a.rex(true, r, 0)
	a.bytes(0x8b)
	a.spMem(byte(r&7), disp)
}

// lea64 encodes lea r64, [rsp+disp].
func (a *asm) lea64(r arch.Reg, disp int32) {
	a.rex(true, r, 0)
	a.bytes(0x8d)
	a.spMem(byte(r&7), disp)
}

// lea32 encodes lea r32, [esp+disp] in 32-bit mode.
func (a *asm) lea32(r arch.Reg, disp int32) {
	a.bytes(0x8d)
	a.spMem(byte(r&7), disp)
}

// movImm64 encodes mov r64, imm64.
func (a *asm) movImm64(r arch.Reg, v uint64) {
	a.rex(true, 0, r)
	a.bytes(0xb8 + byte(r&7))
	a.imm64(v)
}

// movImm32 encodes mov r32, imm32 in 32-bit mode.
func (a *asm) movImm32(r arch.Reg, v uint32) {
	a.bytes(0xb8 + byte(r&7))
	a.imm32(v)
}

// subSP and addSP adjust the 64-bit stack pointer.
func (a *asm) subSP(v uint32) {
	a.bytes(0x48, 0x81, 0xec)
	a.imm32(v)
}

func (a *asm) addSP(v uint32) {
	a.bytes(0x48, 0x81, 0xc4)
	a.imm32(v)
}

// storeXMM encodes movdqu [rsp+disp], xmmN.
func (a *asm) storeXMM(disp int32, x int) {
	a.bytes(0xf3)
	a.rex(false, arch.Reg(x), 0)
	a.bytes(0x0f, 0x7f)
	a.spMem(byte(x&7), disp)
}

// loadXMM encodes movdqu xmmN, [rsp+disp].
func (a *asm) loadXMM(x int, disp int32) {
	a.bytes(0xf3)
	a.rex(false, arch.Reg(x), 0)
	a.bytes(0x0f, 0x6f)
	a.spMem(byte(x&7), disp)
}

func (a *asm) push(r arch.Reg) {
	a.rex(false, 0, r)
	a.bytes(0x50 + byte(r&7))
}

func (a *asm) pop(r arch.Reg) {
	a.rex(false, 0, r)
	a.bytes(0x58 + byte(r&7))
}

func (a *asm) pushImm32(v uint32) {
	a.bytes(0x68)
	a.imm32(v)
}

func (a *asm) call(r arch.Reg) {
	a.rex(false, 0, r)
	a.bytes(0xff, 0xd0+byte(r&7))
}

func (a *asm) jmp(r arch.Reg) {
	a.rex(false, 0, r)
	a.bytes(0xff, 0xe0+byte(r&7))
}

func (a *asm) int3() { a.bytes(0xcc) }
