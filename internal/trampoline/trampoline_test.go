package trampoline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
)

const (
	fakeReport   = 0x10000000
	fakeOriginal = 0x20000000
	returnAddr   = 0x0badf00d
	stackTop     = 0x70000000
)

var testTag = [16]byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

func testParams(index uint64) Params {
	return Params{
		Original: fakeOriginal,
		Report:   fakeReport,
		Identity: Identity{Tag: testTag, Index: index},
	}
}

func TestSynthesizeMemoryLayout(t *testing.T) {
	for _, a := range arch.All() {
		t.Run(a.String(), func(t *testing.T) {
			alloc := NewBufferAllocator()
			tr, err := Synthesize(a, testParams(7), alloc)
			require.NoError(t, err)

			code := tr.Code()
			assert.Equal(t, byte(0xcc), code[len(code)-1], "stub ends with int3")
			assert.Zero(t, (tr.TagAddr()-tr.Addr())%16)

			tag, err := memory.Read(alloc.Mem, tr.TagAddr(), 16)
			require.NoError(t, err)
			assert.Equal(t, testTag[:], tag)

			if n := int(tr.TagAddr()-tr.Addr()) - len(code); n > 0 {
				pad, err := memory.Read(alloc.Mem, tr.Addr()+uint64(len(code)), n)
				require.NoError(t, err)
				assert.Equal(t, bytes.Repeat([]byte{0xcc}, n), pad)
			}
			assert.NoError(t, tr.Close())
		})
	}
}

func TestSynthesizeErrors(t *testing.T) {
	_, err := Synthesize(arch.Unknown, testParams(0), NewBufferAllocator())
	assert.ErrorIs(t, err, ErrUnsupportedArch)

	_, err = Synthesize(arch.X64SysV, Params{Report: fakeReport}, NewBufferAllocator())
	assert.Error(t, err)

	p := testParams(0)
	p.Original = 1 << 40
	_, err = Synthesize(arch.X86, p, NewBufferAllocator())
	assert.Error(t, err)

	_, err = Synthesize(arch.X64Windows, testParams(0), failingAllocator{})
	assert.ErrorContains(t, err, "no memory")
}

type failingAllocator struct{}

func (failingAllocator) Alloc(int) (Region, error) { return nil, errors.New("no memory") }

func TestDisassemble(t *testing.T) {
	tests := []struct {
		arch  arch.Arch
		first string
		tail  []x86asm.Op
	}{
		{arch.X86, "push ecx", []x86asm.Op{x86asm.MOV, x86asm.JMP, x86asm.INT}},
		{arch.X64Windows, "mov qword ptr [rsp+0x8], rcx", []x86asm.Op{x86asm.MOV, x86asm.JMP, x86asm.INT}},
		{arch.X64SysV, "sub rsp, 0xc8", []x86asm.Op{x86asm.MOV, x86asm.JMP, x86asm.INT}},
	}

	for _, tt := range tests {
		t.Run(tt.arch.String(), func(t *testing.T) {
			tr, err := Synthesize(tt.arch, testParams(3), NewBufferAllocator())
			require.NoError(t, err)

			insts, err := tr.Disassemble()
			require.NoError(t, err)
			require.Greater(t, len(insts), len(tt.tail))

			assert.Equal(t, tt.first, insts[0].Text())
			assert.Equal(t, tr.Addr(), insts[0].Addr)
			for i, op := range tt.tail {
				assert.Equal(t, op, insts[len(insts)-len(tt.tail)+i].Inst.Op)
			}

			var calls int
			for _, in := range insts {
				if in.Inst.Op == x86asm.CALL {
					calls++
				}
				assert.NotEqual(t, x86asm.RET, in.Inst.Op, "stubs never return themselves")
			}
			assert.Equal(t, 1, calls)
		})
	}
}

// report is what the simulated report function observed.
type report struct {
	tag, index, frame uint64
	aligned           bool
}

type scenario struct {
	arch arch.Arch
	// argRegs and argXMM must survive the stub; the rest may be clobbered
	// by the report call.
	argRegs  []arch.Reg
	argXMM   int
	volatile []arch.Reg
	// Shadow space the stub may overwrite.
	shadow [2]uint64
	// Stdcall report functions pop their own three arguments.
	calleePops int
}

var scenarios = []scenario{
	{
		arch:       arch.X86,
		argRegs:    []arch.Reg{arch.RCX, arch.RDX},
		volatile:   []arch.Reg{arch.RAX, arch.RCX, arch.RDX},
		calleePops: 12,
	},
	{
		arch:     arch.X64Windows,
		argRegs:  []arch.Reg{arch.RCX, arch.RDX, arch.R8, arch.R9},
		argXMM:   4,
		volatile: []arch.Reg{arch.RAX, arch.RCX, arch.RDX, arch.R8, arch.R9, arch.R10, arch.R11},
		shadow:   [2]uint64{8, 0x28},
	},
	{
		arch:     arch.X64SysV,
		argRegs:  []arch.Reg{arch.RDI, arch.RSI, arch.RDX, arch.RCX, arch.R8, arch.R9, arch.RAX, arch.R10},
		argXMM:   8,
		volatile: []arch.Reg{arch.RAX, arch.RCX, arch.RDX, arch.RSI, arch.RDI, arch.R8, arch.R9, arch.R10, arch.R11},
	},
}

const stackBytes = 0x100

// setup fills registers, vector registers and the caller's stack with
// distinct values. The stack pointer addresses the return address.
func setup(bits int) *cpu {
	c := newCPU(bits)
	for i := range c.gpr {
		c.gpr[i] = c.mask(0x1111111111111111 * uint64(i+1))
	}
	for i := range c.xmm {
		for j := range c.xmm[i] {
			c.xmm[i][j] = byte(16*i + j)
		}
	}
	c.gpr[arch.RSP] = stackTop - 8
	c.storeWord(c.sp(), returnAddr, c.word())
	for off := uint64(c.word()); off < stackBytes; off++ {
		c.store(c.sp()+off, []byte{byte(off * 7)})
	}
	return c
}

func (s scenario) reportHook(r *report, pops int) callHook {
	return func(c *cpu, target uint64) error {
		if target != fakeReport {
			return fmt.Errorf("call to %#x", target)
		}
		if _, err := c.pop(); err != nil {
			return err
		}
		var err error

		if c.bits == 32 {
			w := uint64(4)
			if r.tag, err = c.loadWord(c.sp(), 4); err != nil {
				return err
			}
			if r.index, err = c.loadWord(c.sp()+w, 4); err != nil {
				return err
			}
			if r.frame, err = c.loadWord(c.sp()+2*w, 4); err != nil {
				return err
			}
			r.aligned = true
		} else {
			l := s.arch.Layout()
			r.tag, r.index, r.frame = c.gpr[l.Report[0]], c.gpr[l.Report[1]], c.gpr[l.Report[2]]
			// rsp is a multiple of 16 before the call pushes its return address.
			r.aligned = (c.sp())%16 == 0
		}

		for _, v := range s.volatile {
			c.gpr[v] = 0xbadbadbadbad
		}
		for i := range c.xmm {
			c.xmm[i] = [16]byte{0xee}
		}
		c.gpr[arch.RSP] = c.mask(c.sp() + uint64(pops))
		return nil
	}
}

func TestStubPreservesCallingConvention(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.arch.String(), func(t *testing.T) {
			alloc := NewBufferAllocator()
			tr, err := Synthesize(s.arch, testParams(42), alloc)
			require.NoError(t, err)

			c := setup(s.arch.Bits())
			entry := *c
			entryMem := make(map[uint64]byte, len(c.mem))
			for k, v := range c.mem {
				entryMem[k] = v
			}

			var r report
			target, err := c.run(tr.Code(), tr.Addr(), tr.Addr(), s.reportHook(&r, s.calleePops))
			require.NoError(t, err)

			assert.Equal(t, uint64(fakeOriginal), target, "tail jump to the original")
			assert.Equal(t, tr.TagAddr(), r.tag)
			assert.Equal(t, uint64(42), r.index)
			assert.Equal(t, entry.sp(), r.frame, "frame is the entry stack pointer")
			assert.True(t, r.aligned, "report call is aligned")

			assert.Equal(t, entry.sp(), c.sp(), "stack pointer restored")
			for _, reg := range s.argRegs {
				assert.Equal(t, entry.gpr[reg], c.gpr[reg], "register %s", reg)
			}
			for i := 0; i < s.argXMM; i++ {
				assert.Equal(t, entry.xmm[i], c.xmm[i], "xmm%d", i)
			}

			for off := uint64(0); off < stackBytes; off++ {
				if off >= s.shadow[0] && off < s.shadow[1] {
					continue
				}
				a := c.mask(entry.sp() + off)
				assert.Equal(t, entryMem[a], c.mem[a], "caller stack byte at +%#x", off)
			}
		})
	}
}

const frameCatalog = `
functions:
  ints:
    a: uintptr_t
    b: uintptr_t
    c: uintptr_t
    d: uintptr_t
    e: uintptr_t
    f: uintptr_t
    g: uintptr_t
    h: uintptr_t
  floats:
    x: double
    n: uintptr_t
    y: double
`

// TestFrameDecodesLiveArguments checks that the frame a stub hands to the
// report function decodes to the arguments the caller passed.
func TestFrameDecodesLiveArguments(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.arch.String(), func(t *testing.T) {
			cat, err := catalog.Parse([]byte(frameCatalog), s.arch.PointerSize())
			require.NoError(t, err)

			tr, err := Synthesize(s.arch, testParams(1), NewBufferAllocator())
			require.NoError(t, err)

			c := setup(s.arch.Bits())
			entry := *c
			w := c.word()
			stackWord := func(off uint64) []byte {
				b, err := c.load(entry.sp()+off, w)
				require.NoError(t, err)
				return b
			}
			stackBytesAt := func(off uint64, n int) []byte {
				b, err := c.load(entry.sp()+off, n)
				require.NoError(t, err)
				return b
			}
			reg := func(r arch.Reg) []byte {
				return binary.LittleEndian.AppendUint64(nil, entry.gpr[r])[:w]
			}
			xmm := func(i int) []byte { return append([]byte(nil), entry.xmm[i][:8]...) }

			var ints, floats [][]byte
			switch s.arch {
			case arch.X86:
				for i := 0; i < 8; i++ {
					ints = append(ints, stackWord(4+4*uint64(i)))
				}
				floats = [][]byte{stackBytesAt(4, 8), stackWord(12), stackBytesAt(16, 8)}
			case arch.X64Windows:
				for _, r := range []arch.Reg{arch.RCX, arch.RDX, arch.R8, arch.R9} {
					ints = append(ints, reg(r))
				}
				for i := 0; i < 4; i++ {
					ints = append(ints, stackWord(0x28+8*uint64(i)))
				}
				floats = [][]byte{xmm(0), reg(arch.RDX), xmm(2)}
			case arch.X64SysV:
				for _, r := range []arch.Reg{arch.RDI, arch.RSI, arch.RDX, arch.RCX, arch.R8, arch.R9} {
					ints = append(ints, reg(r))
				}
				ints = append(ints, stackWord(8), stackWord(16))
				floats = [][]byte{xmm(0), reg(arch.RDI), xmm(1)}
			}

			var decoded map[string][][]byte
			hook := s.reportHook(&report{}, s.calleePops)
			_, err = c.run(tr.Code(), tr.Addr(), tr.Addr(), func(c *cpu, target uint64) error {
				var frame uint64
				if c.bits == 32 {
					v, err := c.loadWord(c.sp()+12, 4)
					if err != nil {
						return err
					}
					frame = v
				} else {
					frame = c.gpr[s.arch.Layout().Report[2]]
				}

				decoded = make(map[string][][]byte)
				for _, name := range []string{"ints", "floats"} {
					fn, _ := cat.Function(name)
					vals, err := s.arch.Decode(c, frame, fn)
					if err != nil {
						return err
					}
					for _, v := range vals {
						decoded[name] = append(decoded[name], v.Data)
					}
				}
				return hook(c, target)
			})
			require.NoError(t, err)

			assert.Equal(t, ints, decoded["ints"])
			assert.Equal(t, floats, decoded["floats"])
		})
	}
}
