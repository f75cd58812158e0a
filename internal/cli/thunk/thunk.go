// Package thunk implements the command that prints the trampoline the
// tracer would generate for one entry point.
package thunk

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/cli/helpers"
	"github.com/QetzylTech/ZLUDA/internal/trampoline"
)

// Options are the inputs of one thunk rendering.
type Options struct {
	Arch     arch.Arch
	Original uint64
	Report   uint64
	Tag      uuid.UUID
	Index    uint64
}

// NewThunkCmd creates the thunk command.
func NewThunkCmd() *cobra.Command {
	var (
		archFl   string
		original string
		report   string
		tag      string
		index    int
	)

	cmd := &cobra.Command{
		Use:   "thunk [FUNCTION]",
		Short: "Disassemble the trampoline generated for an entry point",
		Long: `Synthesize a trampoline into a scratch buffer and print its disassembly.

The stub is never executed, so any layout can be inspected on any host.
When FUNCTION is given its catalog index is used as the call index.`,
		Example: `  zluda-dump thunk cuMemAlloc_v2 --arch x64-windows
  zluda-dump thunk --arch x86 --original 0x10001000 --index 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}

			opts := Options{Index: uint64(index)}
			if opts.Arch, err = env.Arch(archFl); err != nil {
				return err
			}
			if opts.Original, err = parseAddr(original); err != nil {
				return fmt.Errorf("invalid --original: %w", err)
			}
			if opts.Report, err = parseAddr(report); err != nil {
				return fmt.Errorf("invalid --report: %w", err)
			}
			if opts.Tag, err = uuid.Parse(tag); err != nil {
				return fmt.Errorf("invalid --tag: %w", err)
			}

			if len(args) == 1 {
				cat, err := env.Catalog(opts.Arch)
				if err != nil {
					return err
				}
				fn, ok := cat.Function(args[0])
				if !ok {
					return fmt.Errorf("function %s is not in the catalog", args[0])
				}
				opts.Index = uint64(fn.Index)
			}

			return Write(cmd.OutOrStdout(), opts)
		},
	}

	helpers.AddArchFlag(cmd, &archFl)
	cmd.Flags().StringVar(&original, "original", "0x10001000", "Address of the original function")
	cmd.Flags().StringVar(&report, "report", "0x10002000", "Address of the report function")
	cmd.Flags().StringVar(&tag, "tag", uuid.Nil.String(), "Module tag")
	cmd.Flags().IntVar(&index, "index", 0, "Call index reported to the report function")
	return cmd
}

// Write synthesizes the stub described by opts and prints its listing.
func Write(w io.Writer, opts Options) error {
	alloc := trampoline.NewBufferAllocator()
	tr, err := trampoline.Synthesize(opts.Arch, trampoline.Params{
		Original: opts.Original,
		Report:   opts.Report,
		Identity: trampoline.Identity{Tag: opts.Tag, Index: opts.Index},
	}, alloc)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	insts, err := tr.Disassemble()
	if err != nil {
		return err
	}

	p := tr.Params()
	if _, err := fmt.Fprintf(w, "; %s stub, %d bytes, tag %s at %#x, index %d\n",
		tr.Arch(), len(tr.Code()), p.Identity.Tag, tr.TagAddr(), p.Identity.Index); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "; original %#x, report %#x\n", p.Original, p.Report); err != nil {
		return err
	}
	for _, in := range insts {
		if _, err := fmt.Fprintln(w, in); err != nil {
			return err
		}
	}
	return nil
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
