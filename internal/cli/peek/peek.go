// Package peek implements the command that renders a typed value out of
// another process's memory.
package peek

import (
	"fmt"
	"io"
	"strconv"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/cli/helpers"
	zerrors "github.com/QetzylTech/ZLUDA/internal/errors"
	"github.com/QetzylTech/ZLUDA/internal/memory"
	"github.com/QetzylTech/ZLUDA/internal/render"
)

// NewPeekCmd creates the peek command.
func NewPeekCmd() *cobra.Command {
	var (
		archFl string
		pid    int
	)

	cmd := &cobra.Command{
		Use:   "peek TYPE ADDRESS",
		Short: "Render a catalog type stored in another process",
		Long: `Read a value of a catalog type from the memory of a running process and
render it the way a trace line would. Pointers inside the value are followed
in the same process. Reading needs ptrace access to the target.`,
		Example: `  zluda-dump peek --pid 4242 CUDA_RESOURCE_DESC 0x7ffd5a3c1e40`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}
			a, err := env.Arch(archFl)
			if err != nil {
				return err
			}
			cat, err := env.Catalog(a)
			if err != nil {
				return err
			}
			addr, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid address %q: %w", args[1], err)
			}

			name, err := ProcessName(pid)
			if err != nil {
				return err
			}
			env.Logger.Debug().Int("pid", pid).Str("process", name).Msg("Reading process memory")

			proc, err := memory.OpenProcess(pid)
			if err != nil {
				return err
			}
			defer zerrors.DeferClose(env.Logger, proc, "failed to close process reader")

			if err := Peek(cmd.OutOrStdout(), cat, proc, args[0], addr); err != nil {
				return err
			}
			cmd.Println()
			return nil
		},
	}

	helpers.AddArchFlag(cmd, &archFl)
	cmd.Flags().IntVarP(&pid, "pid", "p", 0, "Process to read from")
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}

// Peek renders the value of the named type stored at addr.
func Peek(w io.Writer, cat *catalog.Catalog, mem io.ReaderAt, typeName string, addr uint64) error {
	t, ok := cat.Type(typeName)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownType, typeName)
	}

	r := render.New(cat, mem)
	v, err := r.Load(t, addr)
	if err != nil {
		return fmt.Errorf("failed to read %s at %#x: %w", typeName, addr, err)
	}
	return r.Render(w, v, render.CallSite{})
}

// ProcessName checks that pid is a running process and returns its name.
func ProcessName(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	return name, nil
}
