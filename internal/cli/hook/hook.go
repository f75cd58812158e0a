// Package hook implements the command that installs interception over the
// driver library and prints the resulting replacement table.
package hook

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/QetzylTech/ZLUDA/internal/cli/helpers"
	zerrors "github.com/QetzylTech/ZLUDA/internal/errors"
	"github.com/QetzylTech/ZLUDA/internal/format"
	"github.com/QetzylTech/ZLUDA/internal/intercept"
	"github.com/QetzylTech/ZLUDA/internal/trace"
)

// Addr prints as hex in every output format.
type Addr uint64

func (a Addr) String() string { return fmt.Sprintf("%#x", uint64(a)) }

func (a Addr) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Row is one entry of the replacement table.
type Row struct {
	Function    string `header:"FUNCTION" json:"function" yaml:"function"`
	Original    Addr   `header:"ORIGINAL" json:"original" yaml:"original"`
	Replacement Addr   `header:"REPLACEMENT" json:"replacement" yaml:"replacement"`
	Hooked      bool   `header:"HOOKED" json:"hooked" yaml:"hooked"`
}

// NewHookCmd creates the hook command.
func NewHookCmd() *cobra.Command {
	var (
		outFormat string
		lib       string
	)

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Install interception over the driver library and show the result",
		Long: `Load the driver library into this process, build a trampoline for every
exported catalog function and print the replacement table a loader would
patch in. The stubs are released before the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}
			if lib == "" {
				lib = env.Config.LibCUDA
			}

			a, err := env.Arch("")
			if err != nil {
				return err
			}
			cat, err := env.Catalog(a)
			if err != nil {
				return err
			}

			sink, err := trace.Open(env.Config.Trace)
			if err != nil {
				return err
			}
			defer zerrors.DeferClose(env.Logger, sink, "failed to close trace sink")

			mod, err := intercept.OpenLibrary(lib)
			if err != nil {
				return err
			}
			defer zerrors.DeferClose(env.Logger, mod, "failed to unload driver library")

			m, err := intercept.NewManager(intercept.Config{
				Arch:      a,
				Sink:      sink,
				Overrides: format.CUDAOverrides(),
				Skip:      env.Config.Skip,
			}, env.Logger)
			if err != nil {
				return err
			}
			defer zerrors.DeferClose(env.Logger, m, "failed to release trampolines")

			im, err := m.Install(mod, cat)
			if err != nil {
				return err
			}
			return helpers.Write(cmd, outFormat, Rows(im))
		},
	}

	helpers.AddFormatFlag(cmd, &outFormat, helpers.FormatTable, helpers.AllFormats)
	cmd.Flags().StringVar(&lib, "lib", "", "Driver library to load (defaults to the configured libcuda)")
	return cmd
}

// Rows lists the replacement table of im.
func Rows(im *intercept.InterceptedModule) []Row {
	entries := im.Entries()
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{
			Function:    e.Function.Name,
			Original:    Addr(e.Original),
			Replacement: Addr(e.Replacement()),
			Hooked:      e.Hooked(),
		}
	}
	return rows
}
