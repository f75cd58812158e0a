package cli

import (
	"github.com/spf13/cobra"

	"github.com/QetzylTech/ZLUDA/internal/cli/functions"
	"github.com/QetzylTech/ZLUDA/internal/cli/hook"
	"github.com/QetzylTech/ZLUDA/internal/cli/peek"
	"github.com/QetzylTech/ZLUDA/internal/cli/thunk"
	"github.com/QetzylTech/ZLUDA/pkg/version"
)

// NewRootCmd builds the zluda-dump command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zluda-dump",
		Short: "zluda-dump - trace CUDA driver calls",
		Long: `Trace every CUDA driver API call an application makes.

Each intercepted entry point is replaced by a generated trampoline that
reports the call, renders its arguments from the type catalog, and jumps
to the real driver. A call becomes one line:

  cuMemAlloc_v2(dptr: 0x7f3a00000000, bytesize: 1048576)

Commands:
- functions: list the catalog signatures and fingerprint
- thunk: print the trampoline generated for a layout
- peek: render a catalog type stored in another process
- hook: install interception over the driver library`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file (defaults to $ZLUDA_DUMP_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error, off)")

	rootCmd.AddCommand(functions.NewFunctionsCmd())
	rootCmd.AddCommand(thunk.NewThunkCmd())
	rootCmd.AddCommand(peek.NewPeekCmd())
	rootCmd.AddCommand(hook.NewHookCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("zluda-dump version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
