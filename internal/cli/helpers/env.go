package helpers

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/config"
	"github.com/QetzylTech/ZLUDA/internal/logging"
)

// Env bundles what every command starts from.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger
}

// LoadEnv loads the configuration named by the persistent --config flag and
// applies the --log-level override.
func LoadEnv(cmd *cobra.Command) (*Env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, ok := logging.ParseLevel(level); !ok {
			return nil, fmt.Errorf("unknown log level %q", level)
		}
		cfg.Log.Level = level
	}

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	if _, set := os.LookupEnv("ZLUDA_DUMP_LOG_PRETTY"); !set && IsTerminal(lc.Output) {
		lc.Pretty = true
	}
	return &Env{
		Config: cfg,
		Logger: logging.NewWithComponent(lc, cmd.Name()),
	}, nil
}

// Arch resolves the calling convention, preferring a non-empty override.
func (e *Env) Arch(override string) (arch.Arch, error) {
	if override != "" {
		return arch.Parse(override)
	}
	return e.Config.Architecture()
}

// Catalog loads the configured catalog laid out for a.
func (e *Env) Catalog(a arch.Arch) (*catalog.Catalog, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("no catalog layout for %s", a)
	}
	if e.Config.Catalog == "" {
		return catalog.MustDefault(a.PointerSize()), nil
	}
	return catalog.Load(e.Config.Catalog, a.PointerSize())
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
