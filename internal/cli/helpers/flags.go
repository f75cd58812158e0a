package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/QetzylTech/ZLUDA/internal/arch"
)

// AddFormatFlag adds a standard --format/-o flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// AddArchFlag adds a standard --arch flag for calling convention selection.
func AddArchFlag(cmd *cobra.Command, archVar *string) {
	names := []string{"auto"}
	for _, a := range arch.All() {
		names = append(names, a.String())
	}

	cmd.Flags().Var(newArchValue(archVar), "arch", fmt.Sprintf("Calling convention (%s); overrides the configuration", strings.Join(names, ", ")))

	_ = cmd.RegisterFlagCompletionFunc("arch", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// archValue rejects unknown layout names while flags are parsed.
// "auto" is kept as is and resolved against the host later.
type archValue struct {
	p *string
}

var _ pflag.Value = (*archValue)(nil)

func newArchValue(p *string) *archValue {
	return &archValue{p: p}
}

func (v *archValue) String() string {
	if v.p == nil {
		return ""
	}
	return *v.p
}

func (v *archValue) Set(s string) error {
	if !strings.EqualFold(s, "auto") {
		if _, err := arch.Parse(s); err != nil {
			return err
		}
	}
	*v.p = s
	return nil
}

func (v *archValue) Type() string { return "arch" }

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}

// Write validates format and renders data with it.
func Write(cmd *cobra.Command, format string, data any) error {
	if err := ValidateFormat(format, AllFormats); err != nil {
		return err
	}
	f, err := NewFormatter(OutputFormat(format))
	if err != nil {
		return err
	}
	return f.Format(data, cmd.OutOrStdout())
}
