// Package functions implements the command listing the traced driver API.
package functions

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/cli/helpers"
)

// Signature is one catalog function as printed by the command.
type Signature struct {
	Index     int      `header:"INDEX" json:"index" yaml:"index"`
	Name      string   `header:"FUNCTION" json:"name" yaml:"name"`
	Signature string   `header:"PARAMETERS" json:"-" yaml:"-"`
	Params    []string `json:"params" yaml:"params"`
}

// NewFunctionsCmd creates the functions command.
func NewFunctionsCmd() *cobra.Command {
	var (
		format string
		archFl string
		filter string
	)

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the functions the catalog describes",
		Long: `List every function signature of the type catalog in catalog order.

The catalog fingerprint printed with the table identifies the exact catalog
a trace was rendered with.`,
		Args: cobra.NoArgs,
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

			sigs := Signatures(cat, filter)
			if format == string(helpers.FormatTable) {
				cmd.Printf("catalog %s (%d byte pointers, fingerprint %s)\n",
					versionOf(cat), cat.PointerSize, cat.Fingerprint())
			}
			return helpers.Write(cmd, format, sigs)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)
	helpers.AddArchFlag(cmd, &archFl)
	cmd.Flags().StringVar(&filter, "filter", "", "Only list functions whose name contains this text")
	return cmd
}

// Signatures lists the functions of cat whose name contains filter.
func Signatures(cat *catalog.Catalog, filter string) []Signature {
	var out []Signature
	for _, fn := range cat.Functions() {
		if filter != "" && !strings.Contains(fn.Name, filter) {
			continue
		}
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
		}
		out = append(out, Signature{
			Index:     fn.Index,
			Name:      fn.Name,
			Signature: "(" + strings.Join(params, ", ") + ")",
			Params:    params,
		})
	}
	return out
}

func versionOf(cat *catalog.Catalog) string {
	if cat.Version == "" {
		return "unversioned"
	}
	return cat.Version
}
