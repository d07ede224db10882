package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
)

const defaultCatalogPath = "config/directorates.yaml"

// CatalogSummary describes one directorate of a valid catalog
type CatalogSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Units    []string `json:"units"`
	Fields   int      `json:"fields"`
	Daily    bool     `json:"daily"`
	Mirrored bool     `json:"mirrored"`
}

// CatalogValidation is the result of catalog validate
type CatalogValidation struct {
	Path         string           `json:"path"`
	Valid        bool             `json:"valid"`
	Error        string           `json:"error,omitempty"`
	Directorates []CatalogSummary `json:"directorates,omitempty"`
}

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the directorate catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file",
		Long: `Parse the catalog and run the load-time checks: unique field ids, block capacity,
computed fields that are not required, and references to unknown rulesets or fields.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveCatalogPath(opts, args)
			result := CatalogValidation{Path: path}

			cat, err := catalog.Load(path)
			if err != nil {
				result.Error = err.Error()
				_ = emit(cmd, opts, result, func(w io.Writer) {
					printf(w, "catalog %s is invalid:\n%s\n", path, err)
				})
				return err
			}

			result.Valid = true
			for _, d := range cat.List() {
				result.Directorates = append(result.Directorates, CatalogSummary{
					ID:       d.ID,
					Name:     d.Name,
					Units:    append([]string{}, d.Units...),
					Fields:   len(d.Form.Fields()),
					Daily:    d.Daily,
					Mirrored: d.Sheet != nil || len(d.UnitSheets) > 0,
				})
			}
			return emit(cmd, opts, result, func(w io.Writer) {
				printf(w, "catalog %s is valid (%d directorates)\n", path, len(result.Directorates))
				printf(w, "ID\tUNITS\tFIELDS\tDAILY\tMIRRORED\n")
				for _, d := range result.Directorates {
					units := strings.Join(d.Units, ",")
					if units == "" {
						units = "-"
					}
					printf(w, "%s\t%s\t%d\t%t\t%t\n", d.ID, units, d.Fields, d.Daily, d.Mirrored)
				}
			})
		},
	})

	return cmd
}

// resolveCatalogPath prefers the argument, then --catalog, then configuration
func resolveCatalogPath(opts *RootOptions, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if opts.CatalogPath != "" {
		return opts.CatalogPath
	}
	if cfg, err := config.Load(); err == nil && cfg.Catalog.Path != "" {
		return cfg.Catalog.Path
	}
	return defaultCatalogPath
}
