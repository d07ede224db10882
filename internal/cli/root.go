// Package cli implements indicatorctl, the operator command line for catalog checks and access provisioning.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/service"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Format      string // "text" | "json"
	CatalogPath string
	Actor       string
	Verbose     bool
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// Env is what the provisioning commands operate on.
// Close releases the database connection.
type Env struct {
	Catalog     *catalog.Catalog
	Permissions *service.PermissionService
	Close       func() error
}

// EnvOpener builds an Env; the production opener reads the service configuration and database
type EnvOpener func(ctx context.Context, opts *RootOptions) (*Env, error)

// NewRootCommand creates the indicatorctl root command
func NewRootCommand(open EnvOpener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "indicatorctl",
		Short: "Operate the indicator submission service",
		Long:  "Validate the directorate catalog and provision user access without going through the HTTP API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.CatalogPath, "catalog", "", "catalog file (defaults to catalog.path from configuration)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "indicatorctl", "identity recorded as granting access")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newAccessCommand(opts, open))
	cmd.AddCommand(newUserCommand(opts, open))

	return cmd
}

// withEnv opens the environment for the duration of fn
func withEnv(cmd *cobra.Command, opts *RootOptions, open EnvOpener, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := open(ctx, opts)
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer func() { _ = env.Close() }()
	}
	return fn(ctx, env)
}
