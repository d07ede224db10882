package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
)

func newAccessCommand(opts *RootOptions, open EnvOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage directorate access links",
	}
	cmd.AddCommand(newGrantCommand(opts, open))
	cmd.AddCommand(newRevokeCommand(opts, open))
	cmd.AddCommand(newListAccessCommand(opts, open))
	return cmd
}

func newGrantCommand(opts *RootOptions, open EnvOpener) *cobra.Command {
	var units []string

	cmd := &cobra.Command{
		Use:   "grant <user-id> <directorate-id>",
		Short: "Grant or replace a user's access to a directorate",
		Long: `Grant access to a directorate. Without --units the user may report for every unit;
with --units only the listed units are permitted. An existing link is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			access := domain.AllUnits()
			if cmd.Flags().Changed("units") {
				access = domain.OnlyUnits(trimAll(units)...)
			}
			return withEnv(cmd, opts, open, func(ctx context.Context, env *Env) error {
				link, err := env.Permissions.Grant(ctx, opts.Actor, args[0], args[1], access)
				if err != nil {
					return err
				}
				dto := mapper.ToPermissionLinkDTO(link)
				return emit(cmd, opts, dto, func(w io.Writer) {
					printf(w, "granted %s access to %s (%s)\n", dto.UserID, dto.DirectorateID, describeAccess(dto))
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&units, "units", nil, "comma-separated units (omit for every unit)")
	return cmd
}

func newRevokeCommand(opts *RootOptions, open EnvOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id> <directorate-id>",
		Short: "Remove a user's access to a directorate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, open, func(ctx context.Context, env *Env) error {
				if err := env.Permissions.Revoke(ctx, opts.Actor, args[0], args[1]); err != nil {
					return err
				}
				result := map[string]string{"userId": args[0], "directorateId": args[1], "status": "revoked"}
				return emit(cmd, opts, result, func(w io.Writer) {
					printf(w, "revoked %s access to %s\n", args[0], args[1])
				})
			})
		},
	}
}

func newListAccessCommand(opts *RootOptions, open EnvOpener) *cobra.Command {
	var userID, directorateID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List access links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, open, func(ctx context.Context, env *Env) error {
				links, err := env.Permissions.ListLinks(ctx, userID, directorateID)
				if err != nil {
					return err
				}
				dtos := make([]domain.PermissionLinkDTO, 0, len(links))
				for i := range links {
					dtos = append(dtos, mapper.ToPermissionLinkDTO(&links[i]))
				}
				return emit(cmd, opts, dtos, func(w io.Writer) {
					printf(w, "USER\tDIRECTORATE\tACCESS\tGRANTED BY\n")
					for _, d := range dtos {
						printf(w, "%s\t%s\t%s\t%s\n", d.UserID, d.DirectorateID, describeAccess(d), d.GrantedBy)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only links of this user")
	cmd.Flags().StringVar(&directorateID, "directorate", "", "only links to this directorate")
	return cmd
}

func describeAccess(d domain.PermissionLinkDTO) string {
	if d.AllUnits {
		return "all units"
	}
	if len(d.Units) == 0 {
		return "no units"
	}
	return "units " + strings.Join(d.Units, ",")
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
