package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/mapper"
)

func newUserCommand(opts *RootOptions, open EnvOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <user-id> <admin|user>",
		Short: "Assign a role; the user row is created when it does not exist yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, open, func(ctx context.Context, env *Env) error {
				if err := env.Permissions.SetRole(ctx, args[0], args[1]); err != nil {
					return err
				}
				user, err := env.Permissions.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				dto := mapper.ToUserDTO(user, env.Permissions.IsAdmin(ctx, user.ID))
				return emit(cmd, opts, dto, func(w io.Writer) {
					printf(w, "%s now has role %s\n", dto.ID, dto.Role)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, open, func(ctx context.Context, env *Env) error {
				users, err := env.Permissions.ListUsers(ctx)
				if err != nil {
					return err
				}
				dtos := make([]domain.UserDTO, 0, len(users))
				for i := range users {
					dtos = append(dtos, mapper.ToUserDTO(&users[i], env.Permissions.IsAdmin(ctx, users[i].ID)))
				}
				return emit(cmd, opts, dtos, func(w io.Writer) {
					printf(w, "ID\tEMAIL\tNAME\tROLE\tADMIN\n")
					for _, u := range dtos {
						printf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.DisplayName, u.Role, u.IsAdmin)
					}
				})
			})
		},
	})

	return cmd
}
