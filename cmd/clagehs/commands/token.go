package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/clage-homeserver/internal/auth"
)

func tokenCmd(configPath *string) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an API bearer token signed with api.auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolveConfigPath(*configPath), false)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.API.Auth.JWTSecret == "" {
				return errors.New("api.auth.jwt_secret is not set; the API accepts requests without a token")
			}

			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(args[0], r, cfg.API.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 for no expiry")
	return cmd
}
