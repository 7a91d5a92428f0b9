package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelbatch/internal/auth"
	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCommand(root *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwtsecret is not configured")
			}
			token, err := auth.GenerateToken(cfg.Auth.JWTSecret, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
