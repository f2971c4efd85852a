package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ms-payments/internal/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a storefront token for manual testing of the checkout API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if e.cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET not set")
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := auth.IssueToken(args[0], e.cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
