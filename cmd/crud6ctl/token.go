package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crud6-backend/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "issue an access token signed with auth.jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		roles, err := cmd.Flags().GetStringSlice("roles")
		if err != nil {
			return err
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}
		token, err := auth.GenerateAccessToken(mustFlagString(cmd, "user"), roles, cfg.Auth.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "1", "subject (user id) of the token")
	tokenCmd.Flags().StringSlice("roles", nil, "roles carried by the token")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
