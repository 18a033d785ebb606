package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token <learner>",
	Short: "Issue a bearer token for a learner (development and testing)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl := cfg.Auth.TokenTTL
		if d, _ := cmd.Flags().GetDuration("ttl"); d > 0 {
			ttl = d
		}
		token, err := api.GenerateToken(cfg.Auth.JWTSecret, api.NewClaims(args[0], ttl, time.Now()))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default auth.token_ttl)")
}
