package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tydee/tydee-pro/internal/server"
)

var tokenUID string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	Long:  "Sign a bearer token for --uid with the configured JWT secret. Useful for local development and the pro commands.",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUID, "uid", "", "User id to issue the token for (required)")
	_ = tokenCmd.MarkFlagRequired("uid")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jwtCfg, err := cfg.JWTSettings()
	if err != nil {
		return err
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenUID)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
