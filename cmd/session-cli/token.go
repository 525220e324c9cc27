// ABOUTME: Token command minting a JWT for a user against the configured secret
// ABOUTME: Useful for wiring session-cli and fake-agent to an authenticated backend

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomhq/session-core/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a JWT for the configured user",
	Long: `Mint an HS256 JWT signed with auth.jwt_secret from the config file.

The token's subject is the --user flag. Paste the result into backend.token
or pass it as a bearer credential to the record store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not set in %s", configPath)
		}

		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		token, err := verifier.Generate(userID, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
