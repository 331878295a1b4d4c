package main

import (
	"encoding/json"
	"time"

	"github.com/milow-app/milow-functions/config"
	"github.com/milow-app/milow-functions/oauth2"
	"github.com/milow-app/milow-functions/secret"
	"github.com/spf13/cobra"
)

// cmdToken prints a Google access token minted from a configured service
// account. Useful to check a key and scope by hand.
func cmdToken(load func() (*config.Config, error)) *cobra.Command {
	var secretKey, scope string

	c := &cobra.Command{
		Use:   "token",
		Short: "Print a Google access token for a service account secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			opts := []oauth2.Option{oauth2.WithLogger(logger)}
			if cfg.Google.TokenURL != "" {
				opts = append(opts, oauth2.WithTokenURL(cfg.Google.TokenURL))
			}
			src := oauth2.NewServiceAccountSource(cfg.Secrets(), secretKey, scope, oauth2.NewExchanger(opts...))

			tok, err := src.Token(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				AccessToken string    `json:"access_token"`
				TokenType   string    `json:"token_type"`
				ExpiresIn   int32     `json:"expires_in"`
				ExpiresAt   time.Time `json:"expires_at"`
			}{tok.AccessToken, tok.TokenType, tok.ExpiresIn, tok.ExpiresAt})
		},
	}
	c.Flags().StringVar(&secretKey, "secret-key", secret.GoogleServiceAccountKey, "name of the secret holding the service account JSON")
	c.Flags().StringVar(&scope, "scope", oauth2.ScopePlayIntegrity, "OAuth2 scope to request")
	return c
}
