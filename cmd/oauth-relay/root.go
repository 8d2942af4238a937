package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/oauth-relay/internal/config"
	"git.sr.ht/~jakintosh/oauth-relay/internal/logging"
	"git.sr.ht/~jakintosh/oauth-relay/internal/server"
	"git.sr.ht/~jakintosh/oauth-relay/internal/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oauth-relay",
	Short: "Relay OAuth2 logins and keep refresh tokens alive",
	Long: `oauth-relay runs the authorization-code flow against an identity provider,
stores each subject's refresh token, and renews stored tokens on a schedule
so subjects never have to sign in again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, tokensCmd, refreshCmd, sessionsCmd, fetchCmd)
}

// openApp loads configuration and assembles the relay. The caller closes it.
func openApp(ctx context.Context) (*server.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return server.New(ctx, cfg, log, server.Options{
		PasswordMode: service.PasswordModeProduction,
	})
}
