package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/havensocial/haven/internal/auth"
	"github.com/havensocial/haven/internal/config"
)

// buildServeCmd creates the "serve" command that starts the gateway server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Haven gateway server",
		Long: `Start the Haven gateway server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Open the configured storage backend (memory, sqlite, postgres)
3. Serve the websocket endpoint on /ws
4. Expose /healthz and Prometheus metrics on /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  haven serve

  # Start with custom config
  haven serve --config /etc/haven/production.yaml

  # Start with debug logging
  haven serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

// buildTokenCmd creates the "token" command that mints a connection token for
// local development against the configured signing secret.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		username   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development connection token",
		Example: `  haven token --user alice
  haven token --user alice --username "Alice A." --config haven.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required to mint tokens")
			}
			if username == "" {
				username = userID
			}

			token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry).
				Generate(userID, username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id to embed in the token")
	cmd.Flags().StringVar(&username, "username", "", "Display name (defaults to the user id)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// defaultConfigPath returns haven.yaml when it exists in the working
// directory, otherwise empty so built-in defaults apply.
func defaultConfigPath() string {
	if path := os.Getenv("HAVEN_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("haven.yaml"); err == nil {
		return "haven.yaml"
	}
	return ""
}
