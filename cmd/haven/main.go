// Package main provides the CLI entry point for the Haven real-time gateway.
//
// Haven terminates websocket connections for chat and call signaling: it
// tracks presence, fans messages out to conversation participants, and relays
// WebRTC offers, answers, and ICE candidates between callers.
//
// # Basic Usage
//
// Start the server:
//
//	haven serve --config haven.yaml
//
// Mint a development token:
//
//	haven token --user alice
//
// # Environment Variables
//
// Values in the config file are expanded from the environment, so secrets can
// be kept out of the file:
//
//	auth:
//	  jwt_secret: ${HAVEN_JWT_SECRET}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "haven",
		Short: "Haven - real-time chat and call-signaling gateway",
		Long: `Haven is a websocket gateway for chat and calls.

It tracks user presence, delivers messages to conversation participants,
relays typing indicators and read receipts, and brokers WebRTC call
signaling (offer, answer, ICE) between two peers.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}
