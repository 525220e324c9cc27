// ABOUTME: Root cobra command and shared wiring for the session-cli client
// ABOUTME: Builds the gateway, session state, and controller from config

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomhq/session-core/internal/agent"
	"github.com/loomhq/session-core/internal/config"
	"github.com/loomhq/session-core/internal/controller"
	"github.com/loomhq/session-core/internal/gateway"
	"github.com/loomhq/session-core/internal/logging"
	"github.com/loomhq/session-core/internal/state"
)

var (
	configPath string
	verbose    bool
	userID     string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "session-cli",
	Short: "Chat with an agent through the session core",
	Long: `session-cli is a terminal client for the conversation session core.

It talks to a session-backend record store and an agent processor, keeping
the conversation id and message history consistent between the two even when
the agent assigns or reassigns the conversation id.

Quick Start:
  session-cli chat                  # Start a new conversation
  session-cli chat -c <id>          # Resume an existing conversation
  session-cli list                  # List your conversations
  session-cli delete <id>           # Delete a conversation`,
	Version: version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "User id for this session")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig loads configuration and applies the verbose override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// buildGateway wires a record store gateway on its own, for commands that
// never talk to the agent.
func buildGateway(cfg *config.Config) *gateway.Gateway {
	return gateway.New(cfg.Backend.BaseURL, cfg.Backend.Token, userID, "",
		gateway.WithTimeout(cfg.Backend.Timeout))
}

// buildController wires the gateway, state, and agent client into a controller.
func buildController(cfg *config.Config) (*controller.Controller, *gateway.Gateway, *state.SessionState) {
	gw := buildGateway(cfg)
	st := state.New(nil)
	caller := agent.NewClient(cfg.Agent.URL, agent.WithTimeout(cfg.Agent.Timeout))
	ctl := controller.New(gw, st, caller, nil)
	return ctl, gw, st
}
