package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/chat"
	"github.com/iksnae/chat-session/internal/store"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	gatewayURL string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// cfg is loaded before every subcommand runs
var cfg *internal.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chat-session",
	Short: "Chat with a remote assistant from the terminal",
	Long: `A terminal client for a chat backend made of a Session Store (HTTP) and a
Socket Gateway (WebSocket).

Features:
  • Start new conversations and resume past ones
  • Automatic reconnect with exponential backoff
  • Source citations and follow-up suggestions
  • Session history grouped by recency
  • Export in multiple formats (JSONL, Markdown, YAML, JSON)
  • Local delivery journal for sent messages

Quick Start:
  chat-session login                     # Pick a nickname (or get a guest name)
  chat-session new "What is Go?"         # Start a conversation
  chat-session history                   # Browse past sessions
  chat-session chat <session-id>         # Resume a session

Configuration is read from ~/.chat-session/config.toml.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)

		path := configPath
		if path == "" {
			path = internal.DefaultConfigPath()
		}
		loaded, err := internal.LoadConfig(path, configPath != "")
		if err != nil {
			return err
		}
		if serverURL != "" {
			loaded.ServerURL = serverURL
		}
		if gatewayURL != "" {
			loaded.GatewayURL = gatewayURL
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		internal.PrintError(fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

func identityStore() *internal.IdentityStore {
	return internal.NewIdentityStore(cfg.DataDir)
}

// requireIdentity loads the current identity. Commands that talk to the backend
// refuse to run without one.
func requireIdentity() (*internal.Identity, error) {
	return identityStore().Load()
}

func newStoreClient() *store.Client {
	var opts []store.Option
	if cfg.Store.Timeout.Duration > 0 {
		opts = append(opts, store.WithTimeout(cfg.Store.Timeout.Duration))
	}
	return store.NewClient(cfg.ServerURL, opts...)
}

func newCacheManager() *internal.CacheManager {
	return internal.NewCacheManager(cfg.CacheDir())
}

func newDialer() *chat.WebSocketDialer {
	return chat.NewWebSocketDialer(cfg.GatewayURL, cfg.Gateway.HandshakeTimeout.Duration, cfg.Gateway.WriteTimeout.Duration)
}

func reconnectPolicy() chat.ReconnectPolicy {
	return chat.ReconnectPolicy{
		BaseDelay:   cfg.Reconnect.BaseDelay.Duration,
		MaxDelay:    cfg.Reconnect.MaxDelay.Duration,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.chat-session/config.toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Session Store base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Socket Gateway base URL (overrides config)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
