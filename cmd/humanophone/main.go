package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "humanophone",
		Short: "Real-time relay for chords and pitches",
		Long: `Humanophone relays what is being played from publishers
(instruments, sequencers) to any number of consumers (displays,
visualisers) over WebSocket.

  • serve    run the relay
  • publish  play a song into a relay
  • consume  print or display what a relay is playing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(&flags),
		publishCmd(&flags),
		consumeCmd(&flags),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and environment, then applies the
// persistent flags that were set on the command line. Subcommands apply their
// own overrides through apply before validation.
func loadConfig(cmd *cobra.Command, flags *globalFlags, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if apply != nil {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// initLogger installs the global logger. With a log file configured, output
// goes there instead of stderr; the returned func closes it.
func initLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Log.File == "" {
		return logging.Init(cfg.Log.Level, cfg.Log.Format), func() {}, nil
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.InitWriter(f, cfg.Log.Level, cfg.Log.Format), func() { f.Close() }, nil
}

// clientID returns the configured client id, or a fresh one per process.
func clientID(cfg *config.Config, role string) string {
	if cfg.Client.ID != "" {
		return cfg.Client.ID
	}
	return role + "-" + uuid.NewString()[:8]
}
