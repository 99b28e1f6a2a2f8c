package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/humanophone/humanophone/internal/client"
	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/tui/app"
)

func consumeCmd(flags *globalFlags) *cobra.Command {
	var (
		cf      clientFlags
		useTUI  bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Show what a relay is playing",
		Long: `Connect to a relay as a consumer and render every chord,
pitch set and silence it relays. The connection is retried forever.

By default events are written as log lines. With --tui a terminal
display is drawn instead and logs go to --log-file (or are discarded).

Examples:
  humanophone consume
  humanophone consume --tui --log-file consume.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, func(cfg *config.Config) {
				cf.apply(cmd, cfg)
				if cmd.Flags().Changed("tui") {
					cfg.Consumer.TUI = useTUI
				}
				if cmd.Flags().Changed("log-file") {
					cfg.Log.File = logFile
				}
			})
			if err != nil {
				return err
			}
			return runConsume(cfg)
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Draw a terminal display instead of log lines")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file")

	return cmd
}

func runConsume(cfg *config.Config) error {
	if cfg.Consumer.TUI && cfg.Log.File == "" {
		cfg.Log.File = os.DevNull
	}
	logger, closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	url, err := client.ResolveURL(cfg.Client.URL, cfg.Client.TLS.Enabled)
	if err != nil {
		return err
	}
	cfg.Client.URL = url
	cfg.Client.ID = clientID(cfg, "consumer")

	dialer, err := client.NewDialer(cfg.Client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := client.NewOptions(cfg, logger)
	sup := client.NewSupervisor(cfg.Client.Reconnect, nil, logger)

	if !cfg.Consumer.TUI {
		logger.Info("consuming", "url", url, "id", cfg.Client.ID)
		err := sup.Run(ctx, client.ConsumerAttempt(dialer, opts, client.LogRenderer{Logger: logger}))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	p := tea.NewProgram(app.New(url), tea.WithAltScreen(), tea.WithContext(ctx))
	renderer := app.NewRenderer(p)
	opts.OnConnect = renderer.Connected
	sup.OnRetry = renderer.Retrying

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sup.Run(ctx, client.ConsumerAttempt(dialer, opts, renderer))
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
