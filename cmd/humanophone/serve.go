package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/hub"
	"github.com/humanophone/humanophone/internal/ws"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		address   string
		heartbeat bool
		maxConns  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long: `Run the relay server.

Publishers and consumers connect over WebSocket at / (or /ws).
The relay also serves /healthz and Prometheus metrics at /metrics.

Examples:
  humanophone serve
  humanophone serve --address 127.0.0.1:9000 --heartbeat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, func(cfg *config.Config) {
				if cmd.Flags().Changed("address") {
					cfg.Server.Address = address
				}
				if cmd.Flags().Changed("heartbeat") {
					cfg.Heartbeat.Enabled = heartbeat
				}
				if cmd.Flags().Changed("max-connections") {
					cfg.Server.MaxConnections = maxConns
				}
			})
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVar(&heartbeat, "heartbeat", false, "Drop peers that go silent")
	cmd.Flags().IntVar(&maxConns, "max-connections", 0, "Maximum concurrent connections, 0 for no limit")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger, closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(cfg.Server.HubCapacity)
	defer h.Close()

	server := ws.NewServer(cfg, h, logger, nil)
	logger.Info("starting relay",
		"protocol_version", cfg.Server.ProtocolVersion,
		"hub_capacity", cfg.Server.HubCapacity,
		"heartbeat", cfg.Heartbeat.Enabled,
	)

	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("relay stopped")
	return nil
}
