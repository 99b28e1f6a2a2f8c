package main

import (
	"github.com/spf13/cobra"

	"github.com/humanophone/humanophone/internal/config"
)

// clientFlags are shared by publish and consume.
type clientFlags struct {
	url       string
	id        string
	heartbeat bool
	tls       bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "Relay WebSocket URL (default from config)")
	cmd.Flags().StringVar(&f.id, "id", "", "Client id announced to the relay (default: random)")
	cmd.Flags().BoolVar(&f.heartbeat, "heartbeat", false, "Ping the relay and reconnect when it stops answering")
	cmd.Flags().BoolVar(&f.tls, "tls", false, "Connect with TLS (wss)")
}

func (f *clientFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("url") {
		cfg.Client.URL = f.url
	}
	if cmd.Flags().Changed("id") {
		cfg.Client.ID = f.id
	}
	if cmd.Flags().Changed("heartbeat") {
		cfg.Heartbeat.Enabled = f.heartbeat
	}
	if cmd.Flags().Changed("tls") {
		cfg.Client.TLS.Enabled = f.tls
	}
}
