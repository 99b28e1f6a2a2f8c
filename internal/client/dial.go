// Package client connects publishers and consumers to a relay. A single
// connection attempt is an Attempt; the Supervisor runs attempts forever,
// pausing between them, so callers get a client that always reconnects.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// Options configures one client connection.
type Options struct {
	URL       string
	ID        string
	Version   uint32
	Heartbeat config.HeartbeatConfig
	Clock     clockwork.Clock
	Logger    *slog.Logger

	// OnConnect is called after the client has identified itself.
	OnConnect func()
}

// NewOptions fills Options from configuration.
func NewOptions(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		URL:       cfg.Client.URL,
		ID:        cfg.Client.ID,
		Version:   protocol.Version,
		Heartbeat: cfg.Heartbeat,
		Logger:    logger,
	}
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Version == 0 {
		o.Version = protocol.Version
	}
	return o
}

// NewDialer builds a websocket dialer, loading the CA bundle when TLS is on.
func NewDialer(cfg config.ClientConfig) (*websocket.Dialer, error) {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if !cfg.TLS.Enabled {
		return d, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	}
	if cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	d.TLSClientConfig = tlsCfg
	return d, nil
}

// ResolveURL upgrades ws:// to wss:// when TLS is enabled.
func ResolveURL(raw string, useTLS bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("relay url %q: scheme must be ws or wss", raw)
	}
	if useTLS && u.Scheme == "ws" {
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// connect dials the relay and announces version and role.
func connect(ctx context.Context, dialer *websocket.Dialer, opts Options, role protocol.Role) (*protocol.Conn, error) {
	ws, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	conn := protocol.NewConn(ws, protocol.DefaultWriteTimeout)

	if err := announce(conn, opts, role); err != nil {
		conn.Close()
		return nil, err
	}
	opts.Logger.Info("connected to relay", "url", opts.URL, "role", role.String())
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	return conn, nil
}

func announce(conn *protocol.Conn, opts Options, role protocol.Role) error {
	if err := conn.Send(protocol.ProtocolVersion{Version: opts.Version}); err != nil {
		return fmt.Errorf("announce version: %w", err)
	}
	var identity protocol.Message
	switch role {
	case protocol.RolePublisher:
		identity = protocol.IAmPublisher{ID: opts.ID}
	case protocol.RoleConsumer:
		identity = protocol.IAmConsumer{ID: opts.ID}
	default:
		return fmt.Errorf("announce: unknown role %s", role)
	}
	if err := conn.Send(identity); err != nil {
		return fmt.Errorf("announce identity: %w", err)
	}
	return nil
}
