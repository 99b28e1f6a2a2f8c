package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HUMANOPHONE_SERVER_ADDRESS.
const EnvPrefix = "HUMANOPHONE_"

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Client    ClientConfig    `yaml:"client" envPrefix:"CLIENT_"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Publisher PublisherConfig `yaml:"publisher" envPrefix:"PUBLISHER_"`
	Consumer  ConsumerConfig  `yaml:"consumer" envPrefix:"CONSUMER_"`
}

type ServerConfig struct {
	Address          string        `yaml:"address" env:"ADDRESS"`
	ProtocolVersion  uint32        `yaml:"protocol_version" env:"PROTOCOL_VERSION"`
	HubCapacity      int           `yaml:"hub_capacity" env:"HUB_CAPACITY"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	MaxConnections   int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	TLS              ServerTLS     `yaml:"tls" envPrefix:"TLS_"`
}

type ServerTLS struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`
}

type ClientConfig struct {
	URL       string          `yaml:"url" env:"URL"`
	ID        string          `yaml:"id" env:"ID"`
	TLS       ClientTLS       `yaml:"tls" envPrefix:"TLS_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
}

type ClientTLS struct {
	Enabled            bool   `yaml:"enabled" env:"ENABLED"`
	CAFile             string `yaml:"ca_file" env:"CA_FILE"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// ReconnectConfig sets the supervisor's pause between attempts:
// base_delay plus a uniform random share of jitter.
type ReconnectConfig struct {
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	Jitter    time.Duration `yaml:"jitter" env:"JITTER"`
}

// HeartbeatConfig controls liveness checks. When disabled neither side pings
// nor times out idle peers.
type HeartbeatConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout  time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
	PeerTimeout  time.Duration `yaml:"peer_timeout" env:"PEER_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

type PublisherConfig struct {
	SongFile   string        `yaml:"song_file" env:"SONG_FILE"`
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`
	SilenceGap time.Duration `yaml:"silence_gap" env:"SILENCE_GAP"`
}

type ConsumerConfig struct {
	TUI bool `yaml:"tui" env:"TUI"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          "0.0.0.0:8000",
			ProtocolVersion:  1,
			HubCapacity:      64,
			HandshakeTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			URL: "ws://127.0.0.1:8000/",
			Reconnect: ReconnectConfig{
				BaseDelay: 500 * time.Millisecond,
				Jitter:    500 * time.Millisecond,
			},
		},
		Heartbeat: HeartbeatConfig{
			PingInterval: 10 * time.Second,
			PongTimeout:  5 * time.Second,
			PeerTimeout:  15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Publisher: PublisherConfig{
			Interval:   5 * time.Second,
			SilenceGap: 500 * time.Millisecond,
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), a .env file in the working directory, and
// HUMANOPHONE_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// The .env file is optional.
	_ = godotenv.Load()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.ProtocolVersion == 0 {
		errs = append(errs, errors.New("server.protocol_version must be positive"))
	}
	if c.Server.HubCapacity <= 0 {
		errs = append(errs, errors.New("server.hub_capacity must be positive"))
	}
	if c.Server.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("server.handshake_timeout must be positive"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	for _, origin := range c.Server.AllowedOrigins {
		if _, err := url.Parse(origin); err != nil {
			errs = append(errs, fmt.Errorf("server.allowed_origins: %w", err))
		}
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires cert_file and key_file"))
	}

	if u, err := url.Parse(c.Client.URL); err != nil {
		errs = append(errs, fmt.Errorf("client.url: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("client.url: unsupported scheme %q", u.Scheme))
	}
	if c.Client.Reconnect.BaseDelay < 0 || c.Client.Reconnect.Jitter < 0 {
		errs = append(errs, errors.New("client.reconnect delays must not be negative"))
	}

	if c.Heartbeat.Enabled {
		if c.Heartbeat.PingInterval <= 0 || c.Heartbeat.PongTimeout <= 0 || c.Heartbeat.PeerTimeout <= 0 {
			errs = append(errs, errors.New("heartbeat intervals must be positive when enabled"))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if c.Publisher.Interval <= 0 {
		errs = append(errs, errors.New("publisher.interval must be positive"))
	}
	if c.Publisher.SilenceGap < 0 {
		errs = append(errs, errors.New("publisher.silence_gap must not be negative"))
	}

	return errors.Join(errs...)
}
