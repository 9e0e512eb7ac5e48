// Package config defines runtime defaults, validation, and loading of the
// SyncBoard service configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Defaults applied by Default and Sanitize.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 56321
	DefaultMaxMessageSize = 64 << 10
	DefaultMaxUploadSize  = 100 << 20
	DefaultSendBufferSize = 256
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultPingInterval   = 54 * time.Second
	DefaultRateBurst      = 0
	DefaultRateRefill     = time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A Burst of zero or less turns limiting off.
type RateLimitConfig struct {
	Burst          int           `koanf:"burst"`
	RefillInterval time.Duration `koanf:"refill_interval"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config holds the server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// PublicURL overrides the LAN address advertised in the QR code.
	PublicURL string `koanf:"public_url"`
	// AllowedOrigins lists extra WebSocket origins; "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	MaxMessageSize int64 `koanf:"max_message_size"`
	MaxUploadSize  int64 `koanf:"max_upload_size"`
	SendBufferSize int   `koanf:"send_buffer_size"`

	WriteWait time.Duration `koanf:"write_wait"`
	PongWait  time.Duration `koanf:"pong_wait"`
	// PingInterval <= 0 turns off keepalive pings.
	PingInterval time.Duration `koanf:"ping_interval"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
}

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		MaxMessageSize: DefaultMaxMessageSize,
		MaxUploadSize:  DefaultMaxUploadSize,
		SendBufferSize: DefaultSendBufferSize,
		WriteWait:      DefaultWriteWait,
		PongWait:       DefaultPongWait,
		PingInterval:   DefaultPingInterval,
		RateLimit: RateLimitConfig{
			Burst:          DefaultRateBurst,
			RefillInterval: DefaultRateRefill,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Sanitize replaces out-of-range values with defaults.
func (c *Config) Sanitize() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = DefaultPort
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultSendBufferSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.PingInterval > 0 && c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.RateLimit.Burst < 0 {
		c.RateLimit.Burst = 0
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = DefaultRateRefill
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
