package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	AuthTimeout  time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	StoreTimeout time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`

	MaxMessageLength int `mapstructure:"max_message_length" yaml:"max_message_length"`
	APIRateLimit     int `mapstructure:"api_rate_limit" yaml:"api_rate_limit"`

	// RequireRideMembership gates chat access on being the ride's driver or
	// an accepted passenger. Off by default: the mobile clients were built
	// against open rooms.
	RequireRideMembership bool `mapstructure:"require_ride_membership" yaml:"require_ride_membership"`

	// RedisAddr enables the cross-instance fan-out relay when set. Empty
	// means a single process owns all connections.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "ridechat.db",
		LogLevel:          "info",
		JWTIssuer:         "campusride",
		JWTAudience:       "campusride-app",
		AuthTimeout:       10 * time.Second,
		StoreTimeout:      5 * time.Second,
		MaxMessageLength:  2000,
		APIRateLimit:      240,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}
