package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string        `mapstructure:"database_path" yaml:"database_path"`
	CachePath    string        `mapstructure:"cache_path" yaml:"cache_path"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// RedisAddr selects the redis-backed stream configuration service.
	// Empty means the in-process implementation.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" yaml:"delivery_timeout"`
	FanoutWorkers   int           `mapstructure:"fanout_workers" yaml:"fanout_workers"`
	ConnectionTTL   time.Duration `mapstructure:"connection_ttl" yaml:"connection_ttl"`

	// MessageRate and MessageBurst bound inbound envelopes per connection.
	MessageRate  float64 `mapstructure:"message_rate" yaml:"message_rate"`
	MessageBurst int     `mapstructure:"message_burst" yaml:"message_burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "streamchat.db",
		CachePath:         "streamchat-cache",
		CacheTTL:          7 * 24 * time.Hour,
		LogLevel:          "info",
		DeliveryTimeout:   5 * time.Second,
		FanoutWorkers:     64,
		ConnectionTTL:     24 * time.Hour,
		MessageRate:       5,
		MessageBurst:      10,
	}
}
