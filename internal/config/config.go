package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile           string        `mapstructure:"log_file" yaml:"log_file"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Per-connection limits.
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxLineBytes int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	OutboxSize   int           `mapstructure:"outbox_size" yaml:"outbox_size"`
	RateLimit    int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window" yaml:"rate_window"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// AdminUsername is created as an admin at startup when AdminPassword is set.
	AdminUsername string `mapstructure:"admin_username" yaml:"admin_username"`
	AdminPassword string `mapstructure:"admin_password" yaml:"admin_password"`

	Console         bool          `mapstructure:"console" yaml:"console"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":5000",
		HTTPAddr:          ":8080",
		DatabasePath:      "data/linechat.db",
		LogLevel:          "info",
		LogFile:           "data/session.log",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		IdleTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxLineBytes:      4096,
		OutboxSize:        64,
		RateLimit:         5,
		RateWindow:        time.Second,
		JWTSecret:         "change-me",
		JWTIssuer:         "linechat",
		JWTAudience:       "linechat-admin",
		JWTTTL:            time.Hour,
		AdminUsername:     "admin",
		Console:           true,
		MonitorInterval:   time.Minute,
	}
}
