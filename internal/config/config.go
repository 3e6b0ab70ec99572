// Package config provides configuration management for livedown using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// Values are resolved with the usual precedence: flags bound through
// viper.BindPFlag, then LIVEDOWN_* environment variables, then .livedown.yml,
// then the defaults registered by SetDefaults.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/livedown/internal/logging"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys.
const EnvPrefix = "LIVEDOWN"

const (
	DefaultPort            = 1337
	DefaultHost            = "localhost"
	DefaultDebounce        = 50 * time.Millisecond
	DefaultConnectionRate  = 10.0
	DefaultConnectionBurst = 20
	DefaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	Server     ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	Watcher    WatcherConfig `mapstructure:"watcher" yaml:"watcher" json:"watcher"`
	Logging    LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
	Browser    BrowserConfig `mapstructure:"browser" yaml:"browser" json:"browser"`
	TargetFile string        `mapstructure:"-" yaml:"-" json:"-"` // CLI argument, not from config file
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Open            bool          `mapstructure:"open" yaml:"open" json:"open"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	ConnectionRate  float64       `mapstructure:"connection_rate" yaml:"connection_rate" json:"connection_rate"`
	ConnectionBurst int           `mapstructure:"connection_burst" yaml:"connection_burst" json:"connection_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type WatcherConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level" json:"level"`
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
}

type BrowserConfig struct {
	Command string `mapstructure:"command" yaml:"command" json:"command"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			Host:            DefaultHost,
			ConnectionRate:  DefaultConnectionRate,
			ConnectionBurst: DefaultConnectionBurst,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Watcher: WatcherConfig{Debounce: DefaultDebounce},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers the built-in defaults with v so that every key is
// known to viper, which AutomaticEnv needs in order to resolve it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.connection_rate", d.Server.ConnectionRate)
	v.SetDefault("server.connection_burst", d.Server.ConnectionBurst)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.verbose", false)
	v.SetDefault("browser.command", "")
}

// EnvKeyReplacer maps nested keys such as server.port onto LIVEDOWN_SERVER_PORT.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Zero values from a partially populated viper fall back to defaults
	d := Default()
	if !v.IsSet("server.port") {
		config.Server.Port = d.Server.Port
	}
	if config.Server.Host == "" {
		config.Server.Host = d.Server.Host
	}
	// An explicit zero rate disables connection limiting
	if !v.IsSet("server.connection_rate") {
		config.Server.ConnectionRate = d.Server.ConnectionRate
	}
	if !v.IsSet("server.connection_burst") {
		config.Server.ConnectionBurst = d.Server.ConnectionBurst
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if !v.IsSet("watcher.debounce") {
		config.Watcher.Debounce = d.Watcher.Debounce
	}
	if config.Logging.Level == "" {
		config.Logging.Level = d.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = d.Logging.Format
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Addr returns the host:port the listener binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LogLevel resolves the effective log level; verbose forces debug.
func (c *Config) LogLevel() logging.LogLevel {
	if c.Logging.Verbose {
		return logging.LevelDebug
	}
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// Validate validates configuration values for security and correctness
func Validate(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Watcher.Debounce < 0 {
		return fmt.Errorf("watcher config: debounce must not be negative, got %s", config.Watcher.Debounce)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// 0 asks the kernel for an ephemeral port
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %q", char)
		}
	}

	if config.ConnectionRate < 0 {
		return fmt.Errorf("connection_rate must not be negative, got %v", config.ConnectionRate)
	}
	if config.ConnectionBurst < 0 {
		return fmt.Errorf("connection_burst must not be negative, got %d", config.ConnectionBurst)
	}
	if config.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative, got %s", config.ShutdownTimeout)
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}

	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", config.Format)
	}
}
