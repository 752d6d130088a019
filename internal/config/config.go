// Package config provides Viper-based configuration loading for the bingo server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP/WebSocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP/WebSocket listener. 0 picks a free port.
	Port int `mapstructure:"port"`
	// ShutdownTimeout bounds how long a graceful shutdown waits for connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocketConfig holds per-connection WebSocket settings.
type WebSocketConfig struct {
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// WriteTimeout is the deadline applied to every outbound frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongWait is how long a connection may stay silent before it is dropped.
	// Pings are sent at 9/10 of this interval.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// MaxMessageSize is the largest inbound frame in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// OutboxSize is the number of frames buffered per player before a push fails.
	OutboxSize int `mapstructure:"outbox_size"`
	// AllowedOrigins lists accepted Origin headers; "*" accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PingPeriod returns the interval between keepalive pings.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

// GameConfig holds game pacing settings.
type GameConfig struct {
	// DrawInterval is the wait between two drawn words within a round.
	DrawInterval time.Duration `mapstructure:"draw_interval"`
	// WinPause is the pause after a round ends with winners.
	WinPause time.Duration `mapstructure:"win_pause"`
	// ExhaustPause is the pause after a round ends with no winner.
	ExhaustPause time.Duration `mapstructure:"exhaust_pause"`
	// SeedWords is an optional YAML file of words preloaded into the pools.
	SeedWords string `mapstructure:"seed_words"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.ReadBufferSize < 0 {
		errs = append(errs, "websocket.read_buffer_size must not be negative")
	}
	if w.WriteBufferSize < 0 {
		errs = append(errs, "websocket.write_buffer_size must not be negative")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PongWait <= 0 {
		errs = append(errs, "websocket.pong_wait must be positive")
	}
	if w.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_size must be >= 1, got %d", w.MaxMessageSize))
	}
	if w.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.outbox_size must be >= 1, got %d", w.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.DrawInterval < 0 {
		errs = append(errs, "game.draw_interval must not be negative")
	}
	if g.WinPause < 0 {
		errs = append(errs, "game.win_pause must not be negative")
	}
	if g.ExhaustPause < 0 {
		errs = append(errs, "game.exhaust_pause must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with BINGO_ prefix
	v.SetEnvPrefix("BINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
//
// Postcondition: The result passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic("config: built-in defaults are invalid: " + err.Error())
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.outbox_size", 256)
	v.SetDefault("websocket.allowed_origins", []string{"*"})

	v.SetDefault("game.draw_interval", "2s")
	v.SetDefault("game.win_pause", "8s")
	v.SetDefault("game.exhaust_pause", "5s")
	v.SetDefault("game.seed_words", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
