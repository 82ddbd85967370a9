package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/mcdev12/parity/go/internal/gateway"
	"github.com/mcdev12/parity/go/internal/reaper"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the game settings read from config.yaml. Every field is
// optional; zero values fall back to defaults.
type Config struct {
	Rooms struct {
		TTL                 time.Duration `yaml:"ttl"`
		RoundDeadline       time.Duration `yaml:"round_deadline"`
		ForfeitOnDisconnect bool          `yaml:"forfeit_on_disconnect"`
		DeadlineWorkers     int           `yaml:"deadline_workers"`
	} `yaml:"rooms"`

	Waiting struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"waiting"`

	Reaper struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"reaper"`

	Gateway struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		HandlerTimeout time.Duration `yaml:"handler_timeout"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		SendBufferSize int           `yaml:"send_buffer_size"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"gateway"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads path. A missing file yields the defaults.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// fall through to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	reaperDefaults := reaper.DefaultConfig()
	if c.Rooms.TTL == 0 {
		c.Rooms.TTL = reaperDefaults.RoomTTL
	}
	if c.Rooms.DeadlineWorkers == 0 {
		c.Rooms.DeadlineWorkers = 4
	}
	if c.Waiting.TTL == 0 {
		c.Waiting.TTL = reaperDefaults.WaitingTTL
	}
	if c.Reaper.Interval == 0 {
		c.Reaper.Interval = reaperDefaults.Interval
	}

	gw := gateway.DefaultConnectionConfig()
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = gw.WriteTimeout
	}
	if c.Gateway.ReadTimeout == 0 {
		c.Gateway.ReadTimeout = gw.ReadTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = gw.PingInterval
	}
	if c.Gateway.HandlerTimeout == 0 {
		c.Gateway.HandlerTimeout = gw.HandlerTimeout
	}
	if c.Gateway.MaxMessageSize == 0 {
		c.Gateway.MaxMessageSize = gw.MaxMessageSize
	}
	if c.Gateway.SendBufferSize == 0 {
		c.Gateway.SendBufferSize = gw.SendBufferSize
	}
}

func (c *Config) validate() error {
	if c.Rooms.TTL < 0 || c.Waiting.TTL < 0 || c.Reaper.Interval < 0 {
		return errors.New("invalid config: ttl and interval values must be positive")
	}
	if c.Rooms.RoundDeadline < 0 {
		return errors.New("invalid config: rooms.round_deadline must not be negative")
	}
	if c.Rooms.DeadlineWorkers < 0 {
		return errors.New("invalid config: rooms.deadline_workers must not be negative")
	}
	if c.Gateway.PingInterval >= c.Gateway.ReadTimeout {
		return errors.New("invalid config: gateway.ping_interval must be shorter than gateway.read_timeout")
	}
	return nil
}

// ReaperConfig returns the reaper settings.
func (c *Config) ReaperConfig() reaper.Config {
	return reaper.Config{
		Interval:   c.Reaper.Interval,
		RoomTTL:    c.Rooms.TTL,
		WaitingTTL: c.Waiting.TTL,
	}
}

// ConnectionConfig returns the WebSocket settings.
func (c *Config) ConnectionConfig() gateway.ConnectionConfig {
	cc := gateway.DefaultConnectionConfig()
	cc.WriteTimeout = c.Gateway.WriteTimeout
	cc.ReadTimeout = c.Gateway.ReadTimeout
	cc.PingInterval = c.Gateway.PingInterval
	cc.HandlerTimeout = c.Gateway.HandlerTimeout
	cc.MaxMessageSize = c.Gateway.MaxMessageSize
	cc.SendBufferSize = c.Gateway.SendBufferSize
	cc.CheckOrigin = gateway.OriginChecker(c.Gateway.AllowedOrigins)
	return cc
}

// parseLogLevel maps LOG_LEVEL onto a zerolog level, defaulting to info.
func parseLogLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
