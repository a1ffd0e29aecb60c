// Package config loads the relay server configuration from YAML and the
// presenter/surface client configuration through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Hub      HubConfig      `yaml:"hub"`
	Sessions SessionsConfig `yaml:"sessions"`
	Content  ContentConfig  `yaml:"content"`
	Relay    RelayConfig    `yaml:"relay"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// PublicURL is the base used in share links; defaults to http://host:port.
	PublicURL string `yaml:"public_url"`
}

type HubConfig struct {
	MaxConnections int           `yaml:"max_connections"` // 0 = unlimited
	SendBuffer     int           `yaml:"send_buffer"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PresenterGrace time.Duration `yaml:"presenter_grace"`
	ChannelTTL     time.Duration `yaml:"channel_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type SessionsConfig struct {
	// Dir enables the durable file store; empty keeps sessions in memory.
	Dir         string        `yaml:"dir"`
	ExpireAfter time.Duration `yaml:"expire_after"`
}

type ContentConfig struct {
	LessonsDir string `yaml:"lessons_dir"`
}

type RelayConfig struct {
	// AMQPURL enables cross-instance relaying; empty relays nothing.
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Hub: HubConfig{
			MaxConnections: 256,
			SendBuffer:     64,
			PingInterval:   30 * time.Second,
			PresenterGrace: 15 * time.Second,
			ChannelTTL:     10 * time.Minute,
			SweepInterval:  30 * time.Second,
		},
		Sessions: SessionsConfig{
			ExpireAfter: 2 * time.Minute,
		},
		Content: ContentConfig{
			LessonsDir: "lessons",
		},
		Relay: RelayConfig{
			Exchange: "lessoncast.hub",
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, but a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Hub.MaxConnections < 0 {
		return fmt.Errorf("hub.max_connections must not be negative")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	for name, d := range map[string]time.Duration{
		"hub.ping_interval":     c.Hub.PingInterval,
		"hub.sweep_interval":    c.Hub.SweepInterval,
		"hub.channel_ttl":       c.Hub.ChannelTTL,
		"sessions.expire_after": c.Sessions.ExpireAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Hub.PresenterGrace < 0 {
		return fmt.Errorf("hub.presenter_grace must not be negative")
	}
	if c.Relay.AMQPURL != "" && c.Relay.Exchange == "" {
		return fmt.Errorf("relay.exchange is required with relay.amqp_url")
	}
	return nil
}

// PublicBase is the base URL for links handed to users.
func (c *Config) PublicBase() string {
	if c.Server.PublicURL != "" {
		return c.Server.PublicURL
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
