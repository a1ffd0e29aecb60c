package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every client environment override, e.g.
// LESSONCAST_SERVER_URL.
const EnvPrefix = "LESSONCAST"

// Client is the presenter and surface configuration.
type Client struct {
	ServerURL         string        `mapstructure:"server-url"`
	Token             string        `mapstructure:"token"`
	PollInterval      time.Duration `mapstructure:"poll-interval"`
	StaleThreshold    int           `mapstructure:"stale-threshold"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat-interval"`
	ReconnectAttempts int           `mapstructure:"reconnect-attempts"`
	// WindowCommand opens a second display window; "{url}" is replaced by the
	// display link. Empty disables the window transport.
	WindowCommand []string `mapstructure:"window-command"`
	LogLevel      string   `mapstructure:"log-level"`
	LogFile       string   `mapstructure:"log-file"`
}

var clientRequired = []string{
	"server-url",
}

// field: default value
var clientDefaults = map[string]interface{}{
	"poll-interval":      2 * time.Second,
	"stale-threshold":    5,
	"heartbeat-interval": 3 * time.Second,
	"reconnect-attempts": 3,
	"log-level":          "INFO",
	"log-file":           "",
	"token":              "",
}

// LoadClient reads an optional YAML file at path (empty skips it) and applies
// LESSONCAST_* environment overrides, which take precedence over the file.
// Explicit overrides (typically command-line flags) win over both.
func LoadClient(path string, overrides map[string]interface{}) (*Client, error) {
	v := viper.New()
	for k, d := range clientDefaults {
		v.SetDefault(k, d)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, field := range append(clientRequired, "window-command", "token") {
		v.BindEnv(field)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	for _, field := range clientRequired {
		if !v.IsSet(field) || v.GetString(field) == "" {
			return nil, fmt.Errorf("missing required config field: %s", field)
		}
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("stale-threshold must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be positive")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect-attempts must not be negative")
	}
	return nil
}
