package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ClientConfig holds the chat client's connection settings.
type ClientConfig struct {
	// URL is the fixed endpoint dialled once per session.
	URL string `yaml:"url" envconfig:"URL"`

	// Greeting is sent unconditionally right after the connection opens.
	Greeting string `yaml:"greeting" envconfig:"GREETING"`

	// CloseTimeout bounds the flush of queued messages when the session ends.
	CloseTimeout time.Duration `yaml:"close_timeout" envconfig:"CLOSE_TIMEOUT"`

	// MaxMessageSize caps inbound message size in bytes. 0 means no limit.
	MaxMessageSize int64 `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`

	// Origin, when set, is sent as the Origin header of the upgrade request.
	Origin string `yaml:"origin" envconfig:"ORIGIN"`
}

// DefaultConfig returns the settings for a server on localhost:7000.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		URL:          "ws://localhost:7000/ws",
		Greeting:     "hello from go",
		CloseTimeout: time.Second,
	}
}

// LoadConfig reads a YAML file over the defaults, then applies CHAT_*
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*ClientConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := envconfig.Process("chat", cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the endpoint is a usable websocket URL.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url %q: scheme must be ws or wss", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive, got %s", c.CloseTimeout)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size must not be negative, got %d", c.MaxMessageSize)
	}
	return nil
}
