package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportSocketIO  = "socketio"
	TransportWebSocket = "websocket"

	// DefaultEnvFile is read when no env file is named; it may be absent.
	DefaultEnvFile = ".env"

	DefaultBaseURL  = "https://chat-socketio-express-backend.onrender.com"
	DefaultActingAs = "me"
)

// Config is the client configuration. Values are layered: defaults, then the
// YAML file, then the .env file, then CHAT_* environment variables. CLI flags
// are applied last by the caller.
type Config struct {
	// BaseURL is the backend HTTP origin, without a trailing slash.
	BaseURL string `yaml:"base_url"`
	// SocketURL is the real-time endpoint origin. Defaults to BaseURL.
	SocketURL string `yaml:"socket_url"`
	// Transport selects the real-time dialer (socketio|websocket).
	Transport string `yaml:"transport"`
	// WebSocketPath is the gateway path used by the plain websocket dialer.
	WebSocketPath string `yaml:"websocket_path"`

	// ActingAs is the local identity viewing threads.
	ActingAs string `yaml:"acting_as"`
	// Token is an optional bearer token sent to the backend.
	Token string `yaml:"token"`

	HistoryLimit      int           `yaml:"history_limit"`
	TypingDelay       time.Duration `yaml:"typing_delay"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`
	// HTTPTimeout bounds each backend request. Zero means no timeout.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		Transport:         TransportSocketIO,
		WebSocketPath:     "/ws",
		HistoryLimit:      50,
		TypingDelay:       1200 * time.Millisecond,
		ReconnectDelay:    500 * time.Millisecond,
		ReconnectDelayMax: 3 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load builds a Config from an optional YAML file and an optional .env file.
// Missing files are not an error when their path is empty or the default.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile == "" {
		envFile = DefaultEnvFile
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil {
		if envFile != DefaultEnvFile || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"CHAT_BASE_URL":   &c.BaseURL,
		"CHAT_SOCKET_URL": &c.SocketURL,
		"CHAT_TRANSPORT":  &c.Transport,
		"CHAT_WS_PATH":    &c.WebSocketPath,
		"CHAT_AS":         &c.ActingAs,
		"CHAT_TOKEN":      &c.Token,
		"CHAT_LOG_LEVEL":  &c.LogLevel,
		"CHAT_LOG_FORMAT": &c.LogFormat,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("CHAT_HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHAT_HISTORY_LIMIT: %w", err)
		}
		c.HistoryLimit = n
	}

	durations := map[string]*time.Duration{
		"CHAT_TYPING_DELAY":        &c.TypingDelay,
		"CHAT_RECONNECT_DELAY":     &c.ReconnectDelay,
		"CHAT_RECONNECT_DELAY_MAX": &c.ReconnectDelayMax,
		"CHAT_HTTP_TIMEOUT":        &c.HTTPTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.SocketURL = strings.TrimRight(strings.TrimSpace(c.SocketURL), "/")
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.WebSocketPath != "" && !strings.HasPrefix(c.WebSocketPath, "/") {
		c.WebSocketPath = "/" + c.WebSocketPath
	}
}

// RealtimeURL is the origin the transport dials.
func (c *Config) RealtimeURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	return c.BaseURL
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	switch c.Transport {
	case TransportSocketIO, TransportWebSocket:
	default:
		return fmt.Errorf("invalid transport %q (expected %s or %s)", c.Transport, TransportSocketIO, TransportWebSocket)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit)
	}
	if c.TypingDelay <= 0 {
		return fmt.Errorf("typing_delay must be positive, got %s", c.TypingDelay)
	}
	if c.ReconnectDelay <= 0 || c.ReconnectDelayMax < c.ReconnectDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < reconnect_delay <= reconnect_delay_max, got %s and %s",
			c.ReconnectDelay, c.ReconnectDelayMax)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout)
	}
	return nil
}
