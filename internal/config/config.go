package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Bot        BotConfig        `yaml:"bot"`
	Game       GameConfig       `yaml:"game"`
	Mock       MockConfig       `yaml:"mock"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Journal    JournalConfig    `yaml:"journal"`
	Stats      StatsConfig      `yaml:"stats"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	GRPCHealth GRPCHealthConfig `yaml:"grpc_health"`
	Privacy    PrivacyConfig    `yaml:"privacy"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"MINEBOT_PORT"`
	Host           string        `yaml:"host" env:"MINEBOT_HOST"`
	AuthToken      string        `yaml:"auth_token" env:"MINEBOT_AUTH_TOKEN"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"MINEBOT_ALLOWED_ORIGINS" envSeparator:","`
	MaxConns       int           `yaml:"max_connections"`
	Throttle       time.Duration `yaml:"broadcast_throttle"`
	Snapshot       time.Duration `yaml:"snapshot_interval"`
}

// BotConfig holds the default session settings used when a start request
// leaves fields blank, and for -autostart.
type BotConfig struct {
	Host             string `yaml:"host" env:"MINEBOT_BOT_HOST"`
	Port             int    `yaml:"port" env:"MINEBOT_BOT_PORT"`
	Username         string `yaml:"username" env:"MINEBOT_BOT_USERNAME"`
	HeartbeatMessage string `yaml:"heartbeat_message" env:"MINEBOT_BOT_HEARTBEAT_MESSAGE"`
	Autostart        bool   `yaml:"autostart" env:"MINEBOT_AUTOSTART"`
}

// Session returns the bot defaults as a session config.
func (b BotConfig) Session() session.Config {
	return session.Config{
		Host:             b.Host,
		Port:             b.Port,
		Username:         b.Username,
		HeartbeatMessage: b.HeartbeatMessage,
	}
}

// Fill returns c with every zero field taken from the bot defaults.
func (b BotConfig) Fill(c session.Config) session.Config {
	if c.Host == "" {
		c.Host = b.Host
	}
	if c.Port == 0 {
		c.Port = b.Port
	}
	if c.Username == "" {
		c.Username = b.Username
	}
	if c.HeartbeatMessage == "" {
		c.HeartbeatMessage = b.HeartbeatMessage
	}
	return c
}

type GameConfig struct {
	Path             string        `yaml:"path"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

type MockConfig struct {
	SpawnDelay  time.Duration `yaml:"spawn_delay"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	FailRate    float64       `yaml:"fail_rate"`
}

type TriggerConfig struct {
	Model    string        `yaml:"model" env:"MINEBOT_OPENAI_MODEL"`
	BaseURL  string        `yaml:"base_url" env:"MINEBOT_OPENAI_BASE_URL"`
	APIKey   string        `yaml:"api_key" env:"MINEBOT_OPENAI_API_KEY"`
	Timeout  time.Duration `yaml:"timeout"`
	Messages []string      `yaml:"messages"`
}

type JournalConfig struct {
	Path       string `yaml:"path" env:"MINEBOT_JOURNAL_PATH"`
	MaxEntries int    `yaml:"max_entries"`
}

type StatsConfig struct {
	Dir          string        `yaml:"dir" env:"MINEBOT_STATS_DIR"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"otlp_endpoint" env:"MINEBOT_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name"`
}

type GRPCHealthConfig struct {
	Addr string `yaml:"addr" env:"MINEBOT_GRPC_HEALTH_ADDR"`
}

// PrivacyConfig controls masking of the server address and bot identity in
// everything pushed to clients.
type PrivacyConfig struct {
	MaskHost     bool `yaml:"mask_host"`
	MaskUsername bool `yaml:"mask_username"`
	HideErrors   bool `yaml:"hide_errors"`
}

// NewPrivacyFilter builds a session.PrivacyFilter from the config values.
func (p PrivacyConfig) NewPrivacyFilter() *session.PrivacyFilter {
	return &session.PrivacyFilter{
		MaskHost:     p.MaskHost,
		MaskUsername: p.MaskUsername,
		HideErrors:   p.HideErrors,
	}
}

var defaultTriggerMessages = []string{
	"Welcome to the server!",
	"Enjoy your stay!",
	"Don't forget to read the rules.",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			Host:     "127.0.0.1",
			MaxConns: 100,
			Throttle: 100 * time.Millisecond,
			Snapshot: 5 * time.Second,
		},
		Bot: BotConfig{
			Host:             "localhost",
			Port:             25565,
			Username:         "MineBot",
			HeartbeatMessage: "Hello! I'm still here.",
		},
		Game: GameConfig{
			Path:             "/ws",
			HandshakeTimeout: 10 * time.Second,
			PingInterval:     30 * time.Second,
			WriteTimeout:     10 * time.Second,
		},
		Mock: MockConfig{
			SpawnDelay:  time.Second,
			MaxLifetime: 3 * time.Minute,
			FailRate:    0.2,
		},
		Trigger: TriggerConfig{
			Model:    "gpt-4o-mini",
			Timeout:  30 * time.Second,
			Messages: append([]string(nil), defaultTriggerMessages...),
		},
		Journal: JournalConfig{
			Path:       filepath.Join(defaultStateDir(), "journal.db"),
			MaxEntries: 5000,
		},
		Stats: StatsConfig{
			Dir:          defaultStateDir(),
			SaveInterval: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "minebot",
		},
	}
}

// defaultStateDir returns $XDG_STATE_HOME/minebot, falling back to
// ~/.local/state/minebot.
func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "minebot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "minebot")
	}
	return filepath.Join(home, ".local", "state", "minebot")
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = defaultConfig()
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func finish(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return cfg.Validate()
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Bot.Port < 0 || c.Bot.Port > 65535 {
		return fmt.Errorf("bot.port %d out of range", c.Bot.Port)
	}
	if c.Mock.FailRate < 0 || c.Mock.FailRate > 1 {
		return fmt.Errorf("mock.fail_rate %v must be between 0 and 1", c.Mock.FailRate)
	}
	if c.Journal.MaxEntries < 0 {
		return fmt.Errorf("journal.max_entries must not be negative")
	}
	durations := map[string]time.Duration{
		"server.broadcast_throttle": c.Server.Throttle,
		"server.snapshot_interval":  c.Server.Snapshot,
		"game.handshake_timeout":    c.Game.HandshakeTimeout,
		"game.ping_interval":        c.Game.PingInterval,
		"game.write_timeout":        c.Game.WriteTimeout,
		"mock.spawn_delay":          c.Mock.SpawnDelay,
		"mock.max_lifetime":         c.Mock.MaxLifetime,
		"trigger.timeout":           c.Trigger.Timeout,
		"stats.save_interval":       c.Stats.SaveInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// GenerateToken returns a random 16-byte hex token for the control API.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
