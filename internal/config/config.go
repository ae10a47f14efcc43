package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys are
// separated by a double underscore: NUDGE_SCHEDULER__INTERVAL=45s.
const EnvPrefix = "NUDGE_"

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Owner     OwnerConfig     `koanf:"owner"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Notify    NotifyConfig    `koanf:"notify"`
	Channels  ChannelsConfig  `koanf:"channels"`
	Actions   ActionsConfig   `koanf:"actions"`
	Backup    BackupConfig    `koanf:"backup"`
}

// HTTPConfig configures the API listener. When APIToken is set, /api and
// /ws require it as a bearer token.
type HTTPConfig struct {
	Port     string `koanf:"port"`
	APIToken string `koanf:"api_token"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// OwnerConfig scopes the notifier to one user. Timezone decides what a
// "calendar day" is for the once-per-day rule.
type OwnerConfig struct {
	ID       string `koanf:"id"`
	Timezone string `koanf:"timezone"`
}

type SchedulerConfig struct {
	Interval  time.Duration `koanf:"interval"`
	Autostart bool          `koanf:"autostart"`
}

type NotifyConfig struct {
	SnoozeMinutes int    `koanf:"snooze_minutes"`
	BaseURL       string `koanf:"base_url"`
}

type ChannelsConfig struct {
	Browser BrowserChannelConfig `koanf:"browser"`
	Desktop DesktopChannelConfig `koanf:"desktop"`
	Email   EmailChannelConfig   `koanf:"email"`
}

type BrowserChannelConfig struct {
	Enabled         bool   `koanf:"enabled"`
	VAPIDPublicKey  string `koanf:"vapid_public_key"`
	VAPIDPrivateKey string `koanf:"vapid_private_key"`
	Subscriber      string `koanf:"subscriber"`
}

type DesktopChannelConfig struct {
	Enabled bool `koanf:"enabled"`
}

type EmailChannelConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServerToken string `koanf:"server_token"`
	From        string `koanf:"from"`
	To          string `koanf:"to"`
}

// ActionsConfig holds the secret used to seal action links embedded in
// notifications. With an empty secret a random key is generated at startup,
// so links stop working across restarts.
type ActionsConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// BackupConfig schedules encrypted database snapshots to S3-compatible
// storage.
type BackupConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Interval   time.Duration `koanf:"interval"`
	Retention  time.Duration `koanf:"retention"`
	Passphrase string        `koanf:"passphrase"`
	S3         S3Config      `koanf:"s3"`
}

type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.port":                   "8080",
		"http.api_token":              "",
		"database.path":               "nudge.db",
		"log.level":                   "info",
		"owner.id":                    "00000000-0000-0000-0000-000000000001",
		"owner.timezone":              "Local",
		"scheduler.interval":          "30s",
		"scheduler.autostart":         true,
		"notify.snooze_minutes":       5,
		"notify.base_url":             "http://localhost:8080",
		"channels.browser.enabled":    true,
		"channels.browser.subscriber": "mailto:noreply@nudge.local",
		"channels.desktop.enabled":    true,
		"channels.email.enabled":      false,
		"actions.ttl":                 "24h",
		"backup.enabled":              false,
		"backup.interval":             "24h",
		"backup.retention":            "720h",
		"backup.s3.region":            "us-east-1",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// NUDGE_ environment variables, in increasing order of precedence.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks the values the notifier cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner.ID) == "" {
		return fmt.Errorf("owner.id is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Notify.SnoozeMinutes <= 0 {
		return fmt.Errorf("notify.snooze_minutes must be positive, got %d", c.Notify.SnoozeMinutes)
	}
	if c.Channels.Email.Enabled && (c.Channels.Email.ServerToken == "" || c.Channels.Email.To == "") {
		return fmt.Errorf("channels.email requires server_token and to when enabled")
	}
	if b := c.Backup; b.Enabled {
		if b.Passphrase == "" || b.S3.Bucket == "" || b.S3.AccessKey == "" || b.S3.SecretKey == "" {
			return fmt.Errorf("backup requires passphrase and s3 bucket, access_key and secret_key when enabled")
		}
		if b.Interval <= 0 {
			return fmt.Errorf("backup.interval must be positive, got %s", b.Interval)
		}
	}
	return nil
}

// Location resolves the owner's time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Owner.Timezone)
	if err != nil {
		return nil, fmt.Errorf("owner.timezone %q: %w", c.Owner.Timezone, err)
	}
	return loc, nil
}

// BrowserConfigured reports whether the web push channel can be built.
func (c *Config) BrowserConfigured() bool {
	b := c.Channels.Browser
	return b.Enabled && b.VAPIDPublicKey != "" && b.VAPIDPrivateKey != ""
}
