package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("interval = %s, want 30s", cfg.Scheduler.Interval)
	}
	if cfg.HTTP.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.HTTP.Port)
	}
	if cfg.Notify.SnoozeMinutes != 5 {
		t.Errorf("snooze_minutes = %d, want 5", cfg.Notify.SnoozeMinutes)
	}
	if !cfg.Channels.Desktop.Enabled {
		t.Error("desktop channel should be enabled by default")
	}
	if cfg.Channels.Email.Enabled {
		t.Error("email channel should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nudge.yaml")
	yaml := `
owner:
  id: alice
  timezone: America/New_York
scheduler:
  interval: 10s
channels:
  desktop:
    enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NUDGE_SCHEDULER__INTERVAL", "45s")
	t.Setenv("NUDGE_CHANNELS__BROWSER__VAPID_PUBLIC_KEY", "pub")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Owner.ID != "alice" {
		t.Errorf("owner.id = %q, want alice", cfg.Owner.ID)
	}
	if cfg.Scheduler.Interval != 45*time.Second {
		t.Errorf("interval = %s, want env override 45s", cfg.Scheduler.Interval)
	}
	if cfg.Channels.Desktop.Enabled {
		t.Error("desktop channel should be disabled by file")
	}
	if cfg.Channels.Browser.VAPIDPublicKey != "pub" {
		t.Errorf("vapid_public_key = %q, want pub", cfg.Channels.Browser.VAPIDPublicKey)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Errorf("location = %s", loc)
	}
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Owner.ID = " "
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty owner id")
	}

	cfg = base()
	cfg.Owner.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown timezone")
	}

	cfg = base()
	cfg.Scheduler.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero interval")
	}

	cfg = base()
	cfg.Channels.Email.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for email channel without token")
	}

	cfg = base()
	cfg.Backup.Enabled = true
	cfg.Backup.S3.Bucket = "nudge"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for backup without credentials")
	}
	cfg.Backup.S3.AccessKey = "key"
	cfg.Backup.S3.SecretKey = "secret"
	cfg.Backup.Passphrase = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete backup config should validate: %v", err)
	}
}

func TestBackupEnvOverride(t *testing.T) {
	t.Setenv("NUDGE_BACKUP__S3__ACCESS_KEY", "AKIA")
	t.Setenv("NUDGE_BACKUP__RETENTION", "168h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.S3.AccessKey != "AKIA" {
		t.Errorf("access_key = %q, want AKIA", cfg.Backup.S3.AccessKey)
	}
	if cfg.Backup.Retention != 168*time.Hour {
		t.Errorf("retention = %s, want 168h", cfg.Backup.Retention)
	}
	if cfg.Backup.Interval != 24*time.Hour {
		t.Errorf("interval = %s, want default 24h", cfg.Backup.Interval)
	}
}

func TestBrowserConfigured(t *testing.T) {
	cfg := &Config{}
	cfg.Channels.Browser.Enabled = true
	if cfg.BrowserConfigured() {
		t.Error("browser channel should need VAPID keys")
	}
	cfg.Channels.Browser.VAPIDPublicKey = "pub"
	cfg.Channels.Browser.VAPIDPrivateKey = "priv"
	if !cfg.BrowserConfigured() {
		t.Error("browser channel should be configured")
	}
}
