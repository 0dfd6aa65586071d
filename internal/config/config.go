// Package config assembles the process configuration: required credentials
// from the environment (a local .env is honored), optional tunables from a
// YAML file named by GRADWATCH_CONFIG. There are no CLI flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

const (
	envBotToken = "TG_BOT_TOKEN"
	envChatID   = "TG_CHAT_ID"
	envAPIToken = "API_TOKEN_1P3A"
	envDeviceID = "DEVICE_ID_1P3A"
	envTunables = "GRADWATCH_CONFIG"
)

// MissingEnvError names the required variables that were absent. Callers
// treat it as "nothing to do", not as a crash.
type MissingEnvError struct {
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return "missing key environment variables: " + strings.Join(e.Vars, ", ")
}

type Config struct {
	BotToken string
	ChatID   string
	APIToken string
	DeviceID string

	Tunables Tunables
}

// Tunables are the optional knobs. Durations are Go duration strings
// (e.g. "500ms", "2s"); zero values fall back to defaults in resolve().
type Tunables struct {
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Forum struct {
		BaseURL   string `yaml:"base_url"`
		LegacyURL string `yaml:"legacy_url"`
		ID        int    `yaml:"id"`
		PageSize  int    `yaml:"page_size"`
		MaxDepth  int    `yaml:"max_depth"`
	} `yaml:"forum"`

	// Details selects the enrichment strategy: "options" (default) or "legacy".
	Details string `yaml:"details"`

	// Store selects watermark persistence: "chat" (default) or "sqlite".
	Store struct {
		Kind string `yaml:"kind"`
		Path string `yaml:"path"`
	} `yaml:"store"`

	Pace struct {
		ListMin   string `yaml:"list_min"`
		ListMax   string `yaml:"list_max"`
		DetailMin string `yaml:"detail_min"`
		DetailMax string `yaml:"detail_max"`
		SendMin   string `yaml:"send_min"`
		SendMax   string `yaml:"send_max"`
		MetaMin   string `yaml:"meta_min"`
		MetaMax   string `yaml:"meta_max"`
	} `yaml:"pace"`

	SendRatePerSec int `yaml:"send_rate_per_sec"`

	Timezone string `yaml:"timezone"`

	// Schedule is a cron spec for daemon mode; empty means run once and exit.
	Schedule string `yaml:"schedule"`

	// parsed pacing bounds, filled by resolve()
	pace PaceDurations
}

type PaceDurations struct {
	ListMin, ListMax     time.Duration
	DetailMin, DetailMax time.Duration
	SendMin, SendMax     time.Duration
	MetaMin, MetaMax     time.Duration
}

func (t *Tunables) Pacing() PaceDurations { return t.pace }

// Load reads the environment (plus an optional .env and tunables file).
// It returns *MissingEnvError when any required credential is absent.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BotToken: os.Getenv(envBotToken),
		ChatID:   os.Getenv(envChatID),
		APIToken: os.Getenv(envAPIToken),
		DeviceID: os.Getenv(envDeviceID),
	}

	var missing []string
	for _, v := range []struct{ name, val string }{
		{envBotToken, cfg.BotToken},
		{envChatID, cfg.ChatID},
		{envAPIToken, cfg.APIToken},
		{envDeviceID, cfg.DeviceID},
	} {
		if strings.TrimSpace(v.val) == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Vars: missing}
	}

	if path := os.Getenv(envTunables); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read tunables %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg.Tunables); err != nil {
			return nil, fmt.Errorf("config: parse tunables %s: %w", path, err)
		}
	}

	if err := cfg.Tunables.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (t *Tunables) resolve() error {
	switch strings.TrimSpace(t.Details) {
	case "", "options":
		t.Details = "options"
	case "legacy":
		t.Details = "legacy"
	default:
		return fmt.Errorf("config: details must be options or legacy, got %q", t.Details)
	}

	switch strings.TrimSpace(t.Store.Kind) {
	case "", "chat":
		t.Store.Kind = "chat"
	case "sqlite":
		t.Store.Kind = "sqlite"
		if strings.TrimSpace(t.Store.Path) == "" {
			return fmt.Errorf("config: store.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("config: store.kind must be chat or sqlite, got %q", t.Store.Kind)
	}

	if t.SendRatePerSec <= 0 {
		t.SendRatePerSec = 1
	}

	var err error
	parse := func(path, raw string, def time.Duration) time.Duration {
		if err != nil {
			return 0
		}
		var d time.Duration
		d, err = durationOrDefault(path, raw, def)
		return d
	}

	t.pace.ListMin = parse("pace.list_min", t.Pace.ListMin, time.Second)
	t.pace.ListMax = parse("pace.list_max", t.Pace.ListMax, 3*time.Second)
	t.pace.DetailMin = parse("pace.detail_min", t.Pace.DetailMin, 500*time.Millisecond)
	t.pace.DetailMax = parse("pace.detail_max", t.Pace.DetailMax, 2*time.Second)
	t.pace.SendMin = parse("pace.send_min", t.Pace.SendMin, time.Second)
	t.pace.SendMax = parse("pace.send_max", t.Pace.SendMax, 3*time.Second)
	t.pace.MetaMin = parse("pace.meta_min", t.Pace.MetaMin, 2*time.Second)
	t.pace.MetaMax = parse("pace.meta_max", t.Pace.MetaMax, 3*time.Second)
	return err
}

// durationOrDefault parses a Go duration string, substituting def for empty
// or zero values. Negative durations are rejected.
func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
