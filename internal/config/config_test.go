package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
discord:
  token: "abc"
device:
  server_url: "ws://127.0.0.1:12345"
triggers:
  trigger_words: ["buzz"]
ramp:
  enabled: true
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
  relay:
    enabled: false
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Discord.CommandPrefix != DefaultCommandPrefix {
		t.Fatalf("CommandPrefix = %q, want %q", cfg.Discord.CommandPrefix, DefaultCommandPrefix)
	}
	if cfg.Triggers.MaxIntensity != DefaultMaxIntensity {
		t.Fatalf("MaxIntensity = %v, want %v", cfg.Triggers.MaxIntensity, DefaultMaxIntensity)
	}
	if cfg.Triggers.ScopeMode != ScopeNone || cfg.Triggers.ListMode != ListOff {
		t.Fatalf("unexpected mode defaults: %q/%q", cfg.Triggers.ScopeMode, cfg.Triggers.ListMode)
	}
	if cfg.Ramp.Steps != DefaultRampSteps {
		t.Fatalf("Ramp.Steps = %d, want %d", cfg.Ramp.Steps, DefaultRampSteps)
	}
	if cfg.Monitor.PollSchedule != DefaultPollSchedule {
		t.Fatalf("PollSchedule = %q, want %q", cfg.Monitor.PollSchedule, DefaultPollSchedule)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"discord":{"token":"abc"},"device":{"server_url":""},"triggers":{"trigger_words":[]},"ramp":{"enabled":false},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""},"relay":{"enabled":false}},"surprise":1}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Discord.Token = " " }, wantErr: true},
		{name: "bad scope mode", mutate: func(c *Config) { c.Triggers.ScopeMode = "everywhere" }, wantErr: true},
		{name: "bad list mode", mutate: func(c *Config) { c.Triggers.ListMode = "graylist" }, wantErr: true},
		{name: "intensity over 100", mutate: func(c *Config) { c.Triggers.MaxIntensity = 120 }, wantErr: true},
		{name: "bad storage driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "etcd", Path: "x"} }, wantErr: true},
		{name: "bad timeout", mutate: func(c *Config) { c.Device.ConnectTimeout = "soon" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Discord: DiscordConfig{Token: "abc"}}
			cfg.Normalize()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d := ParseDurationOrDefault("", 5e9); d != 5e9 {
		t.Fatalf("unset = %v, want default", d)
	}
	if d := ParseDurationOrDefault("2s", 5e9); d != 2e9 {
		t.Fatalf("set = %v, want 2s", d)
	}
	if d := ParseDurationOrDefault("soon", 5e9); d != 5e9 {
		t.Fatalf("unparsable = %v, want default", d)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
