package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Device   DeviceConfig   `json:"device"`
	Triggers TriggerConfig  `json:"triggers"`
	Ramp     RampConfig     `json:"ramp"`
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`

	// CommandPrefix gates the operator command surface (default "!plug").
	CommandPrefix string `json:"command_prefix,omitempty"`

	// OperatorUserIDs may use the command surface. Empty means commands are disabled.
	OperatorUserIDs []string `json:"operator_user_ids,omitempty"`

	// RelayChannelID receives relayed warnings/errors when logging.relay is enabled.
	RelayChannelID string `json:"relay_channel_id,omitempty"`
}

// DeviceConfig points at the device-control (buttplug.io/intiface) server.
type DeviceConfig struct {
	// ServerURL is a websocket URL, e.g. "ws://127.0.0.1:12345".
	ServerURL string `json:"server_url"`

	// AutoConnect connects on startup instead of waiting for an operator command.
	AutoConnect bool `json:"auto_connect,omitempty"`

	// ConnectTimeout is a Go duration string (default "10s").
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

// TriggerConfig mirrors the matcher's word lists and scope filters.
//
// Word matching is substring-based, not tokenized. That is intended behavior:
// "vibe" also fires on "vibes".
type TriggerConfig struct {
	TriggerWords []string `json:"trigger_words"`
	AddOnWords   []string `json:"add_on_words,omitempty"`
	TargetWords  []string `json:"target_words,omitempty"`

	// LocalUsername marks messages as targeted when it appears in the text.
	LocalUsername string `json:"local_username,omitempty"`

	// ScopeMode is one of "none", "dm", "channel", "guild".
	// "channel"/"guild" restrict matching to the home channel/guild below
	// (settable at runtime via the focus command).
	ScopeMode     string `json:"scope_mode,omitempty"`
	HomeChannelID string `json:"home_channel_id,omitempty"`
	HomeGuildID   string `json:"home_guild_id,omitempty"`

	// ListMode is one of "off", "whitelist", "blacklist" and applies to the
	// listed users/channels/guilds below.
	ListMode       string   `json:"list_mode,omitempty"`
	ListedUsers    []string `json:"listed_users,omitempty"`
	ListedChannels []string `json:"listed_channels,omitempty"`
	ListedGuilds   []string `json:"listed_guilds,omitempty"`

	// MaxIntensity scales the final intensity, in percent (0..100, default 70).
	MaxIntensity float64 `json:"max_intensity,omitempty"`
}

type RampConfig struct {
	Enabled bool `json:"enabled"`
	// Steps per ramp leg (default 20).
	Steps int `json:"steps,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Relay   LoggingRelay `json:"relay"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingRelay forwards warnings/errors to discord.relay_channel_id.
type LoggingRelay struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MonitorConfig controls the device poll and history pruning schedules.
// Both accept cron specs or "@every <duration>".
type MonitorConfig struct {
	PollSchedule  string `json:"poll_schedule,omitempty"`  // default "@every 15s"
	PruneSchedule string `json:"prune_schedule,omitempty"` // default "0 4 * * *"
}

// StorageConfig controls the optional actuation history store.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file
//
// If the section is omitted or Driver is empty/"none", history is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	KeepDays    int    `json:"keep_days,omitempty"`    // default 90
}

// PprofConfig controls the optional pprof HTTP server.
// Prefer binding to localhost; set a token when binding elsewhere.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`   // optional bearer token (do not log)

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
}

// Scope modes.
const (
	ScopeNone    = "none"
	ScopeDM      = "dm"
	ScopeChannel = "channel"
	ScopeGuild   = "guild"
)

// List modes.
const (
	ListOff       = "off"
	ListWhitelist = "whitelist"
	ListBlacklist = "blacklist"
)

const (
	DefaultCommandPrefix = "!plug"
	DefaultMaxIntensity  = 70
	DefaultRampSteps     = 20
	DefaultPollSchedule  = "@every 15s"
	DefaultPruneSchedule = "0 4 * * *"
	DefaultKeepDays      = 90
)

// Normalize fills defaults in place. Called after a successful parse.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Discord.CommandPrefix) == "" {
		c.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if c.Triggers.ScopeMode == "" {
		c.Triggers.ScopeMode = ScopeNone
	}
	if c.Triggers.ListMode == "" {
		c.Triggers.ListMode = ListOff
	}
	if c.Triggers.MaxIntensity == 0 {
		c.Triggers.MaxIntensity = DefaultMaxIntensity
	}
	if c.Ramp.Steps <= 0 {
		c.Ramp.Steps = DefaultRampSteps
	}
	if strings.TrimSpace(c.Monitor.PollSchedule) == "" {
		c.Monitor.PollSchedule = DefaultPollSchedule
	}
	if strings.TrimSpace(c.Monitor.PruneSchedule) == "" {
		c.Monitor.PruneSchedule = DefaultPruneSchedule
	}
	if c.Storage != nil && c.Storage.KeepDays <= 0 {
		c.Storage.KeepDays = DefaultKeepDays
	}
}

// Validate rejects configs that would misbehave at runtime.
// An empty trigger word list is allowed: the matcher simply never fires.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("discord.token is required")
	}
	switch c.Triggers.ScopeMode {
	case ScopeNone, ScopeDM, ScopeChannel, ScopeGuild:
	default:
		return fmt.Errorf("triggers.scope_mode: unknown mode %q", c.Triggers.ScopeMode)
	}
	switch c.Triggers.ListMode {
	case ListOff, ListWhitelist, ListBlacklist:
	default:
		return fmt.Errorf("triggers.list_mode: unknown mode %q", c.Triggers.ListMode)
	}
	if c.Triggers.MaxIntensity < 0 || c.Triggers.MaxIntensity > 100 {
		return fmt.Errorf("triggers.max_intensity: %v out of range [0,100]", c.Triggers.MaxIntensity)
	}
	if _, err := ParseDurationField("device.connect_timeout", c.Device.ConnectTimeout); err != nil {
		return err
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
