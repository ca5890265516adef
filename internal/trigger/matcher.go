// Package trigger scans inbound chat messages against configured word lists
// and scope filters, producing actuation requests.
package trigger

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"plugbridge/internal/actuator"
	"plugbridge/internal/config"
)

// Accumulation constants. Intensity is accumulated on a 0..100 scale and
// normalized to [0,1] at the end.
const (
	triggerIntensityStep = 19
	triggerDurationStep  = 2000 * time.Millisecond

	addOnIntensityStep = 7.5
	addOnDurationMin   = 5 * time.Millisecond
	addOnDurationMax   = 30 * time.Millisecond

	dmIntensityFactor = 1.35
	dmDurationFactor  = 2

	// rampDurationPad accounts for ramp overhead when ramp mode is on.
	rampDurationPad = 1250 * time.Millisecond

	intensityCap = 100
)

// Message is one normalized inbound chat message.
// Content must already be lower-cased by the adapter.
type Message struct {
	Content   string
	AuthorID  string
	ChannelID string
	GuildID   string

	IsDM       bool
	MentionsMe bool
	ReplyToMe  bool
}

// Config is the matcher's live view of the trigger settings.
// Word lists are normalized (lower-cased, trimmed) by Normalize.
type Config struct {
	TriggerWords []string
	AddOnWords   []string
	TargetWords  []string

	LocalUsername string

	ScopeMode     string
	HomeChannelID string
	HomeGuildID   string

	ListMode       string
	ListedUsers    []string
	ListedChannels []string
	ListedGuilds   []string

	// MaxIntensity is the configured ceiling in percent (0..100).
	MaxIntensity float64

	RampEnabled bool
}

// Normalize lower-cases and trims all word lists, dropping empties.
func (c *Config) Normalize() {
	c.TriggerWords = normalizeWords(c.TriggerWords)
	c.AddOnWords = normalizeWords(c.AddOnWords)
	c.TargetWords = normalizeWords(c.TargetWords)
	c.LocalUsername = strings.ToLower(strings.TrimSpace(c.LocalUsername))
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// Matcher is safe for concurrent use; Update swaps the config snapshot
// without blocking in-flight matches.
type Matcher struct {
	cfg atomic.Pointer[Config]

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config) *Matcher {
	m := &Matcher{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	m.Update(cfg)
	return m
}

func (m *Matcher) Update(cfg Config) {
	cfg.Normalize()
	m.cfg.Store(&cfg)
}

// Match reports whether msg should actuate, and with what request.
//
// An empty trigger-word list means the matcher never fires; a missing
// configuration is a silent no-match, never an error.
func (m *Matcher) Match(msg Message) (actuator.Request, bool) {
	cfg := m.cfg.Load()
	if cfg == nil || len(cfg.TriggerWords) == 0 {
		return actuator.Request{}, false
	}

	if !m.targeted(msg, cfg) {
		return actuator.Request{}, false
	}
	if !m.inScope(msg, cfg) {
		return actuator.Request{}, false
	}
	if !m.passesList(msg, cfg) {
		return actuator.Request{}, false
	}

	var (
		intensity float64
		duration  time.Duration
		matched   bool
	)
	for _, w := range cfg.TriggerWords {
		if strings.Contains(msg.Content, w) {
			intensity += triggerIntensityStep
			duration += triggerDurationStep
			matched = true
		}
	}
	if !matched {
		return actuator.Request{}, false
	}

	for _, w := range cfg.AddOnWords {
		if strings.Contains(msg.Content, w) {
			intensity += addOnIntensityStep
			duration += m.randomAddOnDuration()
		}
	}

	if msg.IsDM {
		intensity *= dmIntensityFactor
		duration *= dmDurationFactor
	}
	if cfg.RampEnabled {
		duration += rampDurationPad
	}

	if intensity > intensityCap {
		intensity = intensityCap
	}
	// Scale by the configured ceiling, then normalize to [0,1].
	intensity = intensity * (cfg.MaxIntensity / 100) / 100

	return actuator.Request{
		Intensity: intensity,
		Duration:  duration,
		Device:    actuator.AllDevices,
		Origin:    "trigger",
		AuthorID:  msg.AuthorID,
	}, true
}

// targeted: the message must be aimed at us before any word scoring happens.
func (m *Matcher) targeted(msg Message, cfg *Config) bool {
	if msg.MentionsMe || msg.ReplyToMe || msg.IsDM {
		return true
	}
	if cfg.LocalUsername != "" && strings.Contains(msg.Content, cfg.LocalUsername) {
		return true
	}
	for _, w := range cfg.TargetWords {
		if strings.Contains(msg.Content, w) {
			return true
		}
	}
	return false
}

func (m *Matcher) inScope(msg Message, cfg *Config) bool {
	switch cfg.ScopeMode {
	case config.ScopeDM:
		return msg.IsDM
	case config.ScopeChannel:
		return cfg.HomeChannelID != "" && msg.ChannelID == cfg.HomeChannelID
	case config.ScopeGuild:
		return cfg.HomeGuildID != "" && msg.GuildID == cfg.HomeGuildID
	default:
		return true
	}
}

func (m *Matcher) passesList(msg Message, cfg *Config) bool {
	if cfg.ListMode == config.ListOff {
		return true
	}
	member := containsID(cfg.ListedUsers, msg.AuthorID) ||
		containsID(cfg.ListedChannels, msg.ChannelID) ||
		containsID(cfg.ListedGuilds, msg.GuildID)
	switch cfg.ListMode {
	case config.ListWhitelist:
		return member
	case config.ListBlacklist:
		return !member
	default:
		return false
	}
}

func containsID(list []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func (m *Matcher) randomAddOnDuration() time.Duration {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	span := int64(addOnDurationMax - addOnDurationMin)
	return addOnDurationMin + time.Duration(m.rng.Int63n(span+1))
}
