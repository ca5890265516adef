// Package discord supplies the message stream and the operator command
// surface over a discordgo session.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"plugbridge/internal/trigger"
	logx "plugbridge/pkg/logx"
)

type Config struct {
	Token         string
	CommandPrefix string
	// Operators may use the command surface. Empty disables commands.
	Operators []string
}

// Event is one inbound item: either a normalized chat message for the
// matcher or a parsed operator command. Exactly one field is set.
type Event struct {
	Message *trigger.Message
	Command *Command
}

type Adapter struct {
	log logx.Logger

	cfgMu sync.Mutex
	cfg   Config

	s   *discordgo.Session
	out chan<- Event

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	// droppedEvents counts events dropped because the consumer was slower
	// than the gateway. Logged periodically to avoid per-event spam.
	droppedEvents uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Adapter{cfg: cfg, log: log, s: s}, nil
}

// Update applies reloaded prefix/operator settings. The token is fixed for
// the lifetime of the session.
func (a *Adapter) Update(cfg Config) {
	a.cfgMu.Lock()
	cfg.Token = a.cfg.Token
	a.cfg = cfg
	a.cfgMu.Unlock()
}

func (a *Adapter) Start(ctx context.Context, out chan<- Event) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	a.s.AddHandler(a.onMessageCreate)

	if err := a.s.Open(); err != nil {
		cancel()
		a.runWG.Done()
		a.runMu.Lock()
		a.running = false
		a.runMu.Unlock()
		return err
	}

	// Periodic summary for dropped events.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("inbound events dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
					a.log.Warn("inbound events dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	a.log.Info("discord session opened")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := a.s.Close()
	a.runWG.Wait()
	a.log.Info("discord session closed")
	return err
}

// SendText posts a message to a channel. Used for command replies and the
// log relay sink.
func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	_ = ctx
	if strings.TrimSpace(channelID) == "" || text == "" {
		return nil
	}
	_, err := a.s.ChannelMessageSend(channelID, text)
	return err
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	self := s.State.User
	if self == nil || m.Author.ID == self.ID {
		return
	}

	a.cfgMu.Lock()
	prefix := a.cfg.CommandPrefix
	operators := a.cfg.Operators
	a.cfgMu.Unlock()

	if prefix != "" && strings.HasPrefix(m.Content, prefix) {
		if !isOperator(operators, m.Author.ID) {
			a.log.Debug("command from non-operator ignored", logx.String("author", m.Author.ID))
			return
		}
		cmd, ok := ParseCommand(m.Content, prefix)
		if !ok {
			return
		}
		cmd.AuthorID = m.Author.ID
		cmd.ChannelID = m.ChannelID
		cmd.GuildID = m.GuildID
		a.emit(Event{Command: &cmd})
		return
	}

	msg := trigger.Message{
		Content:   strings.ToLower(m.Content),
		AuthorID:  m.Author.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		IsDM:      m.GuildID == "",
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == self.ID {
			msg.MentionsMe = true
			break
		}
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == self.ID {
		msg.ReplyToMe = true
	}

	a.emit(Event{Message: &msg})
}

func (a *Adapter) emit(ev Event) {
	a.runMu.Lock()
	out := a.out
	a.runMu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		atomic.AddUint64(&a.droppedEvents, 1)
	}
}

func isOperator(operators []string, id string) bool {
	for _, op := range operators {
		if op == id {
			return true
		}
	}
	return false
}
