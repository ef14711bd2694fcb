package discord

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/bus"
	"github.com/guildkeep/guildkeep/internal/config"
)

// Intents requested at identify. Members and presences are privileged and
// must be enabled for the application in the developer portal.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildPresences

// Gateway is the websocket side of *discordgo.Session.
type Gateway interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// Session owns the Discord connection. Activity events go to the bus and
// interactions to the router.
type Session struct {
	api *discordgo.Session
	gw  Gateway
	bus *bus.Bus
	log *zap.Logger

	mu       sync.Mutex
	router   *Router
	removers []func()
	open     bool
}

func New(cfg config.DiscordConfig, b *bus.Bus, log *zap.Logger) (*Session, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	// BeforeUpdate on voice events needs the state cache.
	dg.StateEnabled = true

	s := NewWithGateway(dg, b, log)
	s.api = dg
	return s, nil
}

// NewWithGateway builds a Session over any Gateway (for testing).
func NewWithGateway(gw Gateway, b *bus.Bus, log *zap.Logger) *Session {
	return &Session{gw: gw, bus: b, log: log.Named("discord")}
}

// API is the REST client; nil when built with NewWithGateway.
func (s *Session) API() *discordgo.Session { return s.api }

func (s *Session) SetRouter(r *Router) {
	s.mu.Lock()
	s.router = r
	s.mu.Unlock()
}

func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	s.removers = append(s.removers,
		s.gw.AddHandler(s.onReady),
		s.gw.AddHandler(s.onMessageCreate),
		s.gw.AddHandler(s.onVoiceStateUpdate),
		s.gw.AddHandler(s.onPresenceUpdate),
		s.gw.AddHandler(s.onInteractionCreate),
	)
	if err := s.gw.Open(); err != nil {
		s.removeHandlers()
		return fmt.Errorf("open discord gateway: %w", err)
	}
	s.open = true
	s.log.Info("gateway connected")
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.removeHandlers()
	if err := s.gw.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	s.log.Info("gateway closed")
	return nil
}

func (s *Session) removeHandlers() {
	for _, remove := range s.removers {
		if remove != nil {
			remove()
		}
	}
	s.removers = nil
}

func (s *Session) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		s.log.Info("ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	}
}

func (s *Session) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if ev, ok := messageEvent(m); ok {
		s.bus.Publish(ev)
	}
}

func (s *Session) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if ev, ok := voiceEvent(v); ok {
		s.bus.Publish(ev)
	}
}

func (s *Session) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if ev, ok := presenceEvent(p); ok {
		s.bus.Publish(ev)
	}
}

func (s *Session) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	s.mu.Lock()
	r := s.router
	s.mu.Unlock()
	if r == nil {
		s.log.Warn("interaction before router was set", zap.String("interaction_id", i.ID))
		return
	}
	r.Dispatch(i.Interaction)
}

func messageEvent(m *discordgo.MessageCreate) (bus.ActivityEvent, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return bus.ActivityEvent{}, false
	}
	return bus.ActivityEvent{
		Kind:      bus.EventMessage,
		GuildID:   m.GuildID,
		UserID:    m.Author.ID,
		Timestamp: m.Timestamp,
	}, true
}

func voiceEvent(v *discordgo.VoiceStateUpdate) (bus.ActivityEvent, bool) {
	if v == nil || v.VoiceState == nil || v.UserID == "" {
		return bus.ActivityEvent{}, false
	}
	if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
		return bus.ActivityEvent{}, false
	}

	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}
	after := v.ChannelID

	var change bus.VoiceChange
	switch {
	case before == "" && after != "":
		change = bus.VoiceJoin
	case before != "" && after == "":
		change = bus.VoiceLeave
	case before != "" && after != "" && before != after:
		change = bus.VoiceSwitch
	default:
		// mute, deafen and similar updates within one channel
		return bus.ActivityEvent{}, false
	}
	return bus.ActivityEvent{
		Kind:    bus.EventVoice,
		GuildID: v.GuildID,
		UserID:  v.UserID,
		Voice:   change,
	}, true
}

func presenceEvent(p *discordgo.PresenceUpdate) (bus.ActivityEvent, bool) {
	if p == nil || p.User == nil || p.User.ID == "" || p.User.Bot {
		return bus.ActivityEvent{}, false
	}
	names := make([]string, 0, len(p.Activities))
	for _, a := range p.Activities {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			names = append(names, a.Name)
		}
	}
	return bus.ActivityEvent{
		Kind:     bus.EventPresence,
		GuildID:  p.GuildID,
		UserID:   p.User.ID,
		Activity: names,
	}, true
}
