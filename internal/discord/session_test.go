package discord

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/bus"
	"github.com/guildkeep/guildkeep/internal/config"
)

type fakeGateway struct {
	handlers []interface{}
	removed  int
	opened   bool
	closed   bool
	openErr  error
}

func (g *fakeGateway) AddHandler(h interface{}) func() {
	g.handlers = append(g.handlers, h)
	return func() { g.removed++ }
}

func (g *fakeGateway) Open() error {
	if g.openErr != nil {
		return g.openErr
	}
	g.opened = true
	return nil
}

func (g *fakeGateway) Close() error {
	g.closed = true
	return nil
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(config.DiscordConfig{}, bus.New(1, zap.NewNop()), zap.NewNop())
	assert.Error(t, err)
}

func TestNew_SetsIntents(t *testing.T) {
	s, err := New(config.DiscordConfig{Token: "abc"}, bus.New(1, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Intents, s.API().Identify.Intents)
}

func TestSession_Lifecycle(t *testing.T) {
	gw := &fakeGateway{}
	s := NewWithGateway(gw, bus.New(1, zap.NewNop()), zap.NewNop())

	require.NoError(t, s.Open())
	assert.True(t, gw.opened)
	assert.Len(t, gw.handlers, 5)

	// Second Open is a no-op.
	require.NoError(t, s.Open())
	assert.Len(t, gw.handlers, 5)

	require.NoError(t, s.Close())
	assert.True(t, gw.closed)
	assert.Equal(t, 5, gw.removed)
}

func TestSession_OpenFailureRemovesHandlers(t *testing.T) {
	gw := &fakeGateway{openErr: errors.New("4004 authentication failed")}
	s := NewWithGateway(gw, bus.New(1, zap.NewNop()), zap.NewNop())

	assert.Error(t, s.Open())
	assert.Equal(t, 5, gw.removed)
	require.NoError(t, s.Close())
	assert.False(t, gw.closed)
}

func TestSession_PublishesActivity(t *testing.T) {
	b := bus.New(4, zap.NewNop())
	s := NewWithGateway(&fakeGateway{}, b, zap.NewNop())

	s.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "g", Author: &discordgo.User{ID: "u1"}, Timestamp: time.Now(),
	}})

	select {
	case ev := <-b.Events():
		assert.Equal(t, bus.EventMessage, ev.Kind)
		assert.Equal(t, "u1", ev.UserID)
	default:
		t.Fatal("no event published")
	}
}

func TestMessageEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  *discordgo.Message
		ok   bool
	}{
		{"guild message", &discordgo.Message{GuildID: "g", Author: &discordgo.User{ID: "u"}}, true},
		{"bot author", &discordgo.Message{GuildID: "g", Author: &discordgo.User{ID: "u", Bot: true}}, false},
		{"direct message", &discordgo.Message{Author: &discordgo.User{ID: "u"}}, false},
		{"no author", &discordgo.Message{GuildID: "g"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := messageEvent(&discordgo.MessageCreate{Message: tt.msg})
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestVoiceEvent(t *testing.T) {
	state := func(channel string) *discordgo.VoiceState {
		return &discordgo.VoiceState{GuildID: "g", UserID: "u", ChannelID: channel}
	}
	tests := []struct {
		name   string
		before *discordgo.VoiceState
		after  string
		want   bus.VoiceChange
		ok     bool
	}{
		{"join", nil, "c1", bus.VoiceJoin, true},
		{"join from empty state", state(""), "c1", bus.VoiceJoin, true},
		{"leave", state("c1"), "", bus.VoiceLeave, true},
		{"switch", state("c1"), "c2", bus.VoiceSwitch, true},
		{"mute in place", state("c1"), "c1", bus.VoiceNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := voiceEvent(&discordgo.VoiceStateUpdate{VoiceState: state(tt.after), BeforeUpdate: tt.before})
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ev.Voice)
				assert.Equal(t, "u", ev.UserID)
			}
		})
	}
}

func TestPresenceEvent(t *testing.T) {
	ev, ok := presenceEvent(&discordgo.PresenceUpdate{
		GuildID: "g",
		Presence: discordgo.Presence{
			User:       &discordgo.User{ID: "u"},
			Activities: []*discordgo.Activity{{Name: "RAGE Multiplayer"}, {Name: " "}, nil},
		},
	})
	require.True(t, ok)
	assert.Equal(t, []string{"RAGE Multiplayer"}, ev.Activity)

	_, ok = presenceEvent(&discordgo.PresenceUpdate{Presence: discordgo.Presence{User: &discordgo.User{ID: "b", Bot: true}}})
	assert.False(t, ok)
}
