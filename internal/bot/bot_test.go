package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/application"
	"github.com/guildkeep/guildkeep/internal/config"
	"github.com/guildkeep/guildkeep/internal/discord"
	"github.com/guildkeep/guildkeep/internal/discord/discordtest"
	"github.com/guildkeep/guildkeep/internal/ledger"
	"github.com/guildkeep/guildkeep/internal/stats"
)

type fakeGateway struct {
	mu       sync.Mutex
	handlers int
	opened   bool
	closed   bool
	openErr  error
}

func (g *fakeGateway) AddHandler(interface{}) func() {
	g.mu.Lock()
	g.handlers++
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.handlers--
		g.mu.Unlock()
	}
}

func (g *fakeGateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return g.openErr
	}
	g.opened = true
	return nil
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *fakeGateway) state() (opened, closed bool, handlers int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened, g.closed, g.handlers
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "bot.db")
	return cfg
}

func newTestBot(t *testing.T, cfg *config.Config, gw *fakeGateway, sig chan os.Signal) (*Bot, *discordtest.Fake) {
	t.Helper()
	fake := discordtest.New()
	b, err := NewWithOptions(cfg, Options{
		Logger:     zap.NewNop(),
		Gateway:    gw,
		API:        fake,
		SignalChan: sig,
	})
	require.NoError(t, err)
	return b, fake
}

func TestNewWithOptions_RegistersEveryRoute(t *testing.T) {
	b, _ := newTestBot(t, testConfig(t), &fakeGateway{}, nil)
	t.Cleanup(func() { _ = b.Shutdown() })

	for _, cmd := range discord.Commands() {
		_, _, ok := b.Router().Lookup(discordtest.Command(cmd.Name, "1"))
		assert.True(t, ok, "command %s", cmd.Name)
	}
	for _, id := range []string{
		ledger.PickerCustomID,
		stats.PrevPrefix + "x",
		stats.NextPrefix + "x",
		application.SubmitCustomID,
		application.AcceptPrefix + "1",
		application.RejectPrefix + "1",
	} {
		_, _, ok := b.Router().Lookup(discordtest.Component(id, "1", nil))
		assert.True(t, ok, "component %s", id)
	}
	_, _, ok := b.Router().Lookup(discordtest.Modal(application.FormCustomID, "1", nil))
	assert.True(t, ok)

	var names []string
	for _, j := range b.Jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{JobPruneCooldowns, JobCheckpoint}, names)
}

func TestNewWithOptions_Errors(t *testing.T) {
	t.Run("gateway without api", func(t *testing.T) {
		_, err := NewWithOptions(testConfig(t), Options{Logger: zap.NewNop(), Gateway: &fakeGateway{}})
		assert.Error(t, err)
	})

	t.Run("missing categories file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Ledger.CategoriesFile = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := NewWithOptions(cfg, Options{Logger: zap.NewNop(), Gateway: &fakeGateway{}, API: discordtest.New()})
		assert.ErrorContains(t, err, "load categories")
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Stats.CheckpointSchedule = "every now and then"
		_, err := NewWithOptions(cfg, Options{Logger: zap.NewNop(), Gateway: &fakeGateway{}, API: discordtest.New()})
		assert.ErrorContains(t, err, JobCheckpoint)
	})

	t.Run("real session needs a token", func(t *testing.T) {
		_, err := NewWithOptions(testConfig(t), Options{Logger: zap.NewNop()})
		assert.Error(t, err)
	})
}

func TestNewWithOptions_CustomCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
title: "Арсенал"
color: "#112233"
rows:
  - key: ammo
    name: "Патроны"
`), 0o644))

	cfg := testConfig(t)
	cfg.Ledger.CategoriesFile = path
	b, fake := newTestBot(t, cfg, &fakeGateway{}, nil)
	t.Cleanup(func() { _ = b.Shutdown() })

	b.Router().Handle(context.Background(), discordtest.Command(discord.CommandLedger, "1"))
	msgs := fake.ChannelMessages(discordtest.ChannelID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Арсенал", msgs[0].Embeds[0].Title)
}

func TestRouter_UsesInjectedAPI(t *testing.T) {
	b, fake := newTestBot(t, testConfig(t), &fakeGateway{}, nil)
	t.Cleanup(func() { _ = b.Shutdown() })

	b.Router().Handle(context.Background(), discordtest.Command(discord.CommandLedger, "1"))

	msgs := fake.ChannelMessages(discordtest.ChannelID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "📦 Склад", msgs[0].Embeds[0].Title)
	resp, ok := fake.LastResponse()
	require.True(t, ok)
	assert.Equal(t, ledger.MsgCreated, resp.Data.Content)
}

func TestRun_WithSignalChan(t *testing.T) {
	gw := &fakeGateway{}
	sig := make(chan os.Signal, 1)
	b, _ := newTestBot(t, testConfig(t), gw, sig)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		opened, _, _ := gw.state()
		return opened
	}, 2*time.Second, 10*time.Millisecond)

	sig <- syscall.SIGTERM
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after signal")
	}

	_, closed, handlers := gw.state()
	assert.True(t, closed)
	assert.Zero(t, handlers, "handlers removed on close")
	require.NoError(t, b.Shutdown(), "second shutdown is a no-op")
}

func TestRun_PrunesCooldownsOnStart(t *testing.T) {
	gw := &fakeGateway{}
	sig := make(chan os.Signal, 1)
	b, _ := newTestBot(t, testConfig(t), gw, sig)
	require.NoError(t, b.store.SetCooldown(context.Background(), "u1", time.Now().Add(-time.Hour)))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		for _, j := range b.Jobs() {
			if j.Name == JobPruneCooldowns {
				return j.Runs == 1
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	_, ok, err := b.store.Cooldown(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok, "expired cooldown pruned at startup")

	sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)
}

func TestRun_ContextCancel(t *testing.T) {
	gw := &fakeGateway{}
	b, _ := newTestBot(t, testConfig(t), gw, make(chan os.Signal))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		opened, _, _ := gw.state()
		return opened
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_GatewayOpenError(t *testing.T) {
	gw := &fakeGateway{openErr: errors.New("identify rejected")}
	b, _ := newTestBot(t, testConfig(t), gw, make(chan os.Signal))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identify rejected")

	_, _, handlers := gw.state()
	assert.Zero(t, handlers)
}

// Compile-time check that the real client serves every handler.
var _ API = (*discordgo.Session)(nil)
