// Package stats records member activity from gateway events and renders
// the leaderboards.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/bus"
	"github.com/guildkeep/guildkeep/internal/store"
)

// Tracker turns activity events into counters and open sessions.
type Tracker struct {
	store    *store.Store
	keywords []string
	now      func() time.Time
	log      *zap.Logger
}

func NewTracker(s *store.Store, gameKeywords []string, log *zap.Logger) *Tracker {
	keywords := make([]string, 0, len(gameKeywords))
	for _, k := range gameKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Tracker{
		store:    s,
		keywords: keywords,
		now:      time.Now,
		log:      log.Named("stats"),
	}
}

// Run consumes events until ctx is cancelled. Failures are logged and the
// event is dropped.
func (t *Tracker) Run(ctx context.Context, b *bus.Bus) {
	events := b.Events()
	for {
		select {
		case ev := <-events:
			if err := t.Record(ctx, ev); err != nil {
				t.log.Warn("record activity",
					zap.Stringer("kind", ev.Kind),
					zap.String("user_id", ev.UserID),
					zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Record applies a single event.
func (t *Tracker) Record(ctx context.Context, ev bus.ActivityEvent) error {
	if ev.UserID == "" || ev.GuildID == "" {
		return nil
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = t.now()
	}

	switch ev.Kind {
	case bus.EventMessage:
		return t.store.AddCounter(ctx, ev.GuildID, ev.UserID, store.CounterMessages, 1)

	case bus.EventVoice:
		switch ev.Voice {
		case bus.VoiceJoin:
			return t.store.StartSession(ctx, ev.GuildID, ev.UserID, store.SessionVoice, at)
		case bus.VoiceLeave:
			_, err := t.store.EndSession(ctx, ev.GuildID, ev.UserID, store.SessionVoice, at)
			return err
		case bus.VoiceSwitch:
			_, err := t.store.TouchSession(ctx, ev.GuildID, ev.UserID, store.SessionVoice, at)
			return err
		}
		return nil

	case bus.EventPresence:
		if t.playing(ev.Activity) {
			_, err := t.store.TouchSession(ctx, ev.GuildID, ev.UserID, store.SessionGame, at)
			return err
		}
		_, err := t.store.EndSession(ctx, ev.GuildID, ev.UserID, store.SessionGame, at)
		return err
	}
	return fmt.Errorf("unknown event kind %d", ev.Kind)
}

func (t *Tracker) playing(activities []string) bool {
	for _, a := range activities {
		name := strings.ToLower(a)
		for _, k := range t.keywords {
			if strings.Contains(name, k) {
				return true
			}
		}
	}
	return false
}

// Checkpoint accrues open voice and game sessions up to now and keeps
// them open, so totals read afterwards include time still in progress.
func (t *Tracker) Checkpoint(ctx context.Context) error {
	now := t.now()
	for _, kind := range []store.SessionKind{store.SessionVoice, store.SessionGame} {
		n, err := t.store.Checkpoint(ctx, kind, now)
		if err != nil {
			return fmt.Errorf("checkpoint %s sessions: %w", kind, err)
		}
		if n > 0 {
			t.log.Debug("sessions checkpointed", zap.String("kind", string(kind)), zap.Int("open", n))
		}
	}
	return nil
}

// Close accrues and closes every open session. Members still in voice or
// in game when the bot stops are picked up again by their next event.
func (t *Tracker) Close(ctx context.Context) error {
	now := t.now()
	for _, kind := range []store.SessionKind{store.SessionVoice, store.SessionGame} {
		if _, err := t.store.EndAllSessions(ctx, kind, now); err != nil {
			return fmt.Errorf("close %s sessions: %w", kind, err)
		}
	}
	return nil
}
