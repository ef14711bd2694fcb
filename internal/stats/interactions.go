package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/guildkeep/guildkeep/internal/config"
	"github.com/guildkeep/guildkeep/internal/discord"
	"github.com/guildkeep/guildkeep/internal/store"
)

const (
	PrevPrefix = "stats:prev:"
	NextPrefix = "stats:next:"

	boardColor = 0x2b2d31
	userColor  = 0x0099ff
)

const (
	MsgNoData = "Пока нет данных"
	MsgStale  = "Эта статистика устарела. Пожалуйста, используйте команду `/статистика` снова."
)

// board describes one leaderboard and how a row of it reads.
type board struct {
	title  string
	kind   store.CounterKind
	format func(v int64) string
}

var boards = []board{
	{
		title:  "💬 Статистика сообщений",
		kind:   store.CounterMessages,
		format: func(v int64) string { return fmt.Sprintf("%d сообщений", v) },
	},
	{
		title:  "🎤 Статистика времени в голосовых каналах",
		kind:   store.CounterVoiceMs,
		format: func(v int64) string { return FormatDuration(time.Duration(v) * time.Millisecond) },
	},
	{
		title:  "🎮 Статистика времени в RAGE:MP",
		kind:   store.CounterGameMs,
		format: func(v int64) string { return FormatDuration(time.Duration(v) * time.Millisecond) },
	},
	{
		title:  "📈 Статистика принятых заявок",
		kind:   store.CounterAccepted,
		format: func(v int64) string { return fmt.Sprintf("%d принятых заявок", v) },
	},
}

type Handlers struct {
	tracker  *Tracker
	store    *store.Store
	pages    *pageCache
	pageSize int
	log      *zap.Logger
}

func NewHandlers(t *Tracker, s *store.Store, cfg config.StatsConfig, log *zap.Logger) *Handlers {
	size := cfg.PageSize
	if size <= 0 {
		size = config.DefaultPageSize
	}
	cacheSize := cfg.PageCacheSize
	if cacheSize <= 0 {
		cacheSize = config.DefaultPageCacheSize
	}
	ttl := cfg.PageTTL
	if ttl <= 0 {
		ttl = config.DefaultPageTTL
	}
	return &Handlers{
		tracker:  t,
		store:    s,
		pages:    newPageCache(cacheSize, ttl),
		pageSize: size,
		log:      log.Named("stats"),
	}
}

func (h *Handlers) Register(r *discord.Router) {
	r.Command(discord.CommandStats, h.Leaderboard)
	r.Command(discord.CommandUserStats, h.UserStats)
	r.ComponentPrefix(PrevPrefix, h.Page)
	r.ComponentPrefix(NextPrefix, h.Page)
}

// Leaderboard posts the first page of the invoking guild's leaderboards.
func (h *Handlers) Leaderboard(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	if err := h.tracker.Checkpoint(ctx); err != nil {
		return err
	}
	pages, err := h.render(ctx, i.GuildID)
	if err != nil {
		return err
	}
	id := h.pages.put(pages)
	h.log.Debug("leaderboard rendered", zap.String("page_set", id), zap.Int("pages", len(pages)))
	return resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{pages[0]},
		Components: []discordgo.MessageComponent{navigation(id, 0, len(pages))},
	})
}

// Page flips a posted leaderboard.
func (h *Handlers) Page(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	customID := i.MessageComponentData().CustomID
	delta := 1
	id, ok := discord.CustomIDArg(customID, NextPrefix)
	if !ok {
		delta = -1
		id, ok = discord.CustomIDArg(customID, PrevPrefix)
	}
	if !ok {
		return resp.Ephemeral(ctx, MsgStale)
	}
	set, ok := h.pages.get(id)
	if !ok {
		return resp.Ephemeral(ctx, MsgStale)
	}

	page, current, total := set.step(delta)
	return resp.UpdateMessage(ctx, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{page},
		Components: []discordgo.MessageComponent{navigation(id, current, total)},
	})
}

// UserStats shows one member's totals, the invoking member by default.
func (h *Handlers) UserStats(ctx context.Context, resp *discord.Responder, i *discordgo.Interaction) error {
	data := i.ApplicationCommandData()
	target := discord.InteractionUser(i)
	if opt, ok := discord.Options(data)[discord.OptionUser]; ok {
		target = opt.UserValue(nil)
		if data.Resolved != nil {
			if u, ok := data.Resolved.Users[target.ID]; ok {
				target = u
			}
		}
	}
	if target == nil || target.ID == "" {
		return errors.New("user stats: no target user")
	}

	if err := h.tracker.Checkpoint(ctx); err != nil {
		return err
	}
	messages, err := h.store.Counter(ctx, i.GuildID, target.ID, store.CounterMessages)
	if err != nil {
		return err
	}
	voice, err := h.store.Counter(ctx, i.GuildID, target.ID, store.CounterVoiceMs)
	if err != nil {
		return err
	}
	game, err := h.store.Counter(ctx, i.GuildID, target.ID, store.CounterGameMs)
	if err != nil {
		return err
	}

	name := discord.DisplayName(target)
	if name == "" {
		name = "<@" + target.ID + ">"
	}
	return resp.Reply(ctx, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title: "Статистика " + name,
			Color: userColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Сообщений", Value: fmt.Sprintf("%d", messages), Inline: true},
				{Name: "Время в голосовых каналах", Value: FormatHoursMinutes(time.Duration(voice) * time.Millisecond), Inline: true},
				{Name: "Время в RAGE:MP", Value: FormatHoursMinutes(time.Duration(game) * time.Millisecond), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// render builds every page of every board of a guild in display order.
func (h *Handlers) render(ctx context.Context, guildID string) ([]*discordgo.MessageEmbed, error) {
	var pages []*discordgo.MessageEmbed
	for _, b := range boards {
		rows, err := h.store.Counters(ctx, guildID, b.kind)
		if err != nil {
			return nil, err
		}
		pages = append(pages, b.pages(rows, h.pageSize)...)
	}
	return pages, nil
}

func (b board) pages(rows []store.CounterRow, size int) []*discordgo.MessageEmbed {
	if len(rows) == 0 {
		return []*discordgo.MessageEmbed{{Title: b.title, Color: boardColor, Description: MsgNoData}}
	}

	total := (len(rows) + size - 1) / size
	out := make([]*discordgo.MessageEmbed, 0, total)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		lines := make([]string, 0, end-start)
		for n, r := range rows[start:end] {
			lines = append(lines, fmt.Sprintf("%d. <@%s> - %s", start+n+1, r.UserID, b.format(r.Value)))
		}
		title := b.title
		if total > 1 {
			title = fmt.Sprintf("%s (%d/%d)", b.title, len(out)+1, total)
		}
		out = append(out, &discordgo.MessageEmbed{
			Title:       title,
			Color:       boardColor,
			Description: strings.Join(lines, "\n"),
		})
	}
	return out
}

func navigation(id string, current, total int) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: PrevPrefix + id,
			Label:    "◀",
			Style:    discordgo.PrimaryButton,
			Disabled: current == 0,
		},
		discordgo.Button{
			CustomID: NextPrefix + id,
			Label:    "▶",
			Style:    discordgo.PrimaryButton,
			Disabled: current >= total-1,
		},
	}}
}
